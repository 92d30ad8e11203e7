package camera

import (
	"context"
	"time"

	"go.uber.org/zap"

	"kagami/internal/runloop"
)

// DefaultConnectDebounce は接続通知から再検出までの待ち時間
// 接続直後のデバイスはすぐに問い合わせできないことがある
const DefaultConnectDebounce = 500 * time.Millisecond

// Watcher はホットプラグ通知を受けてデバイス一覧とセッションを更新する
type Watcher struct {
	loop       *runloop.Loop
	notifier   Notifier
	controller *Controller
	debounce   time.Duration
	logger     *zap.Logger

	// 以下はメインループ上でのみ扱う
	pending    *runloop.Timer
	pendingGen uint64
}

// NewWatcher は新しいWatcherを作成する
func NewWatcher(loop *runloop.Loop, notifier Notifier, controller *Controller, debounce time.Duration, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		loop:       loop,
		notifier:   notifier,
		controller: controller,
		debounce:   debounce,
		logger:     logger,
	}
}

// Run は通知チャンネルを読み、イベントをメインループへ渡す
// コンテキストのキャンセルか通知チャンネルのクローズで戻る
func (w *Watcher) Run(ctx context.Context) error {
	events := w.notifier.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			w.logger.Debug("ホットプラグ通知を受信しました",
				zap.Stringer("kind", ev.Kind),
				zap.String("path", ev.Path),
			)
			w.loop.Post(func() { w.handle(ctx, ev) })
		}
	}
}

// handle は1件のイベントを処理する
func (w *Watcher) handle(ctx context.Context, ev DeviceEvent) {
	switch ev.Kind {
	case EventDisconnected:
		w.resync(ctx, ev)

	case EventConnected:
		// 連続した接続通知はまとめて1回の再検出にする
		if w.pending != nil {
			w.pending.Stop()
		}
		w.pendingGen++
		gen := w.pendingGen
		w.pending = w.loop.After(w.debounce, func() {
			if gen != w.pendingGen {
				return
			}
			w.pending = nil
			w.resync(ctx, ev)
		})
	}
}

func (w *Watcher) resync(ctx context.Context, ev DeviceEvent) {
	if ctx.Err() != nil {
		return
	}
	if err := w.controller.Resync(ctx); err != nil {
		w.logger.Warn("ホットプラグ後の再選択に失敗しました",
			zap.Stringer("kind", ev.Kind),
			zap.String("path", ev.Path),
			zap.Error(err),
		)
	}
}
