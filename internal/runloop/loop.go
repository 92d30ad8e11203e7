// Package runloop はアプリケーションの「UIスレッド」に相当するメインループを提供する
//
// レジストリ・コントローラー・権限ゲートの状態変更はすべてこのループ上で
// 1つずつ実行される。非同期処理（権限プロンプト、ホットプラグのデバウンス、
// セッション開始）の完了通知も Post によってループに戻ってくる。
package runloop

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrStopped はループが停止済みの場合に返される
	ErrStopped = errors.New("メインループは停止しています")
	// ErrAlreadyRunning は Run が二重に呼ばれた場合に返される
	ErrAlreadyRunning = errors.New("メインループは既に実行中です")
)

// Loop は投入された関数を単一ゴルーチンで FIFO 順に実行する
type Loop struct {
	logger *zap.Logger

	mu      sync.Mutex
	queue   []func()
	running bool
	stopped bool

	wake chan struct{}
}

// New は新しい Loop を作成する
func New(logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
}

// Post は fn をキューに追加する。停止済みの場合は false を返す
// どのゴルーチンからでも呼び出せる
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do は fn をループ上で実行し、完了まで待機する
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// After は d 経過後に fn をループへ投入する
func (l *Loop) After(d time.Duration, fn func()) *Timer {
	return &Timer{t: time.AfterFunc(d, func() { l.Post(fn) })}
}

// Run はコンテキストがキャンセルされるまでキューを処理する
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return ErrAlreadyRunning
	}
	if l.stopped {
		l.mu.Unlock()
		return ErrStopped
	}
	l.running = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.stopped = true
		l.queue = nil
		l.mu.Unlock()
	}()

	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			if ctx.Err() != nil {
				return nil
			}
			l.invoke(fn)
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-l.wake:
		}
	}
}

// invoke は1つの関数を実行する。パニックはループを止めずにログへ記録する
func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("メインループでパニックが発生しました", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	fn()
}

// Timer は After で登録した遅延実行
type Timer struct {
	t *time.Timer
}

// Stop は未発火のタイマーを取り消す
// 既にループへ投入済みの関数は取り消せない
func (t *Timer) Stop() bool {
	if t == nil || t.t == nil {
		return false
	}
	return t.t.Stop()
}
