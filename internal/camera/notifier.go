package camera

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FSNotifier はデバイスディレクトリを fsnotify で監視し、
// videoN ノードの作成・削除を接続・切断として通知する
type FSNotifier struct {
	watcher *fsnotify.Watcher
	events  chan DeviceEvent
	logger  *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

// NewFSNotifier は devRoot の監視を開始する
func NewFSNotifier(devRoot string, logger *zap.Logger) (*FSNotifier, error) {
	if devRoot == "" {
		devRoot = DefaultDevRoot
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("ファイル監視の作成に失敗: %w", err)
	}
	if err := w.Add(devRoot); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("%s の監視に失敗: %w", devRoot, err)
	}

	n := &FSNotifier{
		watcher: w,
		events:  make(chan DeviceEvent, 16),
		logger:  logger,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go n.run()
	return n, nil
}

// Events は通知チャンネルを返す
func (n *FSNotifier) Events() <-chan DeviceEvent {
	return n.events
}

// Close は監視を終了し、通知ゴルーチンの終了を待つ
func (n *FSNotifier) Close() error {
	var err error
	n.closeOnce.Do(func() {
		close(n.done)
		err = n.watcher.Close()
		<-n.stopped
	})
	return err
}

func (n *FSNotifier) run() {
	defer close(n.stopped)
	defer close(n.events)

	for {
		select {
		case <-n.done:
			return
		case ev, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			de, ok := classifyEvent(ev)
			if !ok {
				continue
			}
			select {
			case n.events <- de:
			case <-n.done:
				return
			}
		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			n.logger.Warn("デバイス監視でエラーが発生しました", zap.Error(err))
		}
	}
}

// classifyEvent は fsnotify のイベントを DeviceEvent に変換する
func classifyEvent(ev fsnotify.Event) (DeviceEvent, bool) {
	if !videoNodePattern.MatchString(filepath.Base(ev.Name)) {
		return DeviceEvent{}, false
	}
	switch {
	case ev.Has(fsnotify.Create):
		return DeviceEvent{Kind: EventConnected, Path: ev.Name}, true
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return DeviceEvent{Kind: EventDisconnected, Path: ev.Name}, true
	default:
		return DeviceEvent{}, false
	}
}

// MockNotifier はテスト用のNotifier実装
type MockNotifier struct {
	events    chan DeviceEvent
	closeOnce sync.Once
}

// NewMockNotifier は新しいMockNotifierを作成する
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{events: make(chan DeviceEvent, 16)}
}

// Events は通知チャンネルを返す
func (m *MockNotifier) Events() <-chan DeviceEvent {
	return m.events
}

// Emit はイベントを送信する
func (m *MockNotifier) Emit(ev DeviceEvent) {
	m.events <- ev
}

// Close は通知チャンネルをクローズする
func (m *MockNotifier) Close() error {
	m.closeOnce.Do(func() { close(m.events) })
	return nil
}
