package camera

import (
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultPollInterval は PollingNotifier のスキャン間隔
const DefaultPollInterval = 2 * time.Second

// PollingNotifier はデバイスディレクトリを定期的にスキャンし、
// videoN ノードの増減を接続・切断として通知する
//
// inotify が使えない環境 (/dev がコンテナ越しにマウントされている等) 向け
type PollingNotifier struct {
	devRoot  string
	interval time.Duration
	logger   *zap.Logger
	events   chan DeviceEvent

	closeOnce sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewPollingNotifier は devRoot のスキャンを開始する
func NewPollingNotifier(devRoot string, interval time.Duration, logger *zap.Logger) *PollingNotifier {
	if devRoot == "" {
		devRoot = DefaultDevRoot
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	n := &PollingNotifier{
		devRoot:  devRoot,
		interval: interval,
		logger:   logger,
		events:   make(chan DeviceEvent, 16),
		stopCh:   make(chan struct{}),
	}
	n.wg.Add(1)
	go n.backgroundScan(n.scan())
	return n
}

// Events は通知チャンネルを返す
func (n *PollingNotifier) Events() <-chan DeviceEvent {
	return n.events
}

// Close はスキャンを停止する
func (n *PollingNotifier) Close() error {
	n.closeOnce.Do(func() {
		close(n.stopCh)
		n.wg.Wait()
	})
	return nil
}

// backgroundScan は定期的にノード一覧を取り直し、差分を通知する
func (n *PollingNotifier) backgroundScan(known map[string]struct{}) {
	defer n.wg.Done()
	defer close(n.events)

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			current := n.scan()
			for _, ev := range diffNodes(known, current) {
				select {
				case n.events <- ev:
				case <-n.stopCh:
					return
				}
			}
			known = current
		}
	}
}

// scan は現在の videoN ノードの集合を返す
func (n *PollingNotifier) scan() map[string]struct{} {
	matches, err := filepath.Glob(filepath.Join(n.devRoot, "video*"))
	if err != nil {
		n.logger.Warn("デバイスノードのスキャンに失敗しました", zap.Error(err))
	}

	nodes := make(map[string]struct{}, len(matches))
	for _, path := range matches {
		if videoNodePattern.MatchString(filepath.Base(path)) {
			nodes[path] = struct{}{}
		}
	}
	return nodes
}

// diffNodes は前回との差分をパス順のイベントにする。切断を先に並べる
func diffNodes(before, after map[string]struct{}) []DeviceEvent {
	var removed, added []string
	for path := range before {
		if _, ok := after[path]; !ok {
			removed = append(removed, path)
		}
	}
	for path := range after {
		if _, ok := before[path]; !ok {
			added = append(added, path)
		}
	}
	sort.Strings(removed)
	sort.Strings(added)

	events := make([]DeviceEvent, 0, len(removed)+len(added))
	for _, path := range removed {
		events = append(events, DeviceEvent{Kind: EventDisconnected, Path: path})
	}
	for _, path := range added {
		events = append(events, DeviceEvent{Kind: EventConnected, Path: path})
	}
	return events
}
