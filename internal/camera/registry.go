package camera

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// NoSelection はデバイスが選択されていないことを表す
const NoSelection = -1

// Snapshot はある時点のデバイス一覧と選択位置
// Devices は共有されるため変更してはならない
type Snapshot struct {
	Devices  []Device
	Selected int
}

// SelectedDevice は選択中のデバイスを返す
func (s Snapshot) SelectedDevice() (Device, bool) {
	if s.Selected < 0 || s.Selected >= len(s.Devices) {
		return Device{}, false
	}
	return s.Devices[s.Selected], true
}

// Names はメニュー表示用のデバイス名一覧を返す
func (s Snapshot) Names() []string {
	names := make([]string, len(s.Devices))
	for i, d := range s.Devices {
		names[i] = d.Name
	}
	return names
}

// Registry は検出済みデバイスの一覧と選択位置を保持する
//
// 一覧は Refresh による全置換でのみ更新され、読み取り側は常に
// 一貫したスナップショットを得る。Refresh / Select はメインループから呼ぶこと
type Registry struct {
	discovery Discovery
	logger    *zap.Logger
	state     atomic.Pointer[Snapshot]
}

// NewRegistry は空の Registry を作成する
func NewRegistry(discovery Discovery, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		discovery: discovery,
		logger:    logger,
	}
	r.state.Store(&Snapshot{Selected: NoSelection})
	return r
}

// Snapshot は現在のスナップショットを返す
func (r *Registry) Snapshot() Snapshot {
	return *r.state.Load()
}

// DeviceNames は表示名の一覧を返す
func (r *Registry) DeviceNames() []string {
	return r.Snapshot().Names()
}

// SelectedIndex は選択位置を返す。未選択の場合は NoSelection
func (r *Registry) SelectedIndex() int {
	return r.Snapshot().Selected
}

// Refresh はデバイスを再検出し、一覧を丸ごと置き換える
//
// 直前に選択していたデバイスが新しい一覧に含まれていれば、その位置を選択し直す。
// 含まれていなければ先頭を、一覧が空なら未選択にする。
// 検出に失敗した場合は以前のスナップショットを維持する
func (r *Registry) Refresh(ctx context.Context) (Snapshot, error) {
	devices, err := r.discovery.ScanDevices(ctx)
	if err != nil {
		return r.Snapshot(), fmt.Errorf("デバイスの検出に失敗: %w", err)
	}

	prev := r.Snapshot()
	var prevID string
	if d, ok := prev.SelectedDevice(); ok {
		prevID = d.ID
	}

	next := &Snapshot{
		Devices:  append([]Device(nil), devices...),
		Selected: reselect(prevID, devices),
	}
	r.state.Store(next)

	r.logger.Debug("デバイス一覧を更新しました",
		zap.Int("count", len(next.Devices)),
		zap.Int("selected", next.Selected),
		zap.String("previous_id", prevID),
	)

	return *next, nil
}

// Select は一覧を変えずに選択位置だけを変更する
func (r *Registry) Select(index int) bool {
	prev := r.Snapshot()
	if index < 0 || index >= len(prev.Devices) {
		return false
	}
	r.state.Store(&Snapshot{Devices: prev.Devices, Selected: index})
	return true
}

// reselect は再検出後の選択位置を決める
func reselect(prevID string, devices []Device) int {
	if len(devices) == 0 {
		return NoSelection
	}
	if prevID != "" {
		for i, d := range devices {
			if d.ID == prevID {
				return i
			}
		}
	}
	return 0
}
