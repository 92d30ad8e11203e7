package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

const (
	// DefaultSysRoot はV4L2デバイスの sysfs ディレクトリ
	DefaultSysRoot = "/sys/class/video4linux"
	// DefaultDevRoot はデバイスノードのディレクトリ
	DefaultDevRoot = "/dev"
)

var videoNodePattern = regexp.MustCompile(`^video(\d+)$`)

// LinuxDiscovery は sysfs を元にカメラデバイスを検出する
type LinuxDiscovery struct {
	sysRoot string
	devRoot string
	classes []DeviceClass
}

// NewLinuxDiscovery は新しいLinuxDiscoveryを作成する
// classes が空の場合は内蔵・外付けの両方を対象にする
func NewLinuxDiscovery(sysRoot, devRoot string, classes []DeviceClass) *LinuxDiscovery {
	if sysRoot == "" {
		sysRoot = DefaultSysRoot
	}
	if devRoot == "" {
		devRoot = DefaultDevRoot
	}
	if len(classes) == 0 {
		classes = DefaultDeviceClasses
	}
	return &LinuxDiscovery{
		sysRoot: sysRoot,
		devRoot: devRoot,
		classes: classes,
	}
}

// ScanDevices はシステム内の利用可能なカメラデバイスをスキャンする
func (d *LinuxDiscovery) ScanDevices(ctx context.Context) ([]Device, error) {
	entries, err := os.ReadDir(d.sysRoot)
	if err != nil {
		if os.IsNotExist(err) {
			// V4L2 サブシステムが無い環境はカメラ0台として扱う
			return nil, nil
		}
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	var nodes []string
	for _, entry := range entries {
		if videoNodePattern.MatchString(entry.Name()) {
			nodes = append(nodes, entry.Name())
		}
	}

	// デバイス番号でソート
	sort.Slice(nodes, func(i, j int) bool {
		return extractDeviceNumber(nodes[i]) < extractDeviceNumber(nodes[j])
	})

	stableIDs := d.stableIDs()

	var devices []Device
	for _, node := range nodes {
		// コンテキストのキャンセルをチェック
		select {
		case <-ctx.Done():
			return devices, ctx.Err()
		default:
		}

		sysDir := filepath.Join(d.sysRoot, node)

		// 同じ物理デバイスのメタデータ用ノード（index 1 以降）は除外
		if index := readFirstLine(filepath.Join(sysDir, "index")); index != "" && index != "0" {
			continue
		}

		path := filepath.Join(d.devRoot, node)
		if _, err := os.Stat(path); err != nil {
			continue
		}

		device := Device{
			ID:       path,
			Name:     readFirstLine(filepath.Join(sysDir, "name")),
			Path:     path,
			State:    d.connectivity(sysDir),
			Position: d.position(sysDir),
		}
		if resolved, err := filepath.EvalSymlinks(path); err == nil {
			if id, ok := stableIDs[resolved]; ok {
				device.ID = id
			}
		}
		if device.Name == "" {
			device.Name = fmt.Sprintf("カメラ %d", extractDeviceNumber(node))
		}

		if d.matches(device) {
			devices = append(devices, device)
		}
	}

	return devices, nil
}

// stableIDs は /dev/v4l/by-id（無ければ by-path）のシンボリックリンクから
// 実デバイスノード→安定IDの対応表を作る
func (d *LinuxDiscovery) stableIDs() map[string]string {
	ids := make(map[string]string)
	for _, dir := range []string{"by-path", "by-id"} {
		base := filepath.Join(d.devRoot, "v4l", dir)
		entries, err := os.ReadDir(base)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			target, err := filepath.EvalSymlinks(filepath.Join(base, entry.Name()))
			if err != nil {
				continue
			}
			// by-id を後に処理して優先させる
			ids[target] = dir + "/" + entry.Name()
		}
	}
	return ids
}

// position は親USBデバイスの removable 属性から取り付け位置を判定する
func (d *LinuxDiscovery) position(sysDir string) Position {
	deviceDir, err := filepath.EvalSymlinks(filepath.Join(sysDir, "device"))
	if err != nil {
		return PositionUnspecified
	}

	switch readFirstLine(filepath.Join(filepath.Dir(deviceDir), "removable")) {
	case "removable":
		return PositionExternal
	case "fixed":
		return PositionFront
	default:
		return PositionUnspecified
	}
}

// connectivity はランタイム電源管理の状態から接続状態を判定する
func (d *LinuxDiscovery) connectivity(sysDir string) Connectivity {
	if readFirstLine(filepath.Join(sysDir, "device", "power", "runtime_status")) == "suspended" {
		return ConnectivitySuspended
	}
	return ConnectivityConnected
}

func (d *LinuxDiscovery) matches(device Device) bool {
	for _, class := range d.classes {
		if class.Matches(device) {
			return true
		}
	}
	return false
}

// extractDeviceNumber はデバイス名から番号を抽出する
func extractDeviceNumber(device string) int {
	matches := videoNodePattern.FindStringSubmatch(filepath.Base(device))
	if len(matches) < 2 {
		return 0
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}

	return num
}

func readFirstLine(path string) string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	line := string(raw)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	return strings.TrimSpace(line)
}

// MockDiscovery はテスト用のモックDiscovery実装
type MockDiscovery struct {
	mu      sync.Mutex
	devices []Device
	err     error
	scans   int
}

// NewMockDiscovery は新しいMockDiscoveryを作成する
func NewMockDiscovery(devices ...Device) *MockDiscovery {
	return &MockDiscovery{devices: append([]Device(nil), devices...)}
}

// ScanDevices はモックデバイス一覧を返す
func (m *MockDiscovery) ScanDevices(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.scans++
	if m.err != nil {
		return nil, m.err
	}
	return append([]Device(nil), m.devices...), nil
}

// SetDevices は検出結果を丸ごと置き換える
func (m *MockDiscovery) SetDevices(devices ...Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices = append([]Device(nil), devices...)
}

// AddDevice はテスト用にデバイスを末尾へ追加する
func (m *MockDiscovery) AddDevice(device Device) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// 重複チェック
	for _, d := range m.devices {
		if d.ID == device.ID {
			return
		}
	}
	m.devices = append(m.devices, device)
}

// RemoveDevice はテスト用にデバイスを削除する
func (m *MockDiscovery) RemoveDevice(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, d := range m.devices {
		if d.ID == id {
			m.devices = append(m.devices[:i:i], m.devices[i+1:]...)
			return
		}
	}
}

// SetError は次回以降のスキャンで返すエラーを設定する
func (m *MockDiscovery) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Scans はスキャンが呼ばれた回数を返す
func (m *MockDiscovery) Scans() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scans
}
