package camera

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeV4L2Tree は sysfs と /dev を模したディレクトリを作る
type fakeV4L2Tree struct {
	t       *testing.T
	root    string
	sysRoot string
	devRoot string
}

func newFakeV4L2Tree(t *testing.T) *fakeV4L2Tree {
	t.Helper()
	root := t.TempDir()
	tree := &fakeV4L2Tree{
		t:       t,
		root:    root,
		sysRoot: filepath.Join(root, "sys", "class", "video4linux"),
		devRoot: filepath.Join(root, "dev"),
	}
	tree.mkdir(tree.sysRoot)
	tree.mkdir(tree.devRoot)
	return tree
}

func (f *fakeV4L2Tree) mkdir(path string) {
	f.t.Helper()
	require.NoError(f.t, os.MkdirAll(path, 0o755))
}

func (f *fakeV4L2Tree) write(path, content string) {
	f.t.Helper()
	f.mkdir(filepath.Dir(path))
	require.NoError(f.t, os.WriteFile(path, []byte(content+"\n"), 0o644))
}

func (f *fakeV4L2Tree) symlink(target, link string) {
	f.t.Helper()
	f.mkdir(filepath.Dir(link))
	require.NoError(f.t, os.Symlink(target, link))
}

// addNode は videoN ノードを追加する。usbDevice が空でなければ
// その USB デバイス配下のインターフェースを device として紐付ける
func (f *fakeV4L2Tree) addNode(node, name, index, usbDevice, removable string) {
	f.t.Helper()
	sysDir := filepath.Join(f.sysRoot, node)
	f.write(filepath.Join(sysDir, "name"), name)
	f.write(filepath.Join(sysDir, "index"), index)
	f.write(filepath.Join(f.devRoot, node), "")

	if usbDevice != "" {
		usbDir := filepath.Join(f.root, "sys", "devices", "usb1", usbDevice)
		iface := filepath.Join(usbDir, usbDevice+":1.0")
		f.mkdir(iface)
		if removable != "" {
			f.write(filepath.Join(usbDir, "removable"), removable)
		}
		f.symlink(iface, filepath.Join(sysDir, "device"))
	}
}

func TestLinuxDiscovery_ScanDevices(t *testing.T) {
	tree := newFakeV4L2Tree(t)
	tree.addNode("video0", "Integrated Camera", "0", "1-5", "fixed")
	tree.addNode("video1", "Integrated Camera", "1", "1-5", "fixed") // メタデータ用ノード
	tree.addNode("video2", "Logitech BRIO", "0", "2-1", "removable")
	tree.addNode("video10", "Capture Card", "0", "", "")

	// BRIO はサスペンド中
	tree.write(filepath.Join(tree.root, "sys", "devices", "usb1", "2-1", "2-1:1.0", "power", "runtime_status"), "suspended")

	// 安定ID
	tree.symlink("../../video0", filepath.Join(tree.devRoot, "v4l", "by-path", "pci-0000:00:14.0-usb-0:5:1.0-video-index0"))
	tree.symlink("../../video2", filepath.Join(tree.devRoot, "v4l", "by-path", "pci-0000:00:14.0-usb-0:1:1.0-video-index0"))
	tree.symlink("../../video2", filepath.Join(tree.devRoot, "v4l", "by-id", "usb-Logitech_BRIO_1234-video-index0"))

	discovery := NewLinuxDiscovery(tree.sysRoot, tree.devRoot, nil)
	devices, err := discovery.ScanDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 3)

	assert.Equal(t, Device{
		ID:       "by-path/pci-0000:00:14.0-usb-0:5:1.0-video-index0",
		Name:     "Integrated Camera",
		Path:     filepath.Join(tree.devRoot, "video0"),
		State:    ConnectivityConnected,
		Position: PositionFront,
	}, devices[0])

	// by-id が by-path より優先される
	assert.Equal(t, Device{
		ID:       "by-id/usb-Logitech_BRIO_1234-video-index0",
		Name:     "Logitech BRIO",
		Path:     filepath.Join(tree.devRoot, "video2"),
		State:    ConnectivitySuspended,
		Position: PositionExternal,
	}, devices[1])

	// 安定IDが無い場合はノードのパス
	assert.Equal(t, filepath.Join(tree.devRoot, "video10"), devices[2].ID)
	assert.Equal(t, "Capture Card", devices[2].Name)
	assert.Equal(t, PositionUnspecified, devices[2].Position)
}

func TestLinuxDiscovery_DeviceClasses(t *testing.T) {
	tree := newFakeV4L2Tree(t)
	tree.addNode("video0", "Integrated Camera", "0", "1-5", "fixed")
	tree.addNode("video2", "Logitech BRIO", "0", "2-1", "removable")

	testCases := []struct {
		name    string
		classes []DeviceClass
		want    []string
	}{
		{name: "both", classes: nil, want: []string{"Integrated Camera", "Logitech BRIO"}},
		{name: "builtin only", classes: []DeviceClass{ClassBuiltIn}, want: []string{"Integrated Camera"}},
		{name: "external only", classes: []DeviceClass{ClassExternal}, want: []string{"Logitech BRIO"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			discovery := NewLinuxDiscovery(tree.sysRoot, tree.devRoot, tc.classes)
			devices, err := discovery.ScanDevices(context.Background())
			require.NoError(t, err)

			var names []string
			for _, d := range devices {
				names = append(names, d.Name)
			}
			assert.Equal(t, tc.want, names)
		})
	}
}

func TestLinuxDiscovery_SkipsMissingNodes(t *testing.T) {
	tree := newFakeV4L2Tree(t)
	tree.addNode("video0", "", "0", "", "")
	tree.addNode("video3", "Gone", "0", "", "")
	require.NoError(t, os.Remove(filepath.Join(tree.devRoot, "video3")))

	discovery := NewLinuxDiscovery(tree.sysRoot, tree.devRoot, nil)
	devices, err := discovery.ScanDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)

	// 名前が無い場合は番号から生成する
	assert.Equal(t, "カメラ 0", devices[0].Name)
}

func TestLinuxDiscovery_NoSubsystem(t *testing.T) {
	root := t.TempDir()
	discovery := NewLinuxDiscovery(filepath.Join(root, "missing"), root, nil)

	devices, err := discovery.ScanDevices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestLinuxDiscovery_CancelledContext(t *testing.T) {
	tree := newFakeV4L2Tree(t)
	tree.addNode("video0", "Integrated Camera", "0", "", "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	discovery := NewLinuxDiscovery(tree.sysRoot, tree.devRoot, nil)
	_, err := discovery.ScanDevices(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseDeviceClass(t *testing.T) {
	c, err := ParseDeviceClass(" External ")
	require.NoError(t, err)
	assert.Equal(t, ClassExternal, c)

	_, err = ParseDeviceClass("virtual")
	assert.Error(t, err)
}

func TestMockDiscovery_AddRemoveDevice(t *testing.T) {
	ctx := context.Background()
	a, b := testDevice("A"), testDevice("B")
	discovery := NewMockDiscovery(a)

	discovery.AddDevice(b)
	discovery.AddDevice(b) // 重複は無視
	devices, err := discovery.ScanDevices(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Device{a, b}, devices)

	discovery.RemoveDevice(a.ID)
	devices, err = discovery.ScanDevices(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Device{b}, devices)
	assert.Equal(t, 2, discovery.Scans())
}
