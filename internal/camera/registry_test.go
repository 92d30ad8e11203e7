package camera

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistry_InitialState(t *testing.T) {
	registry := NewRegistry(NewMockDiscovery(), nil)

	snap := registry.Snapshot()
	assert.Empty(t, snap.Devices)
	assert.Equal(t, NoSelection, snap.Selected)
	_, ok := snap.SelectedDevice()
	assert.False(t, ok)
}

func TestRegistry_RefreshEmptyIsNotAnError(t *testing.T) {
	ctx := context.Background()
	a := testDevice("A")
	discovery := NewMockDiscovery(a)
	registry := NewRegistry(discovery, zap.NewNop())

	_, err := registry.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, registry.SelectedIndex())

	discovery.RemoveDevice(a.ID)
	snap, err := registry.Refresh(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Devices)
	assert.Equal(t, NoSelection, snap.Selected)
	assert.Empty(t, registry.DeviceNames())
}

func TestRegistry_RefreshKeepsSelectedDeviceByID(t *testing.T) {
	ctx := context.Background()
	a, b, c := testDevice("A"), testDevice("B"), testDevice("C")
	discovery := NewMockDiscovery(a, b)
	registry := NewRegistry(discovery, zap.NewNop())

	_, err := registry.Refresh(ctx)
	require.NoError(t, err)
	require.True(t, registry.Select(1))

	// B の位置が変わっても B を選択し続ける
	discovery.SetDevices(c, a, b)
	snap, err := registry.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Selected)
	selected, ok := snap.SelectedDevice()
	require.True(t, ok)
	assert.Equal(t, b.ID, selected.ID)
	assert.Equal(t, []string{"Camera C", "Camera A", "Camera B"}, registry.DeviceNames())
}

func TestRegistry_RefreshFallsBackToFirstDevice(t *testing.T) {
	ctx := context.Background()
	a, b, c := testDevice("A"), testDevice("B"), testDevice("C")
	discovery := NewMockDiscovery(a, b)
	registry := NewRegistry(discovery, zap.NewNop())

	_, err := registry.Refresh(ctx)
	require.NoError(t, err)
	require.True(t, registry.Select(1))

	discovery.SetDevices(c, a)
	snap, err := registry.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Selected)
}

func TestRegistry_RefreshErrorKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	a := testDevice("A")
	discovery := NewMockDiscovery(a)
	registry := NewRegistry(discovery, zap.NewNop())

	_, err := registry.Refresh(ctx)
	require.NoError(t, err)

	scanErr := errors.New("sysfs unavailable")
	discovery.SetError(scanErr)
	snap, err := registry.Refresh(ctx)
	require.ErrorIs(t, err, scanErr)
	assert.Equal(t, []Device{a}, snap.Devices)
	assert.Equal(t, 0, snap.Selected)
}

func TestRegistry_Select(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(NewMockDiscovery(testDevice("A"), testDevice("B")), zap.NewNop())
	_, err := registry.Refresh(ctx)
	require.NoError(t, err)

	assert.False(t, registry.Select(2))
	assert.False(t, registry.Select(-1))
	assert.Equal(t, 0, registry.SelectedIndex())

	assert.True(t, registry.Select(1))
	assert.Equal(t, 1, registry.SelectedIndex())
}

func TestRegistry_SnapshotIsNotAffectedByRefresh(t *testing.T) {
	ctx := context.Background()
	discovery := NewMockDiscovery(testDevice("A"), testDevice("B"))
	registry := NewRegistry(discovery, zap.NewNop())
	_, err := registry.Refresh(ctx)
	require.NoError(t, err)

	before := registry.Snapshot()
	discovery.SetDevices(testDevice("C"))
	_, err = registry.Refresh(ctx)
	require.NoError(t, err)

	// 取得済みのスナップショットは変化しない
	assert.Equal(t, []string{"Camera A", "Camera B"}, before.Names())
	assert.Equal(t, []string{"Camera C"}, registry.DeviceNames())
}

// TestRegistry_SelectionFollowsIdentity は並び替え・追加・削除を無作為に繰り返し、
// 選択中のデバイスが残っている限り同じデバイスを指し続けることを確認する
func TestRegistry_SelectionFollowsIdentity(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	pool := make([]Device, 8)
	for i := range pool {
		pool[i] = testDevice(string(rune('A' + i)))
	}

	discovery := NewMockDiscovery(pool[:3]...)
	registry := NewRegistry(discovery, zap.NewNop())
	_, err := registry.Refresh(ctx)
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		before := registry.Snapshot()
		if len(before.Devices) > 0 {
			registry.Select(rng.Intn(len(before.Devices)))
		}
		prev, hadSelection := registry.Snapshot().SelectedDevice()

		next := append([]Device(nil), pool...)
		rng.Shuffle(len(next), func(i, j int) { next[i], next[j] = next[j], next[i] })
		next = next[:rng.Intn(len(next)+1)]
		discovery.SetDevices(next...)

		snap, err := registry.Refresh(ctx)
		require.NoError(t, err)

		if len(next) == 0 {
			require.Equal(t, NoSelection, snap.Selected)
			continue
		}
		require.GreaterOrEqual(t, snap.Selected, 0)
		require.Less(t, snap.Selected, len(next))

		current, _ := snap.SelectedDevice()
		stillPresent := false
		for _, d := range next {
			if hadSelection && d.ID == prev.ID {
				stillPresent = true
			}
		}
		if stillPresent {
			require.Equal(t, prev.ID, current.ID)
		} else {
			require.Equal(t, 0, snap.Selected)
		}
	}
}
