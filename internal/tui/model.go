// Package tui はターミナル上のカメラメニュー
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"kagami/internal/camera"
)

// refreshInterval はメニュー表示を更新する間隔
const refreshInterval = 200 * time.Millisecond

// previewBuffer はプレビューが保持するフレーム数
const previewBuffer = 4

// Menu はメニューから操作するアプリケーションの窓口
type Menu interface {
	DeviceNames() []string
	CurrentDeviceIndex() int
	HasCameraAccess() bool
	IsMirrored() bool
	Status() string

	SwitchTo(index int)
	StartSession()
	StopSession()
	ToggleMirror() bool
	Refresh()
	AttachPreview(p *camera.Preview)
	DetachPreview(p *camera.Preview)
}

type tickMsg time.Time

// Model はメニューの表示状態
type Model struct {
	menu    Menu
	preview *camera.Preview

	width  int
	height int

	cursor   int
	names    []string
	current  int
	status   string
	mirrored bool
	access   bool
	running  bool
	frames   uint64
	lastSize int
}

// New は Menu を表示するModelを作成する
func New(menu Menu) Model {
	m := Model{
		menu:    menu,
		preview: camera.NewPreview(previewBuffer),
		current: camera.NoSelection,
		running: true, // Init で開始する
	}
	m.sync()
	return m
}

// Init はプレビューを付けてセッションを開始する
// メニューを開いている間だけセッションを動かす
func (m Model) Init() tea.Cmd {
	m.menu.AttachPreview(m.preview)
	m.menu.StartSession()
	return tickCmd()
}

// sync はアプリケーションの公開状態を取り込む
func (m *Model) sync() {
	m.names = m.menu.DeviceNames()
	m.current = m.menu.CurrentDeviceIndex()
	m.status = m.menu.Status()
	m.mirrored = m.menu.IsMirrored()
	m.access = m.menu.HasCameraAccess()

	if m.cursor >= len(m.names) {
		m.cursor = len(m.names) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// drain は溜まったフレームを読み捨てて数だけ数える
func (m *Model) drain() {
	for {
		select {
		case frame := <-m.preview.Frames():
			m.frames++
			m.lastSize = len(frame)
		default:
			return
		}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
