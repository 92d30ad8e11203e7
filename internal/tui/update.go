package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Update はキー入力と定期更新を処理する
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.drain()
		m.sync()
		return m, tickCmd()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.menu.StopSession()
			m.menu.DetachPreview(m.preview)
			return m, tea.Quit

		case "up", "k":
			if len(m.names) > 0 {
				m.cursor = (m.cursor - 1 + len(m.names)) % len(m.names)
			}

		case "down", "j":
			if len(m.names) > 0 {
				m.cursor = (m.cursor + 1) % len(m.names)
			}

		case "enter":
			if m.cursor < len(m.names) && m.cursor != m.current {
				m.menu.SwitchTo(m.cursor)
			}

		case " ", "p":
			if m.running {
				m.menu.StopSession()
			} else {
				m.menu.StartSession()
			}
			m.running = !m.running

		case "m":
			m.mirrored = m.menu.ToggleMirror()

		case "r":
			m.menu.Refresh()
		}
	}

	return m, nil
}
