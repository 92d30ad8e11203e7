package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("0")).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("250")).
			Padding(0, 1)

	itemStyle     = lipgloss.NewStyle().PaddingLeft(2)
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("170")).Bold(true)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))

	previewStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
)

// View はメニューを描画する
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("kagami"))
	b.WriteString("\n\n")

	b.WriteString(m.renderDevices())
	b.WriteString("\n")
	b.WriteString(previewStyle.Render(m.renderPreview()))
	b.WriteString("\n")

	b.WriteString(statusBarStyle.Render(m.status))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("↑/↓: 選択  enter: 切り替え  p: 開始/停止  m: 左右反転  r: 再検出  q: 終了"))
	b.WriteString("\n")

	return b.String()
}

// renderDevices はデバイス一覧を描画する
func (m Model) renderDevices() string {
	if len(m.names) == 0 {
		return itemStyle.Render(dimStyle.Render("(デバイスなし)")) + "\n"
	}

	var b strings.Builder
	for i, name := range m.names {
		marker := "  "
		if i == m.current {
			marker = "● "
		}
		line := marker + name
		switch {
		case i == m.cursor:
			line = cursorStyle.Render("> " + line)
		case i == m.current:
			line = selectedStyle.Render("  " + line)
		default:
			line = "  " + line
		}
		b.WriteString(itemStyle.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

// renderPreview はプレビューの受信状況を描画する
func (m Model) renderPreview() string {
	mirror := "オフ"
	if m.mirrored {
		mirror = "オン"
	}
	access := warningStyle.Render("未許可")
	if m.access {
		access = "許可済み"
	}
	return fmt.Sprintf("フレーム: %d (%d bytes)\n左右反転: %s\nアクセス: %s", m.frames, m.lastSize, mirror, access)
}
