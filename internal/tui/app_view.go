package tui

import (
	"fmt"
	"strings"

	"fsconsole/internal/model"

	"github.com/charmbracelet/lipgloss"
)

const (
	helpTable  = "enter: expand/open  t: tag  e: description  a: all tags  f: tag filter  /: name  l: labels  c: clear  p: project  r: refresh  R: retry  ?: keys  q: quit"
	helpDetail = "esc: back  t: tag  e: description  ↑/↓: scroll  R: retry  q: quit"
	helpHelp   = "esc/?: back  ↑/↓: scroll  q: quit"
)

func (m appModel) View() string {
	if m.width <= 0 || m.height <= 0 {
		return ""
	}
	if m.modal != modalNone {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.viewModal())
	}
	switch m.view {
	case viewDetail:
		return m.viewDetailPane()
	case viewHelp:
		return strings.Join([]string{
			styleHeader().Render(fitLine("Keys", m.width)),
			normalizePane(m.help.View(), m.width, max(m.height-2, 1)),
			styleMuted().Render(fitLine(helpHelp, m.width)),
		}, "\n")
	}
	return m.viewTablePane()
}

func (m appModel) viewTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, t := range m.tabs {
		parts = append(parts, styleTab(i == m.active).Render(fmt.Sprintf("%d %s", i+1, t.kind.Label())))
	}
	return fitLine(lipgloss.JoinHorizontal(lipgloss.Top, parts...), m.width)
}

func (m appModel) viewFilterLine() string {
	t := m.tab()
	v := t.page.Filters()
	project := m.project
	if project == "" {
		project = "(no project)"
	}
	parts := []string{
		"project: " + project,
		"tag: " + v.EffectiveTag(),
		"group: " + string(v.GroupBy),
	}
	if v.Name != "" {
		parts = append(parts, "name: "+v.Name)
	}
	if v.Labels != "" {
		parts = append(parts, "labels: "+v.Labels)
	}
	if v.Iter != "" {
		parts = append(parts, "iter: "+v.Iter)
	}
	line := strings.Join(parts, "  ")
	if t.page.Loading() {
		line += "  " + m.spinner.View() + " loading"
	}
	return styleMuted().Render(fitLine(line, m.width))
}

func (m appModel) viewTablePane() string {
	lines := []string{m.viewTabs(), m.viewFilterLine()}
	t := m.tab()
	switch {
	case len(m.rows.Items()) > 0:
		lines = append(lines, styleHeader().Render(fitLine(m.layout.headerLine(), m.width)))
		lines = append(lines, normalizePane(m.rows.View(), m.width, max(m.height-5, 1)))
	case t.page.Loading():
		lines = append(lines, "", normalizePane(styleMuted().Render(" loading "+t.kind.Label()+"…"), m.width, max(m.height-5, 1)))
	case t.page.Err() != nil:
		lines = append(lines, "", normalizePane(styleStatus(true).Render(" "+t.page.Err().Error()), m.width, max(m.height-5, 1)))
	default:
		lines = append(lines, "", normalizePane(styleMuted().Render(" no "+t.kind.Label()+" match the filters"), m.width, max(m.height-5, 1)))
	}
	lines = append(lines, m.viewNotification(), styleMuted().Render(fitLine(helpTable, m.width)))
	return strings.Join(lines, "\n")
}

func (m appModel) viewDetailPane() string {
	title := styleHeader().Render(fitLine(m.detailItem.Kind.Label()+" / "+m.detailItem.Name, m.width))
	return strings.Join([]string{
		title,
		normalizePane(m.detail.View(), m.width, max(m.height-3, 1)),
		m.viewNotification(),
		styleMuted().Render(fitLine(helpDetail, m.width)),
	}, "\n")
}

// viewNotification renders the status hint, or the newest notification.
func (m appModel) viewNotification() string {
	if m.status != "" {
		return styleMuted().Render(fitLine(m.status, m.width))
	}
	n, ok := m.notes.Latest()
	if !ok {
		return ""
	}
	line := fmt.Sprintf("[%d] %s", n.Status, n.Message)
	if n.Retryable() {
		line += "  (R: retry, x: dismiss)"
	}
	return styleStatus(n.Failed()).Render(fitLine(line, m.width))
}

func (m appModel) viewModal() string {
	bodyW := modalBodyWidth(m.width)
	var hint string
	switch m.modal {
	case modalEditTag:
		hint = fmt.Sprintf("%s %s (currently %q). Empty deletes the tag.", m.editing.Kind.Label(), m.editing.Name, m.editing.Tag)
	case modalEditDescription:
		hint = fmt.Sprintf("%s %s", m.editing.Kind.Label(), m.editing.Name)
	case modalFilterTag:
		hint = "'" + model.TagFilterAll + "' shows all tags. Options: " + strings.Join(m.tab().page.Filters().TagOptions, ", ")
	case modalFilterLabels:
		hint = "key=value,key2"
	case modalProject:
		hint = "Switching project discards every page."
	}
	body := strings.Join([]string{
		styleMuted().Width(bodyW).Render(hint),
		"",
		renderInputLine(bodyW, m.input.View()),
		"",
		styleMuted().Width(bodyW).Render("enter: apply   esc/ctrl+g: cancel"),
	}, "\n")
	return renderModalBox(m.width, m.modal.title(), body)
}
