package tui

import (
	"fmt"
	"io"
	"strings"

	"fsconsole/internal/content"
	"fsconsole/internal/expand"
	"fsconsole/internal/session"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"
)

const (
	maxColumnWidth = 32
	subRowIndent   = 2
)

// rowItem is one line of the table: a top-level row, a version row under an
// expanded row, or a placeholder line (loading, failed, empty).
type rowItem struct {
	row      content.Row
	sub      bool
	expanded bool
	note     string
	failed   bool
}

func (r rowItem) FilterValue() string { return r.row.Item.Name }

// hasItem reports whether the line stands for an item version.
func (r rowItem) hasItem() bool { return r.note == "" }

// buildRowItems flattens the page table and its expansion state into lines.
func buildRowItems(p *session.Page) []list.Item {
	var out []list.Item
	for _, r := range p.Table() {
		st := p.Expansion(r.Identifier)
		out = append(out, rowItem{row: r, expanded: r.Expandable && st.Expanded()})
		if !r.Expandable || !st.Expanded() {
			continue
		}
		switch st.Phase {
		case expand.Loading:
			out = append(out, rowItem{row: r, sub: true, note: "loading versions…"})
		case expand.Failed:
			msg := "failed to load versions"
			if st.Err != nil {
				msg += ": " + st.Err.Error()
			}
			out = append(out, rowItem{row: r, sub: true, note: msg, failed: true})
		case expand.Loaded:
			if len(st.Content) == 0 {
				out = append(out, rowItem{row: r, sub: true, note: "no versions"})
			}
			for _, sr := range st.Content {
				out = append(out, rowItem{row: sr, sub: true})
			}
		}
	}
	return out
}

// columnLayout holds the width of each visible column by cell id.
type columnLayout struct {
	ids    []string
	header map[string]string
	width  map[string]int
}

func newColumnLayout(items []list.Item) *columnLayout {
	l := &columnLayout{header: map[string]string{}, width: map[string]int{}}
	for _, li := range items {
		ri, ok := li.(rowItem)
		if !ok || !ri.hasItem() {
			continue
		}
		for _, c := range ri.row.Cells {
			if c.Hidden {
				continue
			}
			if !ri.sub {
				if _, seen := l.header[c.ID]; !seen {
					l.ids = append(l.ids, c.ID)
					l.header[c.ID] = c.Header
					l.width[c.ID] = xansi.StringWidth(c.Header)
				}
			}
			l.width[c.ID] = min(max(l.width[c.ID], xansi.StringWidth(c.Value)), maxColumnWidth)
		}
	}
	return l
}

// versionWidth is the width of a version cell, which spans the name and tag columns.
func (l *columnLayout) versionWidth() int {
	w := l.width["name"] - subRowIndent
	if tw, ok := l.width["tag"]; ok {
		w += 1 + tw
	}
	return max(w, l.width["version"])
}

func (l *columnLayout) headerLine() string {
	parts := make([]string, 0, len(l.ids))
	for _, id := range l.ids {
		parts = append(parts, fitLine(l.header[id], l.width[id]))
	}
	return "  " + strings.Join(parts, " ")
}

func (l *columnLayout) line(ri rowItem) string {
	marker := "  "
	if ri.row.Expandable && !ri.sub {
		marker = "▸ "
		if ri.expanded {
			marker = "▾ "
		}
	}
	if ri.sub {
		marker += strings.Repeat(" ", subRowIndent)
	}
	if !ri.hasItem() {
		return marker + ri.note
	}
	var parts []string
	for _, c := range ri.row.Cells {
		if c.Hidden {
			continue
		}
		w := l.width[c.ID]
		if c.ID == "version" {
			w = l.versionWidth()
		}
		parts = append(parts, fitLine(c.Value, w))
	}
	return marker + strings.Join(parts, " ")
}

type rowDelegate struct {
	layout   *columnLayout
	normal   lipgloss.Style
	selected lipgloss.Style
	note     lipgloss.Style
	failed   lipgloss.Style
}

func newRowDelegate(layout *columnLayout) rowDelegate {
	return rowDelegate{
		layout: layout,
		normal: lipgloss.NewStyle().Foreground(colorSurfaceFg),
		selected: lipgloss.NewStyle().
			Foreground(colorSelectedFg).
			Background(colorSelectedBg).
			Bold(true),
		note:   styleMuted(),
		failed: lipgloss.NewStyle().Foreground(colorErrorFg),
	}
}

func (d rowDelegate) Height() int  { return 1 }
func (d rowDelegate) Spacing() int { return 0 }
func (d rowDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

func (d rowDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	contentW := m.Width()
	ri, ok := item.(rowItem)
	if contentW < 4 || !ok {
		fmt.Fprint(w, "")
		return
	}

	style := d.normal
	switch {
	case index == m.Index():
		style = d.selected
	case ri.failed:
		style = d.failed
	case !ri.hasItem():
		style = d.note
	}
	fmt.Fprint(w, style.Render(fitLine(d.layout.line(ri), contentW)))
}
