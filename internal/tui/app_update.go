package tui

import (
	"context"
	"errors"
	"strings"

	"fsconsole/internal/api"
	"fsconsole/internal/model"
	"fsconsole/internal/notify"
	"fsconsole/internal/session"
	"fsconsole/internal/tagging"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

func (m appModel) Init() tea.Cmd {
	return tea.Batch(m.fetchCmd(m.tab()), m.spinner.Tick)
}

func (m *appModel) fetchCmd(t *pageTab) tea.Cmd {
	run := t.page.StartFetch(m.ctx)
	kind := t.kind
	return func() tea.Msg {
		return fetchDoneMsg{kind: kind, res: run()}
	}
}

func (m *appModel) tagsCmd(t *pageTab) tea.Cmd {
	ctx, b, kind, project := m.ctx, m.api, t.kind, t.page.Project()
	return func() tea.Msg {
		tags, err := b.Tags(ctx, project, kind)
		return tagsDoneMsg{kind: kind, project: project, tags: tags, err: err}
	}
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case fetchDoneMsg:
		return m.applyFetch(msg)

	case tagsDoneMsg:
		t := m.tabFor(msg.kind)
		if t != nil && t.page.Project() == msg.project {
			t.page.ApplyTags(msg.tags, msg.err)
		}
		return m, nil

	case expandDoneMsg:
		if t := m.tabFor(msg.kind); t != nil && t.page.ApplyExpand(msg.res) && t == m.tab() {
			m.refreshRows()
		}
		return m, nil

	case tagDoneMsg:
		return m.applyTagDone(msg)

	case detailsDoneMsg:
		return m.applyDetailsDone(msg)

	case retryDoneMsg:
		if msg.err != nil {
			return m, nil
		}
		// The retried mutation succeeded; refetch so the table shows the backend state.
		return m, m.fetchCmd(m.tab())

	case tea.KeyMsg:
		if m.modal != modalNone {
			return m.updateModal(msg)
		}
		switch m.view {
		case viewDetail:
			return m.updateDetail(msg)
		case viewHelp:
			return m.updateHelp(msg)
		}
		return m.updateTable(msg)
	}
	return m, nil
}

func (m appModel) applyFetch(msg fetchDoneMsg) (tea.Model, tea.Cmd) {
	t := m.tabFor(msg.kind)
	if t == nil {
		return m, nil
	}
	err := t.page.ApplyFetch(msg.res)
	switch {
	case errors.Is(err, session.ErrStale), errors.Is(err, context.Canceled):
		return m, nil
	case err != nil:
		m.notes.Notify(notifyFetchFailed(t.kind, err))
		if t == m.tab() {
			m.refreshRows()
		}
		return m, nil
	}
	t.loaded = true
	if t == m.tab() {
		m.refreshRows()
	}
	return m, m.tagsCmd(t)
}

func (m appModel) applyTagDone(msg tagDoneMsg) (tea.Model, tea.Cmd) {
	t := m.tabFor(msg.kind)
	if t == nil {
		return m, nil
	}
	switch {
	case errors.Is(msg.err, tagging.ErrInFlight):
		m.status = "tag update already in progress for " + msg.original.Name
		t.page.ReplaceItem(msg.original)
	case msg.rejected:
		m.status = msg.err.Error()
		t.page.ReplaceItem(msg.original)
	case msg.err != nil:
		// Roll back the optimistic update; the notification carries the retry.
		t.page.ReplaceItem(msg.original)
	default:
		t.page.ReplaceItem(msg.out.Item)
	}
	m.syncDetail(msg.original, msg.err == nil, msg.out.Item)
	if t == m.tab() {
		m.refreshRows()
	}
	return m, nil
}

func (m appModel) applyDetailsDone(msg detailsDoneMsg) (tea.Model, tea.Cmd) {
	t := m.tabFor(msg.kind)
	if t == nil {
		return m, nil
	}
	if msg.err == nil {
		t.page.ReplaceItem(msg.out.Item)
	}
	m.syncDetail(msg.original, msg.err == nil, msg.out.Item)
	if t == m.tab() {
		m.refreshRows()
	}
	return m, nil
}

// syncDetail re-renders the detail view when it shows the edited version.
func (m *appModel) syncDetail(original model.Item, ok bool, updated model.Item) {
	if m.view != viewDetail || m.detailItem.Version() != original.Version() || m.detailItem.Name != original.Name {
		return
	}
	if ok {
		m.detailItem = updated
	} else {
		m.detailItem = original
	}
	m.renderDetail()
}

func (m appModel) updateTable(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.status = ""
	t := m.tab()
	switch msg.String() {
	case "ctrl+c", "q":
		m.saveState()
		return m, tea.Quit
	case "tab", "right":
		return m.switchTab((m.active + 1) % len(m.tabs))
	case "shift+tab", "left":
		return m.switchTab((m.active - 1 + len(m.tabs)) % len(m.tabs))
	case "1", "2", "3", "4", "5":
		i := int(msg.String()[0] - '1')
		if i < len(m.tabs) {
			return m.switchTab(i)
		}
		return m, nil
	case "r":
		return m, m.fetchCmd(t)
	case "R":
		return m.retryLatest()
	case "x":
		if n, ok := m.notes.Latest(); ok {
			m.notes.Dismiss(n.ID)
		}
		return m, nil
	case "enter", " ":
		return m.activateRow()
	case "d":
		if ri, ok := m.selectedRow(); ok && ri.hasItem() {
			return m.openDetail(ri)
		}
		return m, nil
	case "t":
		return m.openEditTag()
	case "e":
		return m.openEditDescription()
	case "a":
		next := model.TagFilterAll
		if t.page.Filters().EffectiveTag() == model.TagFilterAll {
			next = model.TagLatest
		}
		return m.applyTagFilter(next)
	case "c":
		t.page.ResetFilters(model.TagLatest)
		m.refreshRows()
		return m, m.fetchCmd(t)
	case "f":
		return m.openModal(modalFilterTag, t.page.Filters().EffectiveTag())
	case "/":
		return m.openModal(modalFilterName, t.page.Filters().Name)
	case "l":
		return m.openModal(modalFilterLabels, t.page.Filters().Labels)
	case "p":
		return m.openModal(modalProject, m.project)
	case "?":
		m.view = viewHelp
		m.help.GotoTop()
		m.renderHelp()
		return m, nil
	}

	var cmd tea.Cmd
	m.rows, cmd = m.rows.Update(msg)
	return m, cmd
}

func (m appModel) switchTab(i int) (tea.Model, tea.Cmd) {
	if i == m.active {
		return m, nil
	}
	m.active = i
	m.saveState()
	m.rows.Select(0)
	m.refreshRows()
	if t := m.tab(); !t.loaded && !t.page.Loading() {
		return m, m.fetchCmd(t)
	}
	return m, nil
}

// activateRow toggles a grouped row, or opens the details of a version.
func (m appModel) activateRow() (tea.Model, tea.Cmd) {
	ri, ok := m.selectedRow()
	if !ok || !ri.hasItem() {
		return m, nil
	}
	if !ri.row.Expandable || ri.sub {
		return m.openDetail(ri)
	}
	t := m.tab()
	run, fetch := t.page.StartExpand(ri.row)
	m.refreshRows()
	if !fetch {
		return m, nil
	}
	kind := t.kind
	return m, func() tea.Msg {
		return expandDoneMsg{kind: kind, res: run()}
	}
}

func (m appModel) openDetail(ri rowItem) (tea.Model, tea.Cmd) {
	it := ri.row.Item
	if !ri.sub {
		sel, err := m.tab().page.Select(it.Name, it.Version())
		var nf *session.NotFoundError
		if errors.As(err, &nf) {
			m.status = nf.Error()
			return m, nil
		}
		if err == nil && sel.Name != "" {
			it = sel
		}
	}
	m.detailItem = it
	m.view = viewDetail
	m.detail.GotoTop()
	m.renderDetail()
	return m, nil
}

func (m appModel) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.status = ""
	switch msg.String() {
	case "ctrl+c", "q":
		m.saveState()
		return m, tea.Quit
	case "esc", "backspace":
		m.view = viewTable
		m.tab().page.ClearSelection()
		return m, nil
	case "t":
		return m.openEditTag()
	case "e":
		return m.openEditDescription()
	case "R":
		return m.retryLatest()
	case "x":
		if n, ok := m.notes.Latest(); ok {
			m.notes.Dismiss(n.ID)
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.detail, cmd = m.detail.Update(msg)
	return m, cmd
}

func (m appModel) updateHelp(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.saveState()
		return m, tea.Quit
	case "esc", "backspace", "?":
		m.view = viewTable
		return m, nil
	}
	var cmd tea.Cmd
	m.help, cmd = m.help.Update(msg)
	return m, cmd
}

// editTarget is the version an edit key applies to.
func (m *appModel) editTarget() (model.Item, bool) {
	if m.view == viewDetail {
		return m.detailItem, m.detailItem.Name != ""
	}
	ri, ok := m.selectedRow()
	if !ok || !ri.hasItem() {
		return model.Item{}, false
	}
	return ri.row.Item, true
}

func (m appModel) openEditTag() (tea.Model, tea.Cmd) {
	it, ok := m.editTarget()
	if !ok {
		return m, nil
	}
	if m.reconciler.InFlight(it) {
		m.status = "tag update in progress for " + it.Name
		return m, nil
	}
	m.editing = it
	m.editingKind = m.tab().kind
	return m.openModal(modalEditTag, it.Tag)
}

func (m appModel) openEditDescription() (tea.Model, tea.Cmd) {
	it, ok := m.editTarget()
	if !ok {
		return m, nil
	}
	m.editing = it
	m.editingKind = m.tab().kind
	return m.openModal(modalEditDescription, it.Description)
}

func (m appModel) openModal(kind modalKind, value string) (tea.Model, tea.Cmd) {
	m.modal = kind
	m.input.SetValue(value)
	m.input.CursorEnd()
	return m, m.input.Focus()
}

func (m appModel) updateModal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+g":
		m.closeModal()
		return m, nil
	case "enter":
		kind := m.modal
		value := strings.TrimSpace(m.input.Value())
		m.closeModal()
		return m.submitModal(kind, value)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *appModel) closeModal() {
	m.modal = modalNone
	m.input.Blur()
	m.input.SetValue("")
}

func (m appModel) submitModal(kind modalKind, value string) (tea.Model, tea.Cmd) {
	t := m.tab()
	switch kind {
	case modalEditTag:
		return m.submitTag(value)
	case modalEditDescription:
		return m.submitDescription(value)
	case modalFilterTag:
		return m.applyTagFilter(value)
	case modalFilterName:
		t.page.SetName(value)
		return m, m.fetchCmd(t)
	case modalFilterLabels:
		t.page.SetLabels(value)
		return m, m.fetchCmd(t)
	case modalProject:
		return m.switchProject(value)
	}
	return m, nil
}

func (m appModel) applyTagFilter(tag string) (tea.Model, tea.Cmd) {
	t := m.tab()
	if !t.page.SetTag(tag) {
		return m, nil
	}
	m.refreshRows()
	return m, m.fetchCmd(t)
}

func (m appModel) switchProject(project string) (tea.Model, tea.Cmd) {
	if project == "" || project == m.project {
		return m, nil
	}
	m.project = project
	for _, t := range m.tabs {
		t.page.SetProject(project)
		t.loaded = false
	}
	m.view = viewTable
	m.refreshRows()
	m.saveState()
	m.log.Info("project switched", zap.String("project", project))
	return m, m.fetchCmd(m.tab())
}

// submitTag applies the tag edit optimistically and runs the mutation.
func (m appModel) submitTag(value string) (tea.Model, tea.Cmd) {
	original := m.editing
	changes := tagging.Changes{tagging.FieldTag: {InitialValue: original.Tag, CurrentValue: value}}
	if tagging.Decide(changes).Op == tagging.OpUnchanged {
		return m, nil
	}
	t := m.tabFor(m.editingKind)
	optimistic := original.Clone()
	optimistic.Tag = value
	t.page.ReplaceItem(optimistic)
	if m.view == viewDetail {
		m.detailItem = optimistic
		m.renderDetail()
	}
	if t == m.tab() {
		m.refreshRows()
	}

	ctx, r, b, kind, project := m.ctx, m.reconciler, m.api, t.kind, t.page.Project()
	return m, func() tea.Msg {
		if err := tagging.CheckTag(ctx, b, project, original, value); err != nil {
			return tagDoneMsg{kind: kind, original: original, err: err, rejected: true}
		}
		out, err := r.Apply(ctx, changes, original, project)
		return tagDoneMsg{kind: kind, original: original, out: out, err: err}
	}
}

func (m appModel) submitDescription(value string) (tea.Model, tea.Cmd) {
	original := m.editing
	if value == strings.TrimSpace(original.Description) {
		return m, nil
	}
	t := m.tabFor(m.editingKind)
	changes := tagging.Changes{tagging.FieldDescription: {InitialValue: original.Description, CurrentValue: value}}
	ctx, ed, kind, project := m.ctx, m.editor, t.kind, t.page.Project()
	return m, func() tea.Msg {
		out, err := ed.Apply(ctx, changes, original, project)
		return detailsDoneMsg{kind: kind, original: original, out: out, err: err}
	}
}

// retryLatest runs the retry action of the newest notification, at most once.
func (m appModel) retryLatest() (tea.Model, tea.Cmd) {
	n, ok := m.notes.Latest()
	if !ok || !n.Retryable() {
		return m, nil
	}
	retry, ok := m.notes.TakeRetry(n.ID)
	if !ok {
		return m, nil
	}
	ctx := m.ctx
	return m, func() tea.Msg {
		return retryDoneMsg{err: retry(ctx)}
	}
}

func notifyFetchFailed(kind model.Kind, err error) notify.Notification {
	return notify.New(api.StatusCode(err), "Failed to fetch "+kind.Label()+": "+err.Error(), nil)
}
