package tui

import (
	"context"
	"strings"

	"fsconsole/internal/docs"
	"fsconsole/internal/filters"
	"fsconsole/internal/model"
	"fsconsole/internal/notify"
	"fsconsole/internal/session"
	"fsconsole/internal/store"
	"fsconsole/internal/tagging"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	"go.uber.org/zap"
)

// Backend is the platform API as the console uses it.
type Backend interface {
	session.Lister
	tagging.TagAPI
	tagging.MetadataAPI
}

type pageTab struct {
	kind   model.Kind
	page   *session.Page
	loaded bool
}

type appModel struct {
	ctx     context.Context
	api     Backend
	store   store.Store
	log     *zap.Logger
	project string

	width  int
	height int

	view  view
	modal modalKind
	input textinput.Model
	// editing is the version an open edit modal applies to.
	editing     model.Item
	editingKind model.Kind

	tabs   []*pageTab
	active int

	rows    list.Model
	layout  *columnLayout
	detail  viewport.Model
	help    viewport.Model
	spinner spinner.Model
	// detailItem is the version shown by the detail view.
	detailItem model.Item

	notes      *notify.Queue
	reconciler *tagging.Reconciler
	editor     *tagging.DetailsEditor

	// status is a transient hint that is not a notification.
	status string
	state  *store.TUIState
}

func newAppModel(ctx context.Context, opts Options) appModel {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	st, err := opts.Store.LoadTUIState()
	if err != nil || st == nil {
		log.Info("tui state unavailable", zap.Error(err))
		st = &store.TUIState{Version: 1}
	}

	project := strings.TrimSpace(opts.Project)
	if project == "" {
		project = st.Project
	}

	m := appModel{
		ctx:     ctx,
		api:     opts.API,
		store:   opts.Store,
		log:     log,
		project: project,
		notes:   notify.NewQueue(20),
		state:   st,
	}
	m.reconciler = &tagging.Reconciler{API: opts.API, Sink: m.notes, Log: log, Events: opts.Activity}
	m.editor = &tagging.DetailsEditor{API: opts.API, Reconciler: m.reconciler, Sink: m.notes, Log: log, Events: opts.Activity}

	start := opts.StartKind
	if k, err := model.ParseKind(st.Page); err == nil && st.Project == project {
		start = k
	}
	if start == "" {
		start = model.KindFeatureSet
	}
	for i, k := range model.AllKinds() {
		m.tabs = append(m.tabs, &pageTab{
			kind: k,
			page: session.NewPage(session.Options{
				Kind:    k,
				Project: project,
				API:     opts.API,
				Filters: savedFilters(st, project, k),
				Logger:  log,
			}),
		})
		if k == start {
			m.active = i
		}
	}

	m.layout = newColumnLayout(nil)
	m.rows = list.New(nil, newRowDelegate(m.layout), 0, 0)
	m.rows.SetShowTitle(false)
	m.rows.SetShowStatusBar(false)
	m.rows.SetShowHelp(false)
	m.rows.SetShowPagination(false)
	m.rows.SetFilteringEnabled(false)
	m.rows.DisableQuitKeybindings()

	m.input = textinput.New()
	m.input.Prompt = ""
	m.input.CharLimit = 256

	m.spinner = spinner.New()
	m.spinner.Spinner = spinner.Dot
	m.detail = viewport.New(0, 0)
	m.help = viewport.New(0, 0)
	return m
}

func savedFilters(st *store.TUIState, project string, kind model.Kind) filters.Values {
	ps, ok := st.PageState(project, string(kind))
	if !ok {
		return filters.Values{}
	}
	v := filters.Values{Tag: ps.Tag, Name: ps.Name, Labels: ps.Labels, Iter: ps.Iter}
	if g, err := model.ParseGroupBy(ps.GroupBy); err == nil {
		v.GroupBy = g
	}
	return v
}

func (m *appModel) tab() *pageTab { return m.tabs[m.active] }

func (m *appModel) tabFor(kind model.Kind) *pageTab {
	for _, t := range m.tabs {
		if t.kind == kind {
			return t
		}
	}
	return nil
}

// refreshRows rebuilds the lines of the active page, keeping the cursor.
func (m *appModel) refreshRows() {
	items := buildRowItems(m.tab().page)
	*m.layout = *newColumnLayout(items)
	idx := m.rows.Index()
	m.rows.SetItems(items)
	if idx >= len(items) {
		idx = len(items) - 1
	}
	if idx >= 0 {
		m.rows.Select(idx)
	}
}

func (m *appModel) selectedRow() (rowItem, bool) {
	ri, ok := m.rows.SelectedItem().(rowItem)
	return ri, ok
}

func (m *appModel) resize() {
	// Tabs, filter line and header above; notification and help lines below.
	h := max(m.height-5, 1)
	m.rows.SetSize(m.width, h)
	m.detail.Width = m.width
	m.detail.Height = max(m.height-3, 1)
	m.help.Width = m.width
	m.help.Height = max(m.height-2, 1)
	m.input.Width = max(modalBodyWidth(m.width)-4, 10)
	switch m.view {
	case viewDetail:
		m.renderDetail()
	case viewHelp:
		m.renderHelp()
	}
}

func (m *appModel) renderHelp() {
	body, _ := docs.Get("console")
	m.help.SetContent(renderMarkdown(body, max(m.width-4, 10)))
}

func (m *appModel) renderDetail() {
	m.detail.SetContent(renderMarkdown(itemMarkdown(m.detailItem), max(m.width-4, 10)))
}

// saveState records the filters of every page. It is best effort.
func (m *appModel) saveState() {
	st := m.state
	st.Project = m.project
	st.Page = string(m.tab().kind)
	for _, t := range m.tabs {
		v := t.page.Filters()
		st.SetPageState(m.project, string(t.kind), store.PageState{
			Tag:     v.Tag,
			Name:    v.Name,
			Labels:  v.Labels,
			Iter:    v.Iter,
			GroupBy: string(v.GroupBy),
		})
	}
	if err := m.store.SaveTUIState(st); err != nil {
		m.log.Warn("saving tui state failed", zap.Error(err))
	}
}

func (m *appModel) close() {
	for _, t := range m.tabs {
		t.page.Close()
	}
}
