package ui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/nagiyu/niconico-mylist-assistant/internal/cache"
	"github.com/nagiyu/niconico-mylist-assistant/internal/models"
	"github.com/nagiyu/niconico-mylist-assistant/internal/services"
	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
	"github.com/nagiyu/niconico-mylist-assistant/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ListView ViewState = iota
	EditView
	ConfirmDeleteView
	SearchView
	AutoView
	ProgressView
	ResultView
)

// form field positions
const (
	editID = iota
	editTitle
	editMemo
	editFavorite
	editSkip
)

const (
	autoCount = iota
	autoEmail
	autoPassword
	autoTitle
)

// DefaultAutoCount pre-fills the auto-registration form.
const DefaultAutoCount = 10

// Model represents the TUI application state.
type Model struct {
	ctx        context.Context
	controller *cache.Controller
	engine     *tasks.Engine
	lookup     services.VideoLookup

	view   ViewState
	width  int
	height int

	query     cache.Query
	page      cache.PageResult
	entries   list.Model
	filter    textinput.Model
	filtering bool

	editing models.MergedMusicView
	edit    *form

	keyword   textinput.Model
	results   list.Model
	searching bool

	auto         *form
	progressChan chan tasks.ProgressUpdate
	doneChan     chan Msg
	progress     tasks.ProgressUpdate
	autoResult   *tasks.AutoRegisterResult

	status string
	err    error
	fatal  error
	help   help.Model
	keys   keyMap
}

// NewModel creates a TUI over the engine's controller. lookup may be nil to disable search.
func NewModel(ctx context.Context, engine *tasks.Engine, lookup services.VideoLookup) *Model {
	return &Model{
		ctx:        ctx,
		controller: engine.Controller(),
		engine:     engine,
		lookup:     lookup,
		view:       ListView,
		entries:    newList(nil, "Music"),
		results:    newList(nil, "Search results"),
		filter:     newInput("/ ", "id prefix or title"),
		keyword:    newInput("search: ", "keyword"),
		help:       help.New(),
		keys:       newKeyMap(),
	}
}

// Init syncs the cache with the backend.
func (m *Model) Init() tea.Cmd {
	return m.sync()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.entries.SetSize(msg.Width-4, msg.Height-10)
		m.results.SetSize(msg.Width-4, msg.Height-10)
		return m, nil

	case tea.KeyMsg:
		if m.fatal != nil {
			return m, tea.Quit
		}
		switch m.view {
		case ListView:
			return m.handleListKeys(msg)
		case EditView:
			return m.handleEditKeys(msg)
		case ConfirmDeleteView:
			return m.handleConfirmKeys(msg)
		case SearchView:
			return m.handleSearchKeys(msg)
		case AutoView:
			return m.handleAutoKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}
		return m, nil

	case Msg:
		return m.handleMsg(msg)
	}

	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	if msg.err != nil && errors.Is(msg.err, shared.ErrUnauthorized) {
		m.fatal = fmt.Errorf("session expired, run `nma auth login`: %w", msg.err)
		return m, nil
	}

	switch msg.kind {
	case MsgSynced:
		if msg.err != nil {
			if !m.controller.Populated() {
				m.fatal = msg.err
				return m, nil
			}
			m.fail(msg.err)
			return m, nil
		}
		m.status = fmt.Sprintf("synced %d entries", m.controller.Len())
		m.err = nil
		m.refresh()

	case MsgSaved:
		if msg.err != nil {
			m.fail(msg.err)
			return m, nil
		}
		view := msg.data.(models.MergedMusicView)
		m.status = fmt.Sprintf("saved %s", view.ExternalID)
		m.err = nil
		if m.view == EditView {
			m.view = ListView
		}
		m.refresh()

	case MsgDeleted:
		m.view = ListView
		if msg.err != nil {
			m.fail(msg.err)
			return m, nil
		}
		m.status = "deleted"
		m.err = nil
		m.refresh()

	case MsgSearched:
		m.searching = false
		if msg.err != nil {
			m.fail(msg.err)
			m.results.SetItems(nil)
			return m, nil
		}
		results := msg.data.([]services.SearchResult)
		items := make([]list.Item, len(results))
		for i, r := range results {
			items[i] = resultItem{result: r}
		}
		m.err = nil
		m.status = fmt.Sprintf("%d results", len(results))
		m.keyword.Blur()
		return m, m.results.SetItems(items)

	case MsgProgressUpdate:
		m.progress = msg.data.(tasks.ProgressUpdate)
		return m, m.waitForProgress()

	case MsgAutoRegistered:
		m.progressChan = nil
		m.doneChan = nil
		m.view = ResultView
		m.err = msg.err
		if msg.err == nil {
			m.autoResult = msg.data.(*tasks.AutoRegisterResult)
		}
	}
	return m, nil
}

func (m *Model) fail(err error) {
	m.err = err
	m.status = ""
}

// refresh re-reads the current page from the cache, clamping the page number.
func (m *Model) refresh() {
	page := m.page.Page
	m.page = m.controller.Page(m.query, page)
	items := make([]list.Item, len(m.page.Items))
	for i, v := range m.page.Items {
		items[i] = entryItem{view: v}
	}
	idx := m.entries.Index()
	m.entries.SetItems(items)
	if idx >= len(items) {
		idx = len(items) - 1
	}
	if idx >= 0 {
		m.entries.Select(idx)
	}
}

func (m *Model) selected() (models.MergedMusicView, bool) {
	item, ok := m.entries.SelectedItem().(entryItem)
	if !ok {
		return models.MergedMusicView{}, false
	}
	return item.view, true
}

func nextFlag(f cache.FlagFilter) cache.FlagFilter {
	return (f + 1) % 3
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filtering {
		switch msg.String() {
		case "enter":
			m.filtering = false
			m.filter.Blur()
			m.query.Term = m.filter.Value()
			m.page.Page = 1
			m.refresh()
			return m, nil
		case "esc":
			m.filtering = false
			m.filter.Blur()
			m.filter.SetValue(m.query.Term)
			return m, nil
		}
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.filter):
		m.filtering = true
		return m, m.filter.Focus()
	case key.Matches(msg, m.keys.favFlt):
		m.query.Favorite = nextFlag(m.query.Favorite)
		m.page.Page = 1
		m.refresh()
		return m, nil
	case key.Matches(msg, m.keys.skipFlt):
		m.query.Skip = nextFlag(m.query.Skip)
		m.page.Page = 1
		m.refresh()
		return m, nil
	case key.Matches(msg, m.keys.prevPage):
		m.page.Page--
		m.refresh()
		m.entries.Select(0)
		return m, nil
	case key.Matches(msg, m.keys.nextPage):
		m.page.Page++
		m.refresh()
		m.entries.Select(0)
		return m, nil
	case key.Matches(msg, m.keys.sync):
		m.status = "syncing..."
		return m, m.sync()
	case key.Matches(msg, m.keys.create):
		return m, m.openEdit(models.MergedMusicView{})
	case key.Matches(msg, m.keys.edit):
		if v, ok := m.selected(); ok {
			return m, m.openEdit(v)
		}
		return m, nil
	case key.Matches(msg, m.keys.remove):
		if v, ok := m.selected(); ok {
			m.editing = v
			m.view = ConfirmDeleteView
		}
		return m, nil
	case key.Matches(msg, m.keys.favorite):
		if v, ok := m.selected(); ok {
			v.Favorite = !v.Favorite
			return m, m.save(v)
		}
		return m, nil
	case key.Matches(msg, m.keys.skip):
		if v, ok := m.selected(); ok {
			v.Skip = !v.Skip
			return m, m.save(v)
		}
		return m, nil
	case key.Matches(msg, m.keys.search):
		if m.lookup == nil {
			m.fail(fmt.Errorf("%w: search is not configured", shared.ErrServiceUnavailable))
			return m, nil
		}
		m.view = SearchView
		m.err = nil
		return m, m.keyword.Focus()
	case key.Matches(msg, m.keys.auto):
		m.view = AutoView
		m.err = nil
		return m, m.openAuto()
	}

	var cmd tea.Cmd
	m.entries, cmd = m.entries.Update(msg)
	return m, cmd
}

func (m *Model) openEdit(v models.MergedMusicView) tea.Cmd {
	m.editing = v
	m.edit = newForm(
		textField("id", v.ExternalID, "sm12345"),
		textField("title", v.Title, ""),
		textField("memo", v.Memo, ""),
		checkField("favorite", v.Favorite),
		checkField("skip", v.Skip),
	)
	m.err = nil
	m.view = EditView
	return m.edit.setFocus(editID)
}

func (m *Model) handleEditKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.view = ListView
		m.err = nil
		return m, nil
	case "tab", "down":
		return m, m.edit.next()
	case "shift+tab", "up":
		return m, m.edit.prev()
	case " ":
		if m.edit.toggle() {
			return m, nil
		}
	case "enter":
		v := m.editing
		v.ExternalID = m.edit.value(editID)
		v.Title = m.edit.value(editTitle)
		v.Memo = m.edit.value(editMemo)
		v.Favorite = m.edit.checked(editFavorite)
		v.Skip = m.edit.checked(editSkip)
		if err := models.ValidateMusic(v.ExternalID, v.Title); err != nil {
			m.fail(err)
			return m, nil
		}
		return m, m.save(v)
	}
	return m, m.edit.update(msg)
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		return m, m.remove(m.editing)
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.quit):
		m.view = ListView
	}
	return m, nil
}

func (m *Model) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	if m.keyword.Focused() {
		switch msg.String() {
		case "esc":
			m.view = ListView
			m.keyword.Blur()
			return m, nil
		case "enter":
			kw := strings.TrimSpace(m.keyword.Value())
			if kw == "" || m.searching {
				return m, nil
			}
			m.searching = true
			m.status = "searching..."
			return m, m.runSearch(kw)
		}
		var cmd tea.Cmd
		m.keyword, cmd = m.keyword.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "esc", "/":
		return m, m.keyword.Focus()
	case "enter":
		if item, ok := m.results.SelectedItem().(resultItem); ok {
			return m, m.searchAdd(item.result)
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.results, cmd = m.results.Update(msg)
	return m, cmd
}

func (m *Model) openAuto() tea.Cmd {
	m.auto = newForm(
		textField("count", strconv.Itoa(DefaultAutoCount), ""),
		textField("email", "", "niconico account email"),
		passwordField("password"),
		textField("mylist", "", "CustomMylist_YYYYMMDD_HHMMSS"),
	)
	m.autoResult = nil
	return m.auto.setFocus(autoCount)
}

func (m *Model) handleAutoKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.view = ListView
		m.err = nil
		return m, nil
	case "tab", "down":
		return m, m.auto.next()
	case "shift+tab", "up":
		return m, m.auto.prev()
	case "enter":
		count, err := strconv.Atoi(m.auto.value(autoCount))
		if err != nil {
			m.fail(fmt.Errorf("%w: count must be a number", shared.ErrInvalidInput))
			return m, nil
		}
		req := tasks.AutoRegisterRequest{
			Count:    count,
			Email:    m.auto.value(autoEmail),
			Password: m.auto.value(autoPassword),
			Title:    m.auto.value(autoTitle),
		}
		m.view = ProgressView
		m.err = nil
		return m, m.startAutoRegister(req)
	}
	return m, m.auto.update(msg)
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.submit):
		m.view = ListView
		m.err = nil
		m.refresh()
	}
	return m, nil
}

func (m *Model) sync() tea.Cmd {
	return func() tea.Msg {
		return syncedMsg(m.controller.Sync(m.ctx))
	}
}

func (m *Model) save(v models.MergedMusicView) tea.Cmd {
	return func() tea.Msg {
		if v.CommonID == "" {
			view, err := m.controller.Create(m.ctx, models.MusicInput{
				ExternalID: v.ExternalID,
				Title:      v.Title,
				Favorite:   v.Favorite,
				Skip:       v.Skip,
				Memo:       v.Memo,
			})
			return savedMsg(view, err)
		}
		view, err := m.controller.Update(m.ctx, v)
		return savedMsg(view, err)
	}
}

func (m *Model) remove(v models.MergedMusicView) tea.Cmd {
	return func() tea.Msg {
		return deletedMsg(v.CommonID, m.controller.Delete(m.ctx, v.CommonID, v.UserSettingID))
	}
}

func (m *Model) runSearch(keyword string) tea.Cmd {
	return func() tea.Msg {
		results, err := m.lookup.Search(m.ctx, keyword, 0)
		return searchedMsg(results, err)
	}
}

func (m *Model) searchAdd(r services.SearchResult) tea.Cmd {
	return func() tea.Msg {
		view, err := m.controller.SearchAdd(m.ctx, r.ContentID, r.Title)
		return savedMsg(view, err)
	}
}

func (m *Model) startAutoRegister(req tasks.AutoRegisterRequest) tea.Cmd {
	progress := make(chan tasks.ProgressUpdate, 16)
	done := make(chan Msg, 1)
	m.progressChan = progress
	m.doneChan = done

	go func() {
		result, err := m.engine.AutoRegister(m.ctx, progress, req)
		close(progress)
		done <- autoRegisteredMsg(result, err)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressChan, m.doneChan
	return func() tea.Msg {
		if update, ok := <-progress; ok {
			return progressUpdateMsg(update)
		}
		return <-done
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.fatal != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress any key to quit", m.fatal))
	}

	var body string
	switch m.view {
	case ListView:
		body = m.renderList()
	case EditView:
		body = m.renderEdit()
	case ConfirmDeleteView:
		body = m.renderConfirm()
	case SearchView:
		body = m.renderSearch()
	case AutoView:
		body = m.renderAuto()
	case ProgressView:
		body = m.renderProgress()
	case ResultView:
		body = m.renderResult()
	}

	return body + "\n" + m.renderStatus()
}

func (m *Model) renderStatus() string {
	if m.err != nil {
		return styles.err.Render(m.err.Error())
	}
	if m.status != "" {
		return styles.help.Render(m.status)
	}
	return ""
}

func (m *Model) renderList() string {
	header := fmt.Sprintf("page %d/%d • %d entries • ★ %s • skip %s",
		m.page.Page, m.page.TotalPages, m.page.TotalItems, m.query.Favorite, m.query.Skip)
	if m.query.Term != "" {
		header += fmt.Sprintf(" • %q", m.query.Term)
	}

	var filter string
	if m.filtering {
		filter = m.filter.View() + "\n"
	}

	helpView := m.help.ShortHelpView([]key.Binding{
		m.keys.edit, m.keys.create, m.keys.remove, m.keys.filter, m.keys.favFlt, m.keys.skipFlt,
		m.keys.prevPage, m.keys.nextPage, m.keys.search, m.keys.auto, m.keys.sync, m.keys.quit,
	})
	return fmt.Sprintf("%s%s\n%s\n\n%s", filter, m.entries.View(), styles.help.Render(header), helpView)
}

func (m *Model) renderEdit() string {
	title := "Edit entry"
	if m.editing.CommonID == "" {
		title = "New entry"
	}
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.next, m.keys.toggle, m.keys.submit, m.keys.back})
	return fmt.Sprintf("%s\n%s\n%s", styles.title.Render(title), m.edit.view(), helpView)
}

func (m *Model) renderConfirm() string {
	title := styles.warn.Render(fmt.Sprintf("Delete '%s' (%s)?", m.editing.Title, m.editing.ExternalID))
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.yes, m.keys.no})
	return fmt.Sprintf("%s\n\n%s", title, helpView)
}

func (m *Model) renderSearch() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.submit, m.keys.back})
	return fmt.Sprintf("%s\n\n%s\n\n%s", m.keyword.View(), m.results.View(), helpView)
}

func (m *Model) renderAuto() string {
	info := fmt.Sprintf("%d of %d entries are eligible (skip excluded)", m.controller.Eligible(), m.controller.Len())
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.next, m.keys.submit, m.keys.back})
	return fmt.Sprintf("%s\n%s\n\n%s\n%s", styles.title.Render("Auto register"), styles.help.Render(info), m.auto.view(), helpView)
}

func (m *Model) renderProgress() string {
	title := styles.title.Render("Auto register")
	var phase string
	switch m.progress.Phase {
	case tasks.SyncList:
		phase = "Syncing list..."
	case tasks.SampleVideos:
		phase = "Picking videos..."
	case tasks.SubmitJob:
		phase = "Submitting job..."
	default:
		phase = "Working..."
	}
	return fmt.Sprintf("%s\n\n%s\n%s", title, phase, m.progress.Message)
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.quit})
	if m.err != nil || m.autoResult == nil {
		return fmt.Sprintf("%s\n\n%s", styles.err.Render("Registration was not started"), helpView)
	}

	title := styles.ok.Render("✓ Registration started")
	info := fmt.Sprintf("\nJob: %s\nVideos: %d\n%s", m.autoResult.JobID, len(m.autoResult.IDs), m.autoResult.Message)
	return fmt.Sprintf("%s\n%s\n\n%s", title, info, helpView)
}
