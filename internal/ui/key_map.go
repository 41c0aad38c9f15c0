package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up       key.Binding
	down     key.Binding
	prevPage key.Binding
	nextPage key.Binding
	edit     key.Binding
	create   key.Binding
	remove   key.Binding
	favorite key.Binding
	skip     key.Binding
	filter   key.Binding
	favFlt   key.Binding
	skipFlt  key.Binding
	search   key.Binding
	auto     key.Binding
	sync     key.Binding
	next     key.Binding
	prev     key.Binding
	toggle   key.Binding
	submit   key.Binding
	back     key.Binding
	yes      key.Binding
	no       key.Binding
	quit     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		prevPage: key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "prev page")),
		nextPage: key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "next page")),
		edit:     key.NewBinding(key.WithKeys("enter", "e"), key.WithHelp("enter", "edit")),
		create:   key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new")),
		remove:   key.NewBinding(key.WithKeys("x", "delete"), key.WithHelp("x", "delete")),
		favorite: key.NewBinding(key.WithKeys("F"), key.WithHelp("F", "toggle ★")),
		skip:     key.NewBinding(key.WithKeys("S"), key.WithHelp("S", "toggle skip")),
		filter:   key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "filter")),
		favFlt:   key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "★ filter")),
		skipFlt:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "skip filter")),
		search:   key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "search & add")),
		auto:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "auto register")),
		sync:     key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "sync")),
		next:     key.NewBinding(key.WithKeys("tab", "down"), key.WithHelp("tab", "next field")),
		prev:     key.NewBinding(key.WithKeys("shift+tab", "up"), key.WithHelp("shift+tab", "prev field")),
		toggle:   key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "toggle")),
		submit:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "submit")),
		back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		yes:      key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "yes")),
		no:       key.NewBinding(key.WithKeys("n", "esc"), key.WithHelp("n", "no")),
		quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.prevPage, k.nextPage},
		{k.edit, k.create, k.remove, k.favorite, k.skip},
		{k.filter, k.favFlt, k.skipFlt},
		{k.search, k.auto, k.sync, k.quit},
	}
}
