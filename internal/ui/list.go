package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/nagiyu/niconico-mylist-assistant/internal/models"
	"github.com/nagiyu/niconico-mylist-assistant/internal/services"
)

var (
	_ list.Item = entryItem{}
	_ list.Item = resultItem{}
)

// entryItem wraps [models.MergedMusicView] to implement [list.Item].
type entryItem struct {
	view models.MergedMusicView
}

func (i entryItem) FilterValue() string { return i.view.Title }
func (i entryItem) Title() string {
	if i.view.Favorite {
		return "★ " + i.view.Title
	}
	return i.view.Title
}
func (i entryItem) Description() string {
	parts := []string{i.view.ExternalID}
	if i.view.Skip {
		parts = append(parts, "skip")
	}
	if i.view.Memo != "" {
		parts = append(parts, i.view.Memo)
	}
	return strings.Join(parts, " • ")
}

// resultItem wraps [services.SearchResult] to implement [list.Item].
type resultItem struct {
	result services.SearchResult
}

func (i resultItem) FilterValue() string { return i.result.Title }
func (i resultItem) Title() string       { return i.result.Title }
func (i resultItem) Description() string {
	return fmt.Sprintf("%s • %d views", i.result.ContentID, i.result.ViewCounter)
}

func newList(items []list.Item, title string) list.Model {
	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = title
	l.SetFilteringEnabled(false)
	l.SetShowPagination(false)
	l.SetShowHelp(false)
	return l
}
