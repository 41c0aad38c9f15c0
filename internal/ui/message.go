package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/nagiyu/niconico-mylist-assistant/internal/models"
	"github.com/nagiyu/niconico-mylist-assistant/internal/services"
	"github.com/nagiyu/niconico-mylist-assistant/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
	err  error
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgSynced MsgKind = iota
	MsgSaved
	MsgDeleted
	MsgSearched
	MsgProgressUpdate
	MsgAutoRegistered
)

// syncedMsg is the constructor for [MsgSynced]
func syncedMsg(err error) Msg {
	return Msg{kind: MsgSynced, err: err}
}

// savedMsg is the constructor for [MsgSaved]
func savedMsg(view models.MergedMusicView, err error) Msg {
	return Msg{kind: MsgSaved, data: view, err: err}
}

// deletedMsg is the constructor for [MsgDeleted]
func deletedMsg(commonID string, err error) Msg {
	return Msg{kind: MsgDeleted, data: commonID, err: err}
}

// searchedMsg is the constructor for [MsgSearched]
func searchedMsg(results []services.SearchResult, err error) Msg {
	return Msg{kind: MsgSearched, data: results, err: err}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// autoRegisteredMsg is the constructor for [MsgAutoRegistered]
func autoRegisteredMsg(result *tasks.AutoRegisterResult, err error) Msg {
	return Msg{kind: MsgAutoRegistered, data: result, err: err}
}
