// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI is a thin shell over a [cache.Controller]:
//  1. [ListView] : Browse the cached list one page at a time, with term and flag filters
//  2. [EditView] : Create or edit an entry
//  3. [ConfirmDeleteView] : Confirm a delete
//  4. [SearchView] : Search niconico and add a hit with default settings
//  5. [AutoView] : Fill the auto-registration form
//  6. [ProgressView] / [ResultView] : Follow the submission and show the job id
//
// Every change is sent to the backend first and shown once confirmed. A rejected
// session ends the program with a prompt to log in again.
//
// Keyboard navigation uses vim-style bindings with contextual help displayed via charmbracelet/bubbles/help.
package ui
