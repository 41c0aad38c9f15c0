package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// field is one row of a form: a text input, or a checkbox when input is nil.
type field struct {
	label   string
	input   *textinput.Model
	checked bool
}

// form is a vertical list of fields with one focused row.
type form struct {
	fields []*field
	focus  int
}

// newInput creates a text input with a steady cursor.
func newInput(prompt, placeholder string) textinput.Model {
	in := textinput.New()
	in.Prompt = prompt
	in.Placeholder = placeholder
	in.Cursor.SetMode(cursor.CursorStatic)
	return in
}

func textField(label, value, placeholder string) *field {
	in := newInput("", placeholder)
	in.CharLimit = 200
	in.SetValue(value)
	return &field{label: label, input: &in}
}

func passwordField(label string) *field {
	f := textField(label, "", "")
	f.input.EchoMode = textinput.EchoPassword
	f.input.EchoCharacter = '•'
	return f
}

func checkField(label string, checked bool) *field {
	return &field{label: label, checked: checked}
}

func newForm(fields ...*field) *form {
	f := &form{fields: fields}
	f.setFocus(0)
	return f
}

func (f *form) setFocus(i int) tea.Cmd {
	n := len(f.fields)
	f.focus = (i%n + n) % n
	var cmd tea.Cmd
	for j, fld := range f.fields {
		if fld.input == nil {
			continue
		}
		if j == f.focus {
			cmd = fld.input.Focus()
		} else {
			fld.input.Blur()
		}
	}
	return cmd
}

func (f *form) next() tea.Cmd { return f.setFocus(f.focus + 1) }
func (f *form) prev() tea.Cmd { return f.setFocus(f.focus - 1) }

// toggle flips the focused checkbox and reports whether one was focused.
func (f *form) toggle() bool {
	fld := f.fields[f.focus]
	if fld.input != nil {
		return false
	}
	fld.checked = !fld.checked
	return true
}

// update forwards msg to the focused text input.
func (f *form) update(msg tea.Msg) tea.Cmd {
	fld := f.fields[f.focus]
	if fld.input == nil {
		return nil
	}
	in, cmd := fld.input.Update(msg)
	*fld.input = in
	return cmd
}

func (f *form) value(i int) string {
	if f.fields[i].input == nil {
		return ""
	}
	return strings.TrimSpace(f.fields[i].input.Value())
}

func (f *form) checked(i int) bool {
	return f.fields[i].checked
}

func (f *form) view() string {
	var b strings.Builder
	for i, fld := range f.fields {
		label := fmt.Sprintf("%-10s", fld.label)
		if i == f.focus {
			label = styles.focus.Render("> " + label)
		} else {
			label = "  " + label
		}

		var value string
		if fld.input != nil {
			value = fld.input.View()
		} else if fld.checked {
			value = "[x]"
		} else {
			value = "[ ]"
		}
		fmt.Fprintf(&b, "%s %s\n", label, value)
	}
	return b.String()
}
