package main

import (
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// servicesModel shows the bus name listing with an incremental filter.
type servicesModel struct {
	names      []string
	filtered   []string
	hideUnique bool
	filter     textinput.Model
	filtering  bool
	cursor     int
	offset     int
	width      int
	height     int
}

func newServices(initialFilter string, hideUnique bool) servicesModel {
	ti := textinput.New()
	ti.Prompt = "/"
	ti.Placeholder = "filter"
	ti.CharLimit = 128
	ti.SetValue(initialFilter)
	return servicesModel{
		hideUnique: hideUnique,
		filter:     ti,
	}
}

// setNames replaces the listing wholesale and re-applies the filter.
func (m *servicesModel) setNames(names []string) {
	m.names = append([]string(nil), names...)
	sort.Strings(m.names)
	m.applyFilter()
}

func (m *servicesModel) applyFilter() {
	query := strings.ToLower(m.filter.Value())
	m.filtered = m.filtered[:0]
	for _, n := range m.names {
		if m.hideUnique && strings.HasPrefix(n, ":") {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(n), query) {
			continue
		}
		m.filtered = append(m.filtered, n)
	}
	if m.cursor >= len(m.filtered) {
		m.cursor = max(len(m.filtered)-1, 0)
	}
	m.clampOffset()
}

// selected returns the service under the cursor.
func (m *servicesModel) selected() (string, bool) {
	if m.cursor < 0 || m.cursor >= len(m.filtered) {
		return "", false
	}
	return m.filtered[m.cursor], true
}

func (m *servicesModel) moveCursor(delta int) {
	if len(m.filtered) == 0 {
		return
	}
	m.cursor = min(max(m.cursor+delta, 0), len(m.filtered)-1)
	m.clampOffset()
}

func (m *servicesModel) clampOffset() {
	if m.height <= 0 {
		return
	}
	visible := m.listHeight()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+visible {
		m.offset = m.cursor - visible + 1
	}
	if m.offset < 0 {
		m.offset = 0
	}
}

// listHeight is the pane height minus the filter line when active.
func (m *servicesModel) listHeight() int {
	h := m.height
	if m.filtering || m.filter.Value() != "" {
		h--
	}
	return max(h, 1)
}

func (m *servicesModel) setSize(width, height int) {
	m.width = width
	m.height = height
	m.filter.Width = max(width-2, 8)
	m.clampOffset()
}

// startFilter switches the pane into filter editing mode.
func (m *servicesModel) startFilter() tea.Cmd {
	m.filtering = true
	return m.filter.Focus()
}

// stopFilter leaves filter editing mode, keeping the query applied.
func (m *servicesModel) stopFilter(clear bool) {
	m.filtering = false
	m.filter.Blur()
	if clear {
		m.filter.SetValue("")
	}
	m.applyFilter()
}

// updateFilter forwards key input to the filter text box.
func (m *servicesModel) updateFilter(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.applyFilter()
	return cmd
}

func (m servicesModel) View() string {
	var b strings.Builder

	if m.filtering || m.filter.Value() != "" {
		b.WriteString(truncate(m.filter.View(), max(m.width, 4)))
		b.WriteByte('\n')
	}

	if len(m.filtered) == 0 {
		b.WriteString(dimStyle.Render("  no services"))
		return b.String()
	}

	end := min(m.offset+m.listHeight(), len(m.filtered))
	for i := m.offset; i < end; i++ {
		if i > m.offset {
			b.WriteByte('\n')
		}
		line := truncate(" "+m.filtered[i], max(m.width, 4))
		switch {
		case i == m.cursor:
			b.WriteString(cursorStyle.Render(line))
		default:
			b.WriteString(serviceStyle.Render(line))
		}
	}
	return b.String()
}
