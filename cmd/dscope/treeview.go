package main

import (
	"fmt"
	"strings"

	"github.com/busline/dscope/pkg/introspect"
	"github.com/busline/dscope/pkg/topology"
)

// rowKind identifies what a flattened tree row represents.
type rowKind int

const (
	rowPath rowKind = iota
	rowIface
	rowGroup
	rowMethod
	rowProperty
	rowSignal
	rowInfo
)

// treeRow is one visible line of the object tree.
type treeRow struct {
	kind       rowKind
	depth      int
	key        string
	label      string
	path       string
	iface      string
	method     introspect.Method
	prop       introspect.Property
	signal     introspect.Signal
	expandable bool
	expanded   bool
	state      topology.FetchState
	errText    string
}

func pathKey(path string) string               { return "p|" + path }
func ifaceKey(path, iface string) string       { return "i|" + path + "|" + iface }
func groupKey(path, iface, grp string) string  { return "g|" + path + "|" + iface + "|" + grp }
func memberKey(path, iface, mem string) string { return "m|" + path + "|" + iface + "|" + mem }

// renderMethod formats a method leaf as Name(arg: type, ...) => out.
func renderMethod(m introspect.Method) string {
	var b strings.Builder
	b.WriteString(m.Name)
	b.WriteByte('(')
	for i, a := range m.In {
		if i > 0 {
			b.WriteString(", ")
		}
		if a.Name != "" {
			b.WriteString(a.Name)
			b.WriteString(": ")
		}
		b.WriteString(a.Type.String())
	}
	b.WriteByte(')')
	if len(m.Out) > 0 {
		b.WriteString(" => ")
		for i, a := range m.Out {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(a.Type.String())
		}
	}
	return b.String()
}

// renderProperty formats a property leaf, appending the last read value when
// one is cached.
func renderProperty(p introspect.Property, cached string) string {
	label := fmt.Sprintf("%s: %s (%s)", p.Name, p.Type.String(), p.Access)
	if cached != "" {
		label += " = " + cached
	}
	return label
}

// renderSignal formats a signal leaf, marking watched ones.
func renderSignal(s introspect.Signal, watched bool) string {
	var b strings.Builder
	if watched {
		b.WriteString("● ")
	}
	b.WriteString(s.Name)
	b.WriteByte('(')
	for i, a := range s.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(a.Type.String())
	}
	b.WriteByte(')')
	return b.String()
}

// flatten renders the explored part of one service's object tree into rows.
// Only nodes whose row key is in expanded contribute their contents; an
// Unfetched node is shown collapsed so expanding it can trigger the fetch.
func flatten(tree *topology.Tree, service string, expanded map[string]bool, watched map[string]uint64, propValues map[string]string) []treeRow {
	root := tree.Lookup(service, "/")
	if root == nil {
		return nil
	}
	var rows []treeRow
	flattenNode(root, 0, expanded, watched, propValues, &rows)
	return rows
}

func flattenNode(n *topology.Node, depth int, expanded map[string]bool, watched map[string]uint64, propValues map[string]string, rows *[]treeRow) {
	key := pathKey(n.Path)
	open := expanded[key]
	*rows = append(*rows, treeRow{
		kind:       rowPath,
		depth:      depth,
		key:        key,
		label:      pathLabel(n),
		path:       n.Path,
		expandable: true,
		expanded:   open,
		state:      n.State(),
		errText:    n.Err(),
	})
	if !open {
		return
	}

	for _, w := range n.Warnings() {
		*rows = append(*rows, treeRow{kind: rowInfo, depth: depth + 1, path: n.Path, label: "! " + w})
	}

	for _, iface := range n.Interfaces() {
		ikey := ifaceKey(n.Path, iface.Name)
		iopen := expanded[ikey]
		*rows = append(*rows, treeRow{
			kind:       rowIface,
			depth:      depth + 1,
			key:        ikey,
			label:      iface.Name,
			path:       n.Path,
			iface:      iface.Name,
			expandable: true,
			expanded:   iopen,
		})
		if !iopen {
			continue
		}
		flattenMembers(n.Path, iface, depth+2, expanded, watched, propValues, rows)
	}

	for _, child := range n.Children() {
		flattenNode(child, depth+1, expanded, watched, propValues, rows)
	}
}

func flattenMembers(path string, iface introspect.Interface, depth int, expanded map[string]bool, watched map[string]uint64, propValues map[string]string, rows *[]treeRow) {
	groups := []struct {
		name string
		n    int
	}{
		{"Methods", len(iface.Methods)},
		{"Properties", len(iface.Properties)},
		{"Signals", len(iface.Signals)},
	}
	for _, g := range groups {
		if g.n == 0 {
			continue
		}
		gkey := groupKey(path, iface.Name, g.name)
		gopen := expanded[gkey]
		*rows = append(*rows, treeRow{
			kind:       rowGroup,
			depth:      depth,
			key:        gkey,
			label:      fmt.Sprintf("%s (%d)", g.name, g.n),
			path:       path,
			iface:      iface.Name,
			expandable: true,
			expanded:   gopen,
		})
		if !gopen {
			continue
		}
		switch g.name {
		case "Methods":
			for _, m := range iface.Methods {
				*rows = append(*rows, treeRow{
					kind:   rowMethod,
					depth:  depth + 1,
					key:    memberKey(path, iface.Name, m.Name),
					label:  renderMethod(m),
					path:   path,
					iface:  iface.Name,
					method: m,
				})
			}
		case "Properties":
			for _, p := range iface.Properties {
				mk := memberKey(path, iface.Name, p.Name)
				*rows = append(*rows, treeRow{
					kind:  rowProperty,
					depth: depth + 1,
					key:   mk,
					label: renderProperty(p, propValues[mk]),
					path:  path,
					iface: iface.Name,
					prop:  p,
				})
			}
		case "Signals":
			for _, s := range iface.Signals {
				mk := memberKey(path, iface.Name, s.Name)
				_, isWatched := watched[mk]
				*rows = append(*rows, treeRow{
					kind:   rowSignal,
					depth:  depth + 1,
					key:    mk,
					label:  renderSignal(s, isWatched),
					path:   path,
					iface:  iface.Name,
					signal: s,
				})
			}
		}
	}
}

func pathLabel(n *topology.Node) string {
	if n.Path == "/" {
		return "/"
	}
	return n.Segment()
}

// treeModel shows the flattened object tree of the selected service.
type treeModel struct {
	service    string
	expanded   map[string]bool
	watched    map[string]uint64
	propValues map[string]string
	rows       []treeRow
	cursor     int
	offset     int
	width      int
	height     int
	spinner    int
}

func newTree() treeModel {
	return treeModel{
		expanded:   make(map[string]bool),
		watched:    make(map[string]uint64),
		propValues: make(map[string]string),
	}
}

// setService switches the pane to another service, dropping view state that
// belongs to the previous one.
func (m *treeModel) setService(service string) {
	if m.service == service {
		return
	}
	m.service = service
	m.expanded = map[string]bool{pathKey("/"): true}
	m.watched = make(map[string]uint64)
	m.propValues = make(map[string]string)
	m.cursor = 0
	m.offset = 0
	m.rows = nil
}

// refresh rebuilds the visible rows from the shared tree.
func (m *treeModel) refresh(tree *topology.Tree) {
	if m.service == "" {
		m.rows = nil
		return
	}
	m.rows = flatten(tree, m.service, m.expanded, m.watched, m.propValues)
	if m.cursor >= len(m.rows) {
		m.cursor = max(len(m.rows)-1, 0)
	}
	m.clampOffset()
}

func (m *treeModel) current() (treeRow, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return treeRow{}, false
	}
	return m.rows[m.cursor], true
}

func (m *treeModel) moveCursor(delta int) {
	if len(m.rows) == 0 {
		return
	}
	m.cursor = min(max(m.cursor+delta, 0), len(m.rows)-1)
	m.clampOffset()
}

func (m *treeModel) clampOffset() {
	if m.height <= 0 {
		return
	}
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+m.height {
		m.offset = m.cursor - m.height + 1
	}
	if m.offset < 0 {
		m.offset = 0
	}
}

func (m *treeModel) setSize(width, height int) {
	m.width = width
	m.height = height
	m.clampOffset()
}

func (m treeModel) View() string {
	if m.service == "" {
		return dimStyle.Render("  select a service")
	}
	if len(m.rows) == 0 {
		return dimStyle.Render("  loading " + m.service + spinnerFrames[m.spinner%len(spinnerFrames)])
	}

	var b strings.Builder
	end := min(m.offset+max(m.height, 1), len(m.rows))
	for i := m.offset; i < end; i++ {
		if i > m.offset {
			b.WriteByte('\n')
		}
		b.WriteString(m.renderRow(m.rows[i], i == m.cursor))
	}
	return b.String()
}

func (m treeModel) renderRow(r treeRow, selected bool) string {
	indent := strings.Repeat("  ", r.depth)

	marker := "  "
	if r.expandable {
		if r.expanded {
			marker = "▾ "
		} else {
			marker = "▸ "
		}
	}

	label := r.label
	if r.kind == rowPath {
		switch r.state {
		case topology.Fetching:
			label += " " + spinnerFrames[m.spinner%len(spinnerFrames)]
		case topology.Errored:
			label += " ! " + r.errText
		}
	}

	// Style after truncation so escape sequences never get cut.
	line := truncate(indent+marker+label, max(m.width, 4))
	if selected {
		return cursorStyle.Render(line)
	}

	var style = serviceStyle
	switch r.kind {
	case rowPath:
		style = pathStyle
		if r.state == topology.Errored {
			style = erroredStyle
		}
	case rowIface:
		style = ifaceStyle
	case rowGroup:
		style = groupStyle
	case rowMethod:
		style = methodStyle
	case rowProperty:
		style = propertyStyle
	case rowSignal:
		style = signalStyle
	case rowInfo:
		style = erroredStyle
	}
	return style.Render(line)
}
