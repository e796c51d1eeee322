package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/busline/dscope/pkg/caller"
	"github.com/busline/dscope/pkg/sig"
	"github.com/busline/dscope/pkg/topology"
)

// focusArea identifies which pane receives key input.
type focusArea int

const (
	focusServices focusArea = iota
	focusTree
)

const logPaneHeight = 7

// appModel is the root bubbletea model.
type appModel struct {
	ctx          context.Context
	orch         *caller.Orchestrator
	tree         *topology.Tree
	services     servicesModel
	treeView     treeModel
	statusBar    statusBarModel
	form         *callFormModel
	log          []string
	focus        focusArea
	cancelBridge context.CancelFunc
	started      map[uint64]time.Time
	width        int
	height       int
	spinner      int
	ticking      bool
}

func newAppModel(ctx context.Context, orch *caller.Orchestrator, busLabel, uniqueName, filter string, hideUnique bool) appModel {
	return appModel{
		ctx:       ctx,
		orch:      orch,
		tree:      &topology.Tree{},
		services:  newServices(filter, hideUnique),
		treeView:  newTree(),
		statusBar: newStatusBar(busLabel, uniqueName),
		started:   make(map[uint64]time.Time),
	}
}

func (m appModel) Init() tea.Cmd {
	return nil
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case programReadyMsg:
		m.cancelBridge = startBridge(m.ctx, msg.program, m.orch.Events())
		m.track(m.orch.ListServices())
		return m, m.ensureTick()

	case servicesListedMsg:
		m.settle(msg.id)
		m.services.setNames(msg.names)
		m.tree.SetServices(msg.names)
		m.addLog(logInfoStyle, fmt.Sprintf("listed %d services", len(msg.names)))
		return m, nil

	case nodeFetchedMsg:
		m.settle(msg.id)
		if err := m.tree.ApplyNode(msg.service, msg.path, msg.doc); err == nil {
			m.treeView.refresh(m.tree)
		}
		return m, nil

	case nodeFailedMsg:
		m.settle(msg.id)
		if err := m.tree.ApplyError(msg.service, msg.path, errText(msg.err)); err == nil {
			m.treeView.refresh(m.tree)
		}
		m.addLog(logErrStyle, fmt.Sprintf("introspect %s %s: %s", msg.service, msg.path, errText(msg.err)))
		return m, nil

	case callDoneMsg:
		return m.handleCallDone(msg)

	case propertyMsg:
		return m.handleProperty(msg)

	case signalMsg:
		s := msg.signal
		m.addLog(logOkStyle, fmt.Sprintf("sig %s.%s %s", s.Iface, s.Member, renderValues(s.Body)))
		return m, nil

	case cancelledMsg:
		m.settle(msg.id)
		if m.form != nil && m.form.pendingID == msg.id {
			m.form.setOutcome("cancelled", true)
		}
		m.addLog(logInfoStyle, "cancelled")
		return m, nil

	case opErrorMsg:
		m.settle(msg.id)
		if msg.err != nil {
			m.addLog(logErrStyle, errText(msg.err))
		}
		return m, nil

	case tickMsg:
		return m.handleTick()
	}

	return m, nil
}

func (m appModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	mainHeight := max(m.height-logPaneHeight-1, 5)
	servicesWidth := max(m.width/3, 24)
	treeWidth := max(m.width-servicesWidth, 20)

	servicesPane := m.renderPane("Services", m.services.View(), servicesWidth, mainHeight, m.focus == focusServices)
	treePane := m.renderPane("Objects", m.treeView.View(), treeWidth, mainHeight, m.focus == focusTree)
	main := lipgloss.JoinHorizontal(lipgloss.Top, servicesPane, treePane)

	var bottom string
	if m.form != nil {
		bottom = m.form.View()
	} else {
		bottom = m.renderPane("Activity", m.renderLog(), m.width, logPaneHeight, false)
	}

	return lipgloss.JoinVertical(lipgloss.Left, main, bottom, m.statusBar.View())
}

func (m *appModel) renderPane(title, body string, width, height int, focused bool) string {
	style := paneStyle
	if focused {
		style = paneFocusedStyle
	}
	content := paneTitleStyle.Render(title) + "\n" + body
	return style.Width(max(width-2, 4)).Height(max(height-2, 1)).Render(content)
}

func (m *appModel) renderLog() string {
	visible := logPaneHeight - 3
	if len(m.log) <= visible {
		return joinLines(m.log)
	}
	return joinLines(m.log[len(m.log)-visible:])
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

func (m *appModel) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	mainHeight := max(m.height-logPaneHeight-1, 5)
	servicesWidth := max(m.width/3, 24)
	treeWidth := max(m.width-servicesWidth, 20)

	// One border cell each side plus the title line.
	m.services.setSize(servicesWidth-2, mainHeight-3)
	m.treeView.setSize(treeWidth-2, mainHeight-3)
	if m.form != nil {
		m.form.width = m.width - 4
	}
	m.treeView.refresh(m.tree)
	return m, nil
}

func (m *appModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m.quit()
	}

	if m.form != nil {
		return m.handleFormKey(msg)
	}

	if m.services.filtering {
		switch msg.Type {
		case tea.KeyEsc:
			m.services.stopFilter(true)
			return m, nil
		case tea.KeyEnter:
			m.services.stopFilter(false)
			return m, nil
		}
		return m, m.services.updateFilter(msg)
	}

	switch msg.String() {
	case "q":
		return m.quit()
	case "tab":
		if m.focus == focusServices {
			m.focus = focusTree
		} else {
			m.focus = focusServices
		}
		return m, nil
	case "R":
		m.track(m.orch.ListServices())
		return m, m.ensureTick()
	}

	if m.focus == focusServices {
		return m.handleServicesKey(msg)
	}
	return m.handleTreeKey(msg)
}

func (m *appModel) handleServicesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		m.services.moveCursor(-1)
	case "down", "j":
		m.services.moveCursor(1)
	case "/":
		return m, m.services.startFilter()
	case "enter":
		name, ok := m.services.selected()
		if !ok {
			return m, nil
		}
		m.treeView.setService(name)
		m.statusBar.service = name
		m.focus = focusTree
		cmd := m.fetchNode(name, "/")
		m.treeView.refresh(m.tree)
		return m, cmd
	}
	return m, nil
}

func (m *appModel) handleTreeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		m.treeView.moveCursor(-1)
		return m, nil
	case "down", "j":
		m.treeView.moveCursor(1)
		return m, nil
	}

	row, ok := m.treeView.current()
	if !ok {
		return m, nil
	}

	switch msg.String() {
	case "enter":
		return m.activateRow(row)
	case "esc":
		if row.expandable && row.expanded {
			m.treeView.expanded[row.key] = false
			m.treeView.refresh(m.tree)
		}
		return m, nil
	case "r":
		// Refresh re-fetches even a populated node.
		cmd := m.fetchNode(m.treeView.service, row.path)
		m.treeView.refresh(m.tree)
		return m, cmd
	case "s":
		if row.kind == rowSignal {
			return m.toggleWatch(row)
		}
		return m, nil
	case "w":
		if row.kind == rowProperty && row.prop.Access.Writable() {
			form := newWriteForm(m.treeView.service, row.path, row.iface, row.prop)
			form.width = m.width - 4
			m.form = &form
		}
		return m, nil
	}
	return m, nil
}

// activateRow is Enter on a tree row: toggle containers, open the call form
// on methods, read properties, toggle signal watches.
func (m *appModel) activateRow(row treeRow) (tea.Model, tea.Cmd) {
	switch row.kind {
	case rowPath:
		m.treeView.expanded[row.key] = !row.expanded
		var cmd tea.Cmd
		if !row.expanded && row.state != topology.Populated {
			cmd = m.fetchNode(m.treeView.service, row.path)
		}
		m.treeView.refresh(m.tree)
		return m, cmd

	case rowIface, rowGroup:
		m.treeView.expanded[row.key] = !row.expanded
		m.treeView.refresh(m.tree)
		return m, nil

	case rowMethod:
		form := newCallForm(m.treeView.service, row.path, row.iface, row.method)
		form.width = m.width - 4
		m.form = &form
		return m, nil

	case rowProperty:
		if !row.prop.Access.Readable() {
			return m, nil
		}
		m.track(m.orch.ReadProperty(m.treeView.service, row.path, row.iface, row.prop.Name))
		return m, m.ensureTick()

	case rowSignal:
		return m.toggleWatch(row)
	}
	return m, nil
}

func (m *appModel) toggleWatch(row treeRow) (tea.Model, tea.Cmd) {
	if id, ok := m.treeView.watched[row.key]; ok {
		m.orch.Cancel(id)
		delete(m.treeView.watched, row.key)
		m.statusBar.watched = len(m.treeView.watched)
		m.treeView.refresh(m.tree)
		return m, nil
	}
	id, err := m.orch.WatchSignal(m.treeView.service, row.path, row.iface, row.signal.Name)
	if err != nil {
		m.addLog(logErrStyle, "watch "+row.signal.Name+": "+err.Error())
		return m, nil
	}
	m.treeView.watched[row.key] = id
	m.statusBar.watched = len(m.treeView.watched)
	m.treeView.refresh(m.tree)
	return m, nil
}

func (m *appModel) handleFormKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		if m.form.waiting() {
			m.orch.Cancel(m.form.pendingID)
			return m, nil
		}
		m.form = nil
		return m, nil

	case tea.KeyEnter:
		if m.form.waiting() {
			return m, nil
		}
		values, ok := m.form.validate()
		if !ok {
			return m, nil
		}
		return m.dispatchForm(values)
	}

	form, cmd := m.form.Update(msg)
	m.form = &form
	return m, cmd
}

// dispatchForm sends the validated values as a method call or property
// write and parks the form in the waiting state.
func (m *appModel) dispatchForm(values []sig.Value) (tea.Model, tea.Cmd) {
	var (
		id  uint64
		err error
	)
	if m.form.kind == formWrite {
		id, err = m.orch.WriteProperty(m.form.service, m.form.path, m.form.iface, m.form.prop, values[0])
	} else {
		id, err = m.orch.Call(caller.CallRequest{
			Service: m.form.service,
			Path:    m.form.path,
			Iface:   m.form.iface,
			Method:  m.form.method,
			Args:    values,
		})
	}
	if err != nil {
		m.form.setOutcome(errText(err), true)
		return m, nil
	}
	m.form.pendingID = id
	m.form.result = ""
	m.track(id)
	return m, m.ensureTick()
}

func (m *appModel) handleCallDone(msg callDoneMsg) (tea.Model, tea.Cmd) {
	dur := m.settle(msg.id)
	out := msg.outcome
	if m.form != nil && m.form.pendingID == msg.id {
		if out.Err != nil {
			m.form.setOutcome(errText(out.Err), true)
		} else {
			m.form.setOutcome(renderValues(out.Returns), false)
		}
	}
	if out.Err != nil {
		m.addLog(logErrStyle, fmt.Sprintf("%s: %s", out.Method, errText(out.Err)))
	} else {
		m.addLog(logOkStyle, fmt.Sprintf("%s => %s (%s)", out.Method, renderValues(out.Returns), fmtDuration(dur)))
	}
	m.statusBar.duration = dur
	return m, nil
}

func (m *appModel) handleProperty(msg propertyMsg) (tea.Model, tea.Cmd) {
	m.settle(msg.id)
	out := msg.outcome
	if m.form != nil && m.form.pendingID == msg.id {
		if out.Err != nil {
			m.form.setOutcome(errText(out.Err), true)
		} else if msg.wrote {
			m.form.setOutcome("written", false)
		}
	}
	switch {
	case out.Err != nil:
		m.addLog(logErrStyle, fmt.Sprintf("%s.%s: %s", out.Iface, out.Property, errText(out.Err)))
	case msg.wrote:
		m.addLog(logOkStyle, fmt.Sprintf("%s.%s written", out.Iface, out.Property))
	default:
		m.treeView.propValues[memberKey(msg.path, out.Iface, out.Property)] = out.Value.String()
		m.treeView.refresh(m.tree)
		m.addLog(logOkStyle, fmt.Sprintf("%s.%s = %s", out.Iface, out.Property, out.Value.String()))
	}
	return m, nil
}

func (m *appModel) handleTick() (tea.Model, tea.Cmd) {
	m.spinner++
	m.treeView.spinner = m.spinner
	if m.form != nil {
		m.form.spinner = m.spinner
	}
	if len(m.started) > 0 || (m.form != nil && m.form.waiting()) {
		return m, tickCmd()
	}
	m.ticking = false
	return m, nil
}

// fetchNode starts introspection of (service, path) unless one is already
// in flight for it.
func (m *appModel) fetchNode(service, path string) tea.Cmd {
	if !m.tree.BeginFetch(service, path) {
		return nil
	}
	m.track(m.orch.FetchNode(service, path))
	return m.ensureTick()
}

// track remembers when an operation started, for durations and the
// in-flight counter.
func (m *appModel) track(id uint64) {
	m.started[id] = time.Now()
	m.statusBar.pending = len(m.started)
}

// settle forgets a finished operation and returns how long it ran.
func (m *appModel) settle(id uint64) time.Duration {
	var dur time.Duration
	if t, ok := m.started[id]; ok {
		dur = time.Since(t)
		delete(m.started, id)
	}
	m.statusBar.pending = len(m.started)
	return dur
}

func (m *appModel) ensureTick() tea.Cmd {
	if m.ticking {
		return nil
	}
	m.ticking = true
	return tickCmd()
}

func (m *appModel) addLog(style lipgloss.Style, line string) {
	m.log = append(m.log, style.Render(truncate(line, max(m.width-4, 16))))
	if len(m.log) > 200 {
		m.log = m.log[len(m.log)-200:]
	}
}

func (m *appModel) quit() (tea.Model, tea.Cmd) {
	if m.cancelBridge != nil {
		m.cancelBridge()
	}
	m.orch.Close()
	return m, tea.Quit
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
