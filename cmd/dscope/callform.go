package main

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/busline/dscope/pkg/introspect"
	"github.com/busline/dscope/pkg/literal"
	"github.com/busline/dscope/pkg/sig"
)

// formKind distinguishes what the popup dispatches on submit.
type formKind int

const (
	formCall formKind = iota
	formWrite
)

// callFormModel is the popup that collects typed argument text, parses it
// against the declared signature and shows the outcome.
type callFormModel struct {
	kind    formKind
	service string
	path    string
	iface   string
	method  introspect.Method
	prop    introspect.Property

	labels []string
	types  []sig.Type
	inputs []textinput.Model
	errs   []string

	focus     int
	pendingID uint64
	result    string
	resultErr bool
	width     int
	spinner   int
}

func newCallForm(service, path, iface string, method introspect.Method) callFormModel {
	m := callFormModel{
		kind:    formCall,
		service: service,
		path:    path,
		iface:   iface,
		method:  method,
	}
	for _, a := range method.In {
		label := a.Type.String()
		if a.Name != "" {
			label = a.Name + ": " + label
		}
		m.labels = append(m.labels, label)
		m.types = append(m.types, a.Type)
	}
	m.buildInputs()
	return m
}

func newWriteForm(service, path, iface string, prop introspect.Property) callFormModel {
	m := callFormModel{
		kind:    formWrite,
		service: service,
		path:    path,
		iface:   iface,
		prop:    prop,
		labels:  []string{prop.Name + ": " + prop.Type.String()},
		types:   []sig.Type{prop.Type},
	}
	m.buildInputs()
	return m
}

func (m *callFormModel) buildInputs() {
	m.inputs = make([]textinput.Model, len(m.types))
	m.errs = make([]string, len(m.types))
	for i := range m.types {
		ti := textinput.New()
		ti.Prompt = "> "
		ti.CharLimit = 1024
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
}

// title names what the form dispatches.
func (m callFormModel) title() string {
	if m.kind == formWrite {
		return "set " + m.iface + "." + m.prop.Name
	}
	return "call " + m.iface + "." + m.method.Name
}

// waiting reports whether a dispatched operation is still in flight.
func (m callFormModel) waiting() bool { return m.pendingID != 0 }

// validate parses every field against its declared type. It reports
// per-field errors with the failure offset and returns the values only when
// all fields parse.
func (m *callFormModel) validate() ([]sig.Value, bool) {
	values := make([]sig.Value, len(m.inputs))
	ok := true
	for i := range m.inputs {
		m.errs[i] = ""
		v, err := literal.Parse(m.inputs[i].Value(), m.types[i])
		if err != nil {
			ok = false
			m.errs[i] = err.Error()
			continue
		}
		values[i] = v
	}
	if !ok {
		return nil, false
	}
	return values, true
}

// setOutcome records a finished call or write for display.
func (m *callFormModel) setOutcome(text string, isErr bool) {
	m.pendingID = 0
	m.result = text
	m.resultErr = isErr
}

func (m *callFormModel) nextField(delta int) tea.Cmd {
	if len(m.inputs) == 0 {
		return nil
	}
	m.inputs[m.focus].Blur()
	m.focus = (m.focus + delta + len(m.inputs)) % len(m.inputs)
	return m.inputs[m.focus].Focus()
}

// Update forwards input to the focused field. Enter and Esc are handled by
// the root model.
func (m callFormModel) Update(msg tea.Msg) (callFormModel, tea.Cmd) {
	if m.waiting() || len(m.inputs) == 0 {
		return m, nil
	}
	switch km, ok := msg.(tea.KeyMsg); {
	case ok && km.Type == tea.KeyTab:
		return m, m.nextField(1)
	case ok && km.Type == tea.KeyShiftTab:
		return m, m.nextField(-1)
	}
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m callFormModel) View() string {
	var b strings.Builder
	b.WriteString(formTitleStyle.Render(m.title()))
	b.WriteByte('\n')
	b.WriteString(dimStyle.Render(m.service + " " + m.path))
	b.WriteByte('\n')

	if len(m.inputs) == 0 {
		b.WriteString(dimStyle.Render("no arguments"))
		b.WriteByte('\n')
	}
	for i := range m.inputs {
		b.WriteByte('\n')
		b.WriteString(formLabelStyle.Render(m.labels[i]))
		b.WriteByte('\n')
		b.WriteString(m.inputs[i].View())
		if m.errs[i] != "" {
			b.WriteByte('\n')
			b.WriteString(formErrorStyle.Render("  " + m.errs[i]))
		}
	}

	b.WriteByte('\n')
	switch {
	case m.waiting():
		b.WriteString(fetchingStyle.Render(spinnerFrames[m.spinner%len(spinnerFrames)] + " waiting... (esc cancels)"))
	case m.result != "":
		style := formValueStyle
		if m.resultErr {
			style = formErrorStyle
		}
		b.WriteString(style.Render(truncate(m.result, max(m.width-4, 16))))
	default:
		b.WriteString(statusStyle.Render("enter: send · tab: next field · esc: close"))
	}

	return popupStyle.Width(max(m.width, 20)).Render(b.String())
}
