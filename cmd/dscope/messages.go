package main

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/busline/dscope/pkg/caller"
	"github.com/busline/dscope/pkg/introspect"
)

// servicesListedMsg delivers the bus name listing from the bridge goroutine.
type servicesListedMsg struct {
	id    uint64
	names []string
}

// nodeFetchedMsg delivers one parsed introspection document.
type nodeFetchedMsg struct {
	id      uint64
	service string
	path    string
	doc     *introspect.Node
}

// nodeFailedMsg reports an introspection failure for one node.
type nodeFailedMsg struct {
	id      uint64
	service string
	path    string
	err     error
}

// callDoneMsg reports a finished method call.
type callDoneMsg struct {
	id      uint64
	service string
	outcome caller.CallOutcome
}

// propertyMsg reports a finished property read or write.
type propertyMsg struct {
	id      uint64
	path    string
	wrote   bool
	outcome caller.PropertyOutcome
}

// signalMsg delivers one emission from an active signal subscription.
type signalMsg struct {
	id     uint64
	signal caller.Signal
}

// cancelledMsg confirms that an operation was cancelled before completing.
type cancelledMsg struct {
	id uint64
}

// opErrorMsg reports an operation that failed outside a specific node or call.
type opErrorMsg struct {
	id  uint64
	err error
}

// programReadyMsg passes the *tea.Program to the model so it can start the
// bridge goroutine.
type programReadyMsg struct {
	program *tea.Program
}

// tickMsg drives the spinner on in-flight operations.
type tickMsg time.Time
