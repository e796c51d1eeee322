package main

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/busline/dscope/pkg/caller"
)

// startBridge launches the event watcher goroutine. It only calls p.Send();
// it never touches model state directly. Returns a cancel function that
// cancels the bridge context and waits for the goroutine to exit, ensuring
// no stale messages are sent after return.
func startBridge(ctx context.Context, p *tea.Program, events *caller.EventBus) context.CancelFunc {
	bridgeCtx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	sub := events.Subscribe(64)

	wg.Go(func() {
		defer events.Unsubscribe(sub)
		for {
			select {
			case <-bridgeCtx.Done():
				return
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				p.Send(translate(ev))
			}
		}
	})

	return func() {
		cancel()
		wg.Wait()
	}
}

// translate converts an orchestrator event into the bubbletea message the
// update loop consumes.
func translate(ev caller.Event) tea.Msg {
	switch ev.Kind {
	case caller.EventServicesListed:
		names, _ := ev.Data.([]string)
		return servicesListedMsg{id: ev.ID, names: names}

	case caller.EventNodeFetched:
		outcome, _ := ev.Data.(caller.NodeOutcome)
		return nodeFetchedMsg{id: ev.ID, service: ev.Service, path: ev.Path, doc: outcome.Doc}

	case caller.EventNodeFailed:
		err, _ := ev.Data.(error)
		return nodeFailedMsg{id: ev.ID, service: ev.Service, path: ev.Path, err: err}

	case caller.EventCallDone:
		outcome, _ := ev.Data.(caller.CallOutcome)
		return callDoneMsg{id: ev.ID, service: ev.Service, outcome: outcome}

	case caller.EventPropertyRead:
		outcome, _ := ev.Data.(caller.PropertyOutcome)
		return propertyMsg{id: ev.ID, path: ev.Path, outcome: outcome}

	case caller.EventPropertyWrote:
		outcome, _ := ev.Data.(caller.PropertyOutcome)
		return propertyMsg{id: ev.ID, path: ev.Path, wrote: true, outcome: outcome}

	case caller.EventSignal:
		s, _ := ev.Data.(caller.Signal)
		return signalMsg{id: ev.ID, signal: s}

	case caller.EventCancelled:
		return cancelledMsg{id: ev.ID}

	case caller.EventError:
		err, _ := ev.Data.(error)
		return opErrorMsg{id: ev.ID, err: err}
	}
	return opErrorMsg{id: ev.ID}
}
