// Package caller runs bus operations off the UI loop. Every operation is
// dispatched on its own goroutine, capped per service, and reports back
// through an EventBus so a single consumer can apply outcomes in order.
package caller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/busline/dscope/pkg/introspect"
	"github.com/busline/dscope/pkg/sig"
)

// Signal is one emission received from an active signal subscription.
type Signal struct {
	Service string
	Path    string
	Iface   string
	Member  string
	Body    []sig.Value
}

// Bus is the transport the orchestrator drives. Implementations must be
// safe for concurrent use.
type Bus interface {
	ListNames(ctx context.Context) ([]string, error)
	Introspect(ctx context.Context, service, path string) (*introspect.Node, error)
	Call(ctx context.Context, service, path, iface, method string, args []sig.Value, out sig.Signature) ([]sig.Value, error)
	GetProperty(ctx context.Context, service, path, iface, property string) (sig.Value, error)
	SetProperty(ctx context.Context, service, path, iface, property string, value sig.Value) error
	SubscribeSignal(ctx context.Context, service, path, iface, member string) (<-chan Signal, func(), error)
}

// RemoteError is a failure reported by the remote peer, as opposed to a
// transport or timeout failure on our side.
type RemoteError struct {
	Name    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return e.Name + ": " + e.Message
}

// ErrTimeout marks operations that exceeded the orchestrator deadline.
var ErrTimeout = errors.New("operation timed out")

// ErrBadArguments marks call or property requests whose values do not
// match the declared signature. Nothing is dispatched.
var ErrBadArguments = errors.New("arguments do not match signature")

// CallRequest names a method and carries already-parsed argument values.
type CallRequest struct {
	Service string
	Path    string
	Iface   string
	Method  introspect.Method
	Args    []sig.Value
}

// CallOutcome is the Data of an EventCallDone event. Exactly one of
// Returns or Err is meaningful.
type CallOutcome struct {
	Method  string
	Returns []sig.Value
	Err     error
}

// PropertyOutcome is the Data of property read/write events.
type PropertyOutcome struct {
	Iface    string
	Property string
	Value    sig.Value
	Err      error
}

// NodeOutcome is the Data of an EventNodeFetched event.
type NodeOutcome struct {
	Doc *introspect.Node
}

const (
	// DefaultTimeout bounds a single bus operation.
	DefaultTimeout = 25 * time.Second

	// DefaultServiceLimit caps concurrent operations against one service.
	DefaultServiceLimit = 4
)

type pendingOp struct {
	cancel context.CancelFunc
}

// Orchestrator owns the worker goroutines. The zero value is not usable,
// construct with New.
type Orchestrator struct {
	bus     Bus
	events  *EventBus
	timeout time.Duration
	limit   int

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]*pendingOp
	sems    map[string]chan struct{}
	wg      sync.WaitGroup
}

// Option adjusts orchestrator construction.
type Option func(*Orchestrator)

// WithTimeout overrides the per-operation deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithServiceLimit overrides the per-service concurrency cap.
func WithServiceLimit(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.limit = n
		}
	}
}

// New builds an Orchestrator over the given transport, publishing to events.
func New(bus Bus, events *EventBus, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		bus:     bus,
		events:  events,
		timeout: DefaultTimeout,
		limit:   DefaultServiceLimit,
		pending: make(map[uint64]*pendingOp),
		sems:    make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Events exposes the bus outcomes are published on.
func (o *Orchestrator) Events() *EventBus { return o.events }

// ListServices asynchronously lists bus names. The returned ID can be
// passed to Cancel.
func (o *Orchestrator) ListServices() uint64 {
	return o.dispatch("", "", func(ctx context.Context, id uint64) Event {
		names, err := o.bus.ListNames(ctx)
		if err != nil {
			return Event{Kind: EventError, ID: id, Data: o.classify(ctx, err)}
		}
		return Event{Kind: EventServicesListed, ID: id, Data: names}
	})
}

// FetchNode asynchronously introspects one object path.
func (o *Orchestrator) FetchNode(service, path string) uint64 {
	return o.dispatch(service, path, func(ctx context.Context, id uint64) Event {
		doc, err := o.bus.Introspect(ctx, service, path)
		if err != nil {
			return Event{Kind: EventNodeFailed, ID: id, Service: service, Path: path, Data: o.classify(ctx, err)}
		}
		return Event{Kind: EventNodeFetched, ID: id, Service: service, Path: path, Data: NodeOutcome{Doc: doc}}
	})
}

// Call validates req against the method's input signature and, when it
// conforms, dispatches the call. A validation failure is returned
// synchronously and nothing is sent.
func (o *Orchestrator) Call(req CallRequest) (uint64, error) {
	in := req.Method.InSignature()
	if !sig.ConformsAll(req.Args, in) {
		return 0, fmt.Errorf("%s expects %q: %w", req.Method.Name, in.String(), ErrBadArguments)
	}
	out := req.Method.OutSignature()

	id := o.dispatch(req.Service, req.Path, func(ctx context.Context, id uint64) Event {
		returns, err := o.bus.Call(ctx, req.Service, req.Path, req.Iface, req.Method.Name, req.Args, out)
		outcome := CallOutcome{Method: req.Method.Name, Returns: returns, Err: o.classify(ctx, err)}
		return Event{Kind: EventCallDone, ID: id, Service: req.Service, Path: req.Path, Data: outcome}
	})
	return id, nil
}

// ReadProperty asynchronously reads one property value.
func (o *Orchestrator) ReadProperty(service, path, iface, property string) uint64 {
	return o.dispatch(service, path, func(ctx context.Context, id uint64) Event {
		v, err := o.bus.GetProperty(ctx, service, path, iface, property)
		outcome := PropertyOutcome{Iface: iface, Property: property, Value: v, Err: o.classify(ctx, err)}
		return Event{Kind: EventPropertyRead, ID: id, Service: service, Path: path, Data: outcome}
	})
}

// WriteProperty validates value against the declared property type and,
// when it conforms, dispatches the write.
func (o *Orchestrator) WriteProperty(service, path, iface string, prop introspect.Property, value sig.Value) (uint64, error) {
	if !sig.Conforms(value, prop.Type) {
		return 0, fmt.Errorf("%s expects %q: %w", prop.Name, prop.Type.String(), ErrBadArguments)
	}
	id := o.dispatch(service, path, func(ctx context.Context, id uint64) Event {
		err := o.bus.SetProperty(ctx, service, path, iface, prop.Name, value)
		outcome := PropertyOutcome{Iface: iface, Property: prop.Name, Value: value, Err: o.classify(ctx, err)}
		return Event{Kind: EventPropertyWrote, ID: id, Service: service, Path: path, Data: outcome}
	})
	return id, nil
}

// WatchSignal subscribes to a signal and republishes every emission as an
// EventSignal until the subscription is cancelled with Cancel.
func (o *Orchestrator) WatchSignal(service, path, iface, member string) (uint64, error) {
	ctx, cancel := context.WithCancel(context.Background())
	ch, stop, err := o.bus.SubscribeSignal(ctx, service, path, iface, member)
	if err != nil {
		cancel()
		return 0, err
	}

	o.mu.Lock()
	o.nextID++
	id := o.nextID
	o.pending[id] = &pendingOp{cancel: cancel}
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case s, ok := <-ch:
				if !ok {
					return
				}
				if !o.alive(id) {
					return
				}
				o.events.Publish(Event{
					Kind:      EventSignal,
					ID:        id,
					Service:   service,
					Path:      path,
					Timestamp: time.Now(),
					Data:      s,
				})
			}
		}
	}()
	return id, nil
}

// Cancel aborts an in-flight operation or signal subscription. The
// operation's outcome, even if already computed, is never delivered; a
// single EventCancelled is published instead. Cancel reports whether the
// ID was still live.
func (o *Orchestrator) Cancel(id uint64) bool {
	o.mu.Lock()
	op, ok := o.pending[id]
	if ok {
		delete(o.pending, id)
	}
	o.mu.Unlock()
	if !ok {
		return false
	}
	op.cancel()
	o.events.Publish(Event{Kind: EventCancelled, ID: id, Timestamp: time.Now()})
	return true
}

// Close cancels everything outstanding and waits for workers to exit.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	ops := make([]*pendingOp, 0, len(o.pending))
	for id, op := range o.pending {
		ops = append(ops, op)
		delete(o.pending, id)
	}
	o.mu.Unlock()
	for _, op := range ops {
		op.cancel()
	}
	o.wg.Wait()
}

// dispatch registers a pending op, acquires the service slot and runs fn on
// a fresh goroutine. The event fn returns is published only if the op was
// not cancelled in the meantime.
func (o *Orchestrator) dispatch(service, path string, fn func(ctx context.Context, id uint64) Event) uint64 {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)

	o.mu.Lock()
	o.nextID++
	id := o.nextID
	o.pending[id] = &pendingOp{cancel: cancel}
	sem := o.semLocked(service)
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()

		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
		case <-ctx.Done():
			o.deliver(id, Event{Kind: EventError, ID: id, Service: service, Path: path, Data: o.classify(ctx, ctx.Err())})
			return
		}

		o.deliver(id, fn(ctx, id))
	}()
	return id
}

// deliver publishes e unless the op was cancelled. Removing the pending
// entry and publishing happen under one decision so a Cancel racing with
// completion yields exactly one of the two events.
func (o *Orchestrator) deliver(id uint64, e Event) {
	o.mu.Lock()
	_, ok := o.pending[id]
	if ok {
		delete(o.pending, id)
	}
	o.mu.Unlock()
	if !ok {
		return
	}
	e.Timestamp = time.Now()
	o.events.Publish(e)
}

func (o *Orchestrator) alive(id uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.pending[id]
	return ok
}

func (o *Orchestrator) semLocked(service string) chan struct{} {
	sem, ok := o.sems[service]
	if !ok {
		sem = make(chan struct{}, o.limit)
		o.sems[service] = sem
	}
	return sem
}

// classify maps transport errors to the caller error taxonomy: deadline
// expiry becomes ErrTimeout, remote errors pass through, everything else is
// a local failure.
func (o *Orchestrator) classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, o.timeout)
	}
	return err
}
