package caller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/busline/dscope/pkg/introspect"
	"github.com/busline/dscope/pkg/literal"
	"github.com/busline/dscope/pkg/sig"
)

type mockBus struct {
	mu          sync.Mutex
	names       []string
	introspects map[string]*introspect.Node
	callFn      func(ctx context.Context, method string, args []sig.Value) ([]sig.Value, error)
	signals     chan Signal
	active      int
	maxActive   int
}

func (m *mockBus) ListNames(ctx context.Context) ([]string, error) {
	return m.names, nil
}

func (m *mockBus) Introspect(ctx context.Context, service, path string) (*introspect.Node, error) {
	if doc, ok := m.introspects[path]; ok {
		return doc, nil
	}
	return nil, &RemoteError{Name: "org.freedesktop.DBus.Error.AccessDenied"}
}

func (m *mockBus) Call(ctx context.Context, service, path, iface, method string, args []sig.Value, out sig.Signature) ([]sig.Value, error) {
	m.mu.Lock()
	m.active++
	if m.active > m.maxActive {
		m.maxActive = m.active
	}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.active--
		m.mu.Unlock()
	}()
	return m.callFn(ctx, method, args)
}

func (m *mockBus) GetProperty(ctx context.Context, service, path, iface, property string) (sig.Value, error) {
	return sig.Str("v1.0"), nil
}

func (m *mockBus) SetProperty(ctx context.Context, service, path, iface, property string, value sig.Value) error {
	return nil
}

func (m *mockBus) SubscribeSignal(ctx context.Context, service, path, iface, member string) (<-chan Signal, func(), error) {
	if m.signals == nil {
		return nil, nil, errors.New("signals unavailable")
	}
	return m.signals, func() {}, nil
}

func nextEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case e := <-sub.C:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func noEvent(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case e := <-sub.C:
		t.Fatalf("unexpected event %q", e.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}

func addMethod(t *testing.T) introspect.Method {
	t.Helper()
	i32 := sig.MustParseSingle("i")
	return introspect.Method{
		Name: "Add",
		In:   []introspect.Arg{{Name: "a", Type: i32}, {Name: "b", Type: i32}},
		Out:  []introspect.Arg{{Name: "sum", Type: i32}},
	}
}

func TestCallRoundTrip(t *testing.T) {
	bus := &mockBus{
		callFn: func(_ context.Context, method string, args []sig.Value) ([]sig.Value, error) {
			require.Equal(t, "Add", method)
			a := args[0].(sig.Int32)
			b := args[1].(sig.Int32)
			return []sig.Value{a + b}, nil
		},
	}
	o := New(bus, NewEventBus())
	defer o.Close()
	sub := o.Events().Subscribe(8)
	defer o.Events().Unsubscribe(sub)

	// Arguments arrive as typed text, exactly as a user would enter them.
	parsed, err := literal.Parse("(2,3)", sig.MustParseSingle("(ii)"))
	require.NoError(t, err)
	args := parsed.(sig.Struct).Fields

	id, err := o.Call(CallRequest{
		Service: "com.example.Demo",
		Path:    "/com/example/Demo",
		Iface:   "com.example.Demo",
		Method:  addMethod(t),
		Args:    args,
	})
	require.NoError(t, err)

	e := nextEvent(t, sub)
	assert.Equal(t, EventCallDone, e.Kind)
	assert.Equal(t, id, e.ID)
	outcome := e.Data.(CallOutcome)
	require.NoError(t, outcome.Err)
	require.Len(t, outcome.Returns, 1)
	assert.Equal(t, sig.Int32(5), outcome.Returns[0])
}

func TestCallRejectsNonConformingArgs(t *testing.T) {
	bus := &mockBus{
		callFn: func(context.Context, string, []sig.Value) ([]sig.Value, error) {
			t.Fatal("must not dispatch")
			return nil, nil
		},
	}
	o := New(bus, NewEventBus())
	defer o.Close()
	sub := o.Events().Subscribe(8)
	defer o.Events().Unsubscribe(sub)

	_, err := o.Call(CallRequest{
		Method: addMethod(t),
		Args:   []sig.Value{sig.Str("two"), sig.Str("three")},
	})
	require.ErrorIs(t, err, ErrBadArguments)
	noEvent(t, sub)
}

func TestCallRemoteError(t *testing.T) {
	remote := &RemoteError{Name: "org.freedesktop.DBus.Error.Failed", Message: "boom"}
	bus := &mockBus{
		callFn: func(context.Context, string, []sig.Value) ([]sig.Value, error) {
			return nil, remote
		},
	}
	o := New(bus, NewEventBus())
	defer o.Close()
	sub := o.Events().Subscribe(8)
	defer o.Events().Unsubscribe(sub)

	_, err := o.Call(CallRequest{
		Method: addMethod(t),
		Args:   []sig.Value{sig.Int32(1), sig.Int32(2)},
	})
	require.NoError(t, err)

	outcome := nextEvent(t, sub).Data.(CallOutcome)
	var re *RemoteError
	require.ErrorAs(t, outcome.Err, &re)
	assert.Equal(t, "org.freedesktop.DBus.Error.Failed: boom", re.Error())
}

func TestCallTimeout(t *testing.T) {
	bus := &mockBus{
		callFn: func(ctx context.Context, _ string, _ []sig.Value) ([]sig.Value, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	o := New(bus, NewEventBus(), WithTimeout(20*time.Millisecond))
	defer o.Close()
	sub := o.Events().Subscribe(8)
	defer o.Events().Unsubscribe(sub)

	_, err := o.Call(CallRequest{
		Method: addMethod(t),
		Args:   []sig.Value{sig.Int32(1), sig.Int32(2)},
	})
	require.NoError(t, err)

	outcome := nextEvent(t, sub).Data.(CallOutcome)
	assert.ErrorIs(t, outcome.Err, ErrTimeout)
}

func TestCancelSuppressesOutcome(t *testing.T) {
	release := make(chan struct{})
	bus := &mockBus{
		callFn: func(ctx context.Context, _ string, _ []sig.Value) ([]sig.Value, error) {
			<-release
			return []sig.Value{sig.Int32(42)}, nil
		},
	}
	o := New(bus, NewEventBus())
	defer o.Close()
	sub := o.Events().Subscribe(8)
	defer o.Events().Unsubscribe(sub)

	id, err := o.Call(CallRequest{
		Method: addMethod(t),
		Args:   []sig.Value{sig.Int32(1), sig.Int32(2)},
	})
	require.NoError(t, err)

	require.True(t, o.Cancel(id))
	close(release)

	e := nextEvent(t, sub)
	assert.Equal(t, EventCancelled, e.Kind)
	assert.Equal(t, id, e.ID)
	// The computed result must never surface after a cancel.
	noEvent(t, sub)

	assert.False(t, o.Cancel(id))
}

func TestServiceConcurrencyCap(t *testing.T) {
	release := make(chan struct{})
	bus := &mockBus{
		callFn: func(ctx context.Context, _ string, _ []sig.Value) ([]sig.Value, error) {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return []sig.Value{sig.Int32(0)}, nil
		},
	}
	o := New(bus, NewEventBus(), WithServiceLimit(2))
	defer o.Close()
	sub := o.Events().Subscribe(16)
	defer o.Events().Unsubscribe(sub)

	req := CallRequest{
		Service: "com.example.Busy",
		Method:  addMethod(t),
		Args:    []sig.Value{sig.Int32(1), sig.Int32(2)},
	}
	for i := 0; i < 6; i++ {
		_, err := o.Call(req)
		require.NoError(t, err)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	for i := 0; i < 6; i++ {
		assert.Equal(t, EventCallDone, nextEvent(t, sub).Kind)
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()
	assert.LessOrEqual(t, bus.maxActive, 2)
}

func TestListServices(t *testing.T) {
	bus := &mockBus{names: []string{"org.freedesktop.DBus", "com.example.Demo"}}
	o := New(bus, NewEventBus())
	defer o.Close()
	sub := o.Events().Subscribe(8)
	defer o.Events().Unsubscribe(sub)

	o.ListServices()
	e := nextEvent(t, sub)
	assert.Equal(t, EventServicesListed, e.Kind)
	assert.Equal(t, bus.names, e.Data)
}

func TestFetchNodeOutcomes(t *testing.T) {
	doc, err := introspect.Parse([]byte(`<node><node name="child"/></node>`))
	require.NoError(t, err)
	bus := &mockBus{introspects: map[string]*introspect.Node{"/": doc}}
	o := New(bus, NewEventBus())
	defer o.Close()
	sub := o.Events().Subscribe(8)
	defer o.Events().Unsubscribe(sub)

	o.FetchNode("com.example.Demo", "/")
	e := nextEvent(t, sub)
	require.Equal(t, EventNodeFetched, e.Kind)
	assert.Equal(t, "/", e.Path)
	assert.Equal(t, []string{"child"}, e.Data.(NodeOutcome).Doc.ChildNames())

	o.FetchNode("com.example.Demo", "/locked")
	e = nextEvent(t, sub)
	require.Equal(t, EventNodeFailed, e.Kind)
	var re *RemoteError
	assert.ErrorAs(t, e.Data.(error), &re)
}

func TestReadAndWriteProperty(t *testing.T) {
	bus := &mockBus{}
	o := New(bus, NewEventBus())
	defer o.Close()
	sub := o.Events().Subscribe(8)
	defer o.Events().Unsubscribe(sub)

	o.ReadProperty("com.example.Demo", "/", "com.example.Demo", "Version")
	e := nextEvent(t, sub)
	require.Equal(t, EventPropertyRead, e.Kind)
	got := e.Data.(PropertyOutcome)
	require.NoError(t, got.Err)
	assert.Equal(t, sig.Str("v1.0"), got.Value)

	prop := introspect.Property{Name: "Version", Type: sig.MustParseSingle("s"), Access: introspect.AccessReadWrite}
	_, err := o.WriteProperty("com.example.Demo", "/", "com.example.Demo", prop, sig.Int32(1))
	require.ErrorIs(t, err, ErrBadArguments)

	_, err = o.WriteProperty("com.example.Demo", "/", "com.example.Demo", prop, sig.Str("v2"))
	require.NoError(t, err)
	assert.Equal(t, EventPropertyWrote, nextEvent(t, sub).Kind)
}

func TestWatchSignalRepublishes(t *testing.T) {
	signals := make(chan Signal, 4)
	bus := &mockBus{signals: signals}
	o := New(bus, NewEventBus())
	defer o.Close()
	sub := o.Events().Subscribe(8)
	defer o.Events().Unsubscribe(sub)

	id, err := o.WatchSignal("com.example.Demo", "/", "com.example.Demo", "Changed")
	require.NoError(t, err)

	signals <- Signal{Member: "Changed", Body: []sig.Value{sig.Uint32(7)}}
	e := nextEvent(t, sub)
	require.Equal(t, EventSignal, e.Kind)
	assert.Equal(t, id, e.ID)
	assert.Equal(t, "Changed", e.Data.(Signal).Member)

	require.True(t, o.Cancel(id))
	assert.Equal(t, EventCancelled, nextEvent(t, sub).Kind)
	signals <- Signal{Member: "Changed"}
	noEvent(t, sub)
}

func TestWatchSignalSubscribeFailure(t *testing.T) {
	o := New(&mockBus{}, NewEventBus())
	defer o.Close()

	_, err := o.WatchSignal("com.example.Demo", "/", "com.example.Demo", "Changed")
	require.Error(t, err)
}
