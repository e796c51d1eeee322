// Package dbusconn adapts a godbus connection to the transport interface
// the orchestrator drives. All methods honor their context and translate
// peer-reported errors into RemoteError.
package dbusconn

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/busline/dscope/pkg/caller"
	"github.com/busline/dscope/pkg/introspect"
	"github.com/busline/dscope/pkg/sig"
)

const (
	busIface           = "org.freedesktop.DBus"
	introspectableCall = "org.freedesktop.DBus.Introspectable.Introspect"
	propertiesIface    = "org.freedesktop.DBus.Properties"
)

// Conn wraps one live bus connection.
type Conn struct {
	conn *dbus.Conn
}

// Connect opens a connection. A non-empty address wins over the bus name;
// bus is "session" or "system", defaulting to session.
func Connect(bus, address string) (*Conn, error) {
	var (
		c   *dbus.Conn
		err error
	)
	switch {
	case address != "":
		c, err = dbus.Connect(address)
	case bus == "system":
		c, err = dbus.ConnectSystemBus()
	default:
		c, err = dbus.ConnectSessionBus()
	}
	if err != nil {
		return nil, fmt.Errorf("connect to bus: %w", err)
	}
	return &Conn{conn: c}, nil
}

// Close tears down the connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Name returns our unique name on the bus.
func (c *Conn) Name() string {
	return c.conn.Names()[0]
}

// ListNames lists every name currently owned on the bus.
func (c *Conn) ListNames(ctx context.Context) ([]string, error) {
	var names []string
	call := c.conn.BusObject().CallWithContext(ctx, busIface+".ListNames", 0)
	if err := call.Store(&names); err != nil {
		return nil, mapError(err)
	}
	return names, nil
}

// Introspect fetches and parses the introspection document at (service, path).
func (c *Conn) Introspect(ctx context.Context, service, path string) (*introspect.Node, error) {
	if !sig.ValidObjectPath(path) {
		return nil, fmt.Errorf("invalid object path %q", path)
	}
	var xml string
	obj := c.conn.Object(service, dbus.ObjectPath(path))
	if err := obj.CallWithContext(ctx, introspectableCall, 0).Store(&xml); err != nil {
		return nil, mapError(err)
	}
	doc, err := introspect.Parse([]byte(xml))
	if err != nil {
		return nil, fmt.Errorf("parse introspection of %s: %w", path, err)
	}
	return doc, nil
}

// Call invokes iface.method with already-validated arguments and decodes the
// reply body against the declared output signature.
func (c *Conn) Call(ctx context.Context, service, path, iface, method string, args []sig.Value, out sig.Signature) ([]sig.Value, error) {
	natives, err := EncodeAll(args)
	if err != nil {
		return nil, err
	}
	obj := c.conn.Object(service, dbus.ObjectPath(path))
	call := obj.CallWithContext(ctx, iface+"."+method, 0, natives...)
	if call.Err != nil {
		return nil, mapError(call.Err)
	}
	return DecodeBody(call.Body, out)
}

// GetProperty reads one property through org.freedesktop.DBus.Properties.
func (c *Conn) GetProperty(ctx context.Context, service, path, iface, property string) (sig.Value, error) {
	obj := c.conn.Object(service, dbus.ObjectPath(path))
	var v dbus.Variant
	call := obj.CallWithContext(ctx, propertiesIface+".Get", 0, iface, property)
	if err := call.Store(&v); err != nil {
		return nil, mapError(err)
	}
	wrapped, err := Decode(v, sig.TypeVariant)
	if err != nil {
		return nil, err
	}
	return wrapped.(sig.Variant).Value, nil
}

// SetProperty writes one property through org.freedesktop.DBus.Properties.
func (c *Conn) SetProperty(ctx context.Context, service, path, iface, property string, value sig.Value) error {
	wrapped, err := Encode(sig.Variant{Value: value})
	if err != nil {
		return err
	}
	obj := c.conn.Object(service, dbus.ObjectPath(path))
	call := obj.CallWithContext(ctx, propertiesIface+".Set", 0, iface, property, wrapped)
	if call.Err != nil {
		return mapError(call.Err)
	}
	return nil
}

// SubscribeSignal adds a match rule for one signal and feeds decoded
// emissions until stop is called.
func (c *Conn) SubscribeSignal(ctx context.Context, service, path, iface, member string) (<-chan caller.Signal, func(), error) {
	opts := []dbus.MatchOption{
		dbus.WithMatchSender(service),
		dbus.WithMatchObjectPath(dbus.ObjectPath(path)),
		dbus.WithMatchInterface(iface),
		dbus.WithMatchMember(member),
	}
	if err := c.conn.AddMatchSignalContext(ctx, opts...); err != nil {
		return nil, nil, mapError(err)
	}

	raw := make(chan *dbus.Signal, 16)
	c.conn.Signal(raw)

	out := make(chan caller.Signal, 16)
	go func() {
		defer close(out)
		name := iface + "." + member
		for s := range raw {
			// The channel sees every signal on the connection; keep
			// only the subscribed member.
			if s.Name != name || string(s.Path) != path {
				continue
			}
			body := make([]sig.Value, 0, len(s.Body))
			for _, n := range s.Body {
				v, err := DecodeAny(n)
				if err != nil {
					v = sig.Str(fmt.Sprintf("<undecodable %T>", n))
				}
				body = append(body, v)
			}
			// Drop rather than block when the consumer stops reading.
			select {
			case out <- caller.Signal{
				Service: service,
				Path:    path,
				Iface:   iface,
				Member:  member,
				Body:    body,
			}:
			default:
			}
		}
	}()

	stop := func() {
		_ = c.conn.RemoveMatchSignal(opts...)
		c.conn.RemoveSignal(raw)
		close(raw)
	}
	return out, stop, nil
}

// mapError converts a peer-reported dbus error into RemoteError; transport
// errors pass through unchanged.
func mapError(err error) error {
	var derr dbus.Error
	if errors.As(err, &derr) {
		msg := ""
		if len(derr.Body) > 0 {
			if s, ok := derr.Body[0].(string); ok {
				msg = s
			}
		}
		return &caller.RemoteError{Name: derr.Name, Message: msg}
	}
	return err
}
