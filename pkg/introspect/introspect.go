// Package introspect parses the standard D-Bus introspection XML into typed
// interface descriptors. Decoding is permissive about unknown elements and
// attributes, but every signature string inside the document is validated
// against the sig grammar before a descriptor is produced.
package introspect

import (
	"encoding/xml"
	"fmt"

	"github.com/busline/dscope/pkg/sig"
)

// Node is the root element of an introspection document. Child nodes carry
// only their relative path segment; their contents are fetched separately
// and lazily.
type Node struct {
	XMLName    xml.Name       `xml:"node"`
	Name       string         `xml:"name,attr,omitempty"`
	Interfaces []xmlInterface `xml:"interface"`
	Children   []childNode    `xml:"node"`
}

type childNode struct {
	Name string `xml:"name,attr"`
}

type xmlInterface struct {
	Name       string        `xml:"name,attr"`
	Methods    []xmlMethod   `xml:"method"`
	Signals    []xmlSignal   `xml:"signal"`
	Properties []xmlProperty `xml:"property"`
}

type xmlMethod struct {
	Name string   `xml:"name,attr"`
	Args []xmlArg `xml:"arg"`
}

type xmlSignal struct {
	Name string   `xml:"name,attr"`
	Args []xmlArg `xml:"arg"`
}

type xmlProperty struct {
	Name   string `xml:"name,attr"`
	Type   string `xml:"type,attr"`
	Access string `xml:"access,attr"`
}

type xmlArg struct {
	Name      string `xml:"name,attr"`
	Type      string `xml:"type,attr"`
	Direction string `xml:"direction,attr"`
}

// Parse decodes an introspection document.
func Parse(data []byte) (*Node, error) {
	var n Node
	if err := xml.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("introspection xml: %w", err)
	}
	return &n, nil
}

// ChildNames returns the direct child path segments, empty names dropped.
func (n *Node) ChildNames() []string {
	var names []string
	for _, c := range n.Children {
		if c.Name != "" {
			names = append(names, c.Name)
		}
	}
	return names
}

// Access is a property's access mode.
type Access string

const (
	AccessRead      Access = "read"
	AccessWrite     Access = "write"
	AccessReadWrite Access = "readwrite"
)

// Readable reports whether the property can be read.
func (a Access) Readable() bool { return a == AccessRead || a == AccessReadWrite }

// Writable reports whether the property can be written.
func (a Access) Writable() bool { return a == AccessWrite || a == AccessReadWrite }

// Arg is a named, typed method or signal argument.
type Arg struct {
	Name string
	Type sig.Type
}

// Method describes a callable member: ordered in-arguments and
// out-arguments.
type Method struct {
	Name string
	In   []Arg
	Out  []Arg
}

// InSignature returns the ordered in-argument types.
func (m Method) InSignature() sig.Signature {
	s := make(sig.Signature, len(m.In))
	for i, a := range m.In {
		s[i] = a.Type
	}
	return s
}

// OutSignature returns the ordered out-argument types.
func (m Method) OutSignature() sig.Signature {
	s := make(sig.Signature, len(m.Out))
	for i, a := range m.Out {
		s[i] = a.Type
	}
	return s
}

// Property describes a readable and/or writable typed member.
type Property struct {
	Name   string
	Type   sig.Type
	Access Access
}

// Signal describes an emitted member and its argument types.
type Signal struct {
	Name string
	Args []Arg
}

// Interface is the typed descriptor for one interface at one object path.
type Interface struct {
	Name       string
	Methods    []Method
	Properties []Property
	Signals    []Signal
}

// Describe converts the raw document into typed interface descriptors. A
// member whose signature fails to validate is dropped and reported in the
// returned error list; it never fails the node as a whole.
func (n *Node) Describe() ([]Interface, []error) {
	var (
		out  []Interface
		errs []error
	)
	for _, xi := range n.Interfaces {
		iface := Interface{Name: xi.Name}

		for _, xm := range xi.Methods {
			m := Method{Name: xm.Name}
			ok := true
			for _, xa := range xm.Args {
				t, err := sig.ParseSingle(xa.Type)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s.%s arg %q: %w", xi.Name, xm.Name, xa.Name, err))
					ok = false
					break
				}
				arg := Arg{Name: xa.Name, Type: t}
				// Methods default unspecified direction to "in".
				if xa.Direction == "out" {
					m.Out = append(m.Out, arg)
				} else {
					m.In = append(m.In, arg)
				}
			}
			if ok {
				iface.Methods = append(iface.Methods, m)
			}
		}

		for _, xp := range xi.Properties {
			t, err := sig.ParseSingle(xp.Type)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s property %q: %w", xi.Name, xp.Name, err))
				continue
			}
			access := Access(xp.Access)
			switch access {
			case AccessRead, AccessWrite, AccessReadWrite:
			default:
				access = AccessRead
			}
			iface.Properties = append(iface.Properties, Property{Name: xp.Name, Type: t, Access: access})
		}

		for _, xs := range xi.Signals {
			s := Signal{Name: xs.Name}
			ok := true
			for _, xa := range xs.Args {
				t, err := sig.ParseSingle(xa.Type)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s signal %q arg %q: %w", xi.Name, xs.Name, xa.Name, err))
					ok = false
					break
				}
				s.Args = append(s.Args, Arg{Name: xa.Name, Type: t})
			}
			if ok {
				iface.Signals = append(iface.Signals, s)
			}
		}

		out = append(out, iface)
	}
	return out, errs
}
