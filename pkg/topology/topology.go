// Package topology holds the discovered shape of the bus: the service list
// and, per service, a lazily populated tree of object paths with their
// introspected interfaces. The Tree is a pure state machine: it performs no
// I/O and is not safe for concurrent use. It is owned by the single consumer
// of the results channel (the UI update loop); background fetch tasks
// communicate only through messages, never by touching the tree.
package topology

import (
	"fmt"
	"sort"
	"strings"

	"github.com/busline/dscope/pkg/introspect"
)

// FetchState is the lifecycle of one node's introspection.
type FetchState int

const (
	// Unfetched nodes are known to exist but have never been introspected.
	Unfetched FetchState = iota
	// Fetching nodes have exactly one introspection in flight.
	Fetching
	// Populated nodes carry interfaces and child segments.
	Populated
	// Errored nodes failed their last fetch; siblings are unaffected.
	Errored
)

func (s FetchState) String() string {
	switch s {
	case Unfetched:
		return "unfetched"
	case Fetching:
		return "fetching"
	case Populated:
		return "populated"
	case Errored:
		return "errored"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Node is one object path of one service. Nodes are created on first
// discovery and never removed except by a full Reset; interfaces are
// replaced wholesale on re-fetch.
type Node struct {
	Service string
	Path    string

	parent   *Node
	children []*Node // sorted by path
	byName   map[string]*Node

	state      FetchState
	err        string
	interfaces []introspect.Interface
	warnings   []string // dropped-descriptor notes from the last fetch
}

// State returns the node's fetch state.
func (n *Node) State() FetchState { return n.state }

// Err returns the failure message of an Errored node.
func (n *Node) Err() string { return n.err }

// Interfaces returns the introspected interface descriptors. The returned
// slice is owned by the tree; callers must not mutate it.
func (n *Node) Interfaces() []introspect.Interface { return n.interfaces }

// Warnings returns notes about descriptors dropped during the last fetch
// (e.g. malformed member signatures).
func (n *Node) Warnings() []string { return n.warnings }

// Children returns the child nodes sorted by path. The slice is owned by
// the tree.
func (n *Node) Children() []*Node { return n.children }

// Parent returns the parent node, or nil at a service root.
func (n *Node) Parent() *Node { return n.parent }

// Segment returns the last path segment, or "/" for the root.
func (n *Node) Segment() string {
	if n.Path == "/" {
		return "/"
	}
	return n.Path[strings.LastIndexByte(n.Path, '/')+1:]
}

func (n *Node) child(segment string) *Node {
	if n.byName == nil {
		return nil
	}
	return n.byName[segment]
}

func (n *Node) addChild(segment string) *Node {
	if c := n.child(segment); c != nil {
		return c
	}
	path := n.Path + "/" + segment
	if n.Path == "/" {
		path = "/" + segment
	}
	c := &Node{Service: n.Service, Path: path, parent: n}
	if n.byName == nil {
		n.byName = make(map[string]*Node)
	}
	n.byName[segment] = c
	n.children = append(n.children, c)
	sort.Slice(n.children, func(i, j int) bool { return n.children[i].Path < n.children[j].Path })
	return c
}

// Tree is the forest of all discovered services. The zero value is ready to
// use.
type Tree struct {
	services []string
	roots    map[string]*Node
	inflight map[string]struct{} // keyed by service + "\x00" + path
}

func fetchKey(service, path string) string { return service + "\x00" + path }

// SetServices replaces the service list wholesale. Known object forests are
// kept for services that remain listed; forests of vanished services are
// dropped.
func (t *Tree) SetServices(names []string) {
	t.services = append([]string(nil), names...)
	sort.Strings(t.services)

	if t.roots == nil {
		return
	}
	keep := make(map[string]struct{}, len(names))
	for _, n := range names {
		keep[n] = struct{}{}
	}
	for svc := range t.roots {
		if _, ok := keep[svc]; !ok {
			delete(t.roots, svc)
		}
	}
}

// Services returns the current service list, sorted.
func (t *Tree) Services() []string { return t.services }

// Root returns the root node ("/") for a service, creating it Unfetched on
// first use.
func (t *Tree) Root(service string) *Node {
	if t.roots == nil {
		t.roots = make(map[string]*Node)
	}
	n, ok := t.roots[service]
	if !ok {
		n = &Node{Service: service, Path: "/"}
		t.roots[service] = n
	}
	return n
}

// Lookup finds the node for (service, path), or nil if it was never
// discovered. Lookup never creates nodes.
func (t *Tree) Lookup(service, path string) *Node {
	root, ok := t.roots[service]
	if !ok {
		return nil
	}
	if path == "/" {
		return root
	}
	n := root
	for seg := range strings.SplitSeq(strings.TrimPrefix(path, "/"), "/") {
		n = n.child(seg)
		if n == nil {
			return nil
		}
	}
	return n
}

// BeginFetch transitions a node to Fetching and records it in the in-flight
// set. It returns false and changes nothing when a fetch for the same
// (service, path) is already outstanding, so concurrent expand/refresh
// intents collapse into a single network request.
func (t *Tree) BeginFetch(service, path string) bool {
	key := fetchKey(service, path)
	if _, busy := t.inflight[key]; busy {
		return false
	}
	n := t.Lookup(service, path)
	if n == nil {
		if path != "/" {
			return false
		}
		n = t.Root(service)
	}
	if n.state == Fetching {
		return false
	}
	if t.inflight == nil {
		t.inflight = make(map[string]struct{})
	}
	t.inflight[key] = struct{}{}
	n.state = Fetching
	return true
}

// Fetching reports whether a fetch for (service, path) is outstanding.
func (t *Tree) Fetching(service, path string) bool {
	_, busy := t.inflight[fetchKey(service, path)]
	return busy
}

// ApplyNode completes a fetch: the node becomes Populated, its interfaces
// are replaced (never merged) and any newly reported child segments are
// created Unfetched. Existing children are kept; re-fetching a node never
// destroys an already explored subtree.
func (t *Tree) ApplyNode(service, path string, doc *introspect.Node) error {
	n, err := t.endFetch(service, path)
	if err != nil {
		return err
	}

	ifaces, warns := doc.Describe()
	n.interfaces = ifaces
	n.warnings = n.warnings[:0]
	for _, w := range warns {
		n.warnings = append(n.warnings, w.Error())
	}

	for _, seg := range doc.ChildNames() {
		n.addChild(seg)
	}

	n.state = Populated
	n.err = ""
	return nil
}

// ApplyError completes a fetch with a failure. Only this node is marked
// Errored; ancestors, siblings and children remain usable.
func (t *Tree) ApplyError(service, path, msg string) error {
	n, err := t.endFetch(service, path)
	if err != nil {
		return err
	}
	n.state = Errored
	n.err = msg
	return nil
}

func (t *Tree) endFetch(service, path string) (*Node, error) {
	key := fetchKey(service, path)
	if _, busy := t.inflight[key]; !busy {
		return nil, fmt.Errorf("topology: no fetch in flight for %s %s", service, path)
	}
	delete(t.inflight, key)
	n := t.Lookup(service, path)
	if n == nil {
		return nil, fmt.Errorf("topology: unknown node %s %s", service, path)
	}
	return n, nil
}

// Reset discards the entire forest and service list; the next listing
// starts from scratch. In-flight fetches are forgotten; their late results
// will be rejected by endFetch.
func (t *Tree) Reset() {
	t.services = nil
	t.roots = nil
	t.inflight = nil
}
