package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/busline/dscope/pkg/introspect"
	"github.com/busline/dscope/pkg/sig"
	"github.com/busline/dscope/pkg/topology"
)

func arg(name, s string) introspect.Arg {
	return introspect.Arg{Name: name, Type: sig.MustParseSingle(s)}
}

func TestRenderMethod(t *testing.T) {
	cases := []struct {
		method introspect.Method
		want   string
	}{
		{
			introspect.Method{Name: "Add", In: []introspect.Arg{arg("a", "i"), arg("b", "i")}, Out: []introspect.Arg{arg("", "i")}},
			"Add(a: i, b: i) => i",
		},
		{
			introspect.Method{Name: "Ping"},
			"Ping()",
		},
		{
			introspect.Method{Name: "Query", In: []introspect.Arg{arg("", "a{sv}")}, Out: []introspect.Arg{arg("", "as"), arg("", "u")}},
			"Query(a{sv}) => as, u",
		},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, renderMethod(tc.method))
	}
}

func TestRenderProperty(t *testing.T) {
	p := introspect.Property{Name: "Version", Type: sig.TypeString, Access: introspect.AccessRead}
	assert.Equal(t, "Version: s (read)", renderProperty(p, ""))
	assert.Equal(t, `Version: s (read) = "1.2"`, renderProperty(p, `"1.2"`))
}

func TestRenderSignal(t *testing.T) {
	s := introspect.Signal{Name: "Changed", Args: []introspect.Arg{arg("", "u")}}
	assert.Equal(t, "Changed(u)", renderSignal(s, false))
	assert.Equal(t, "● Changed(u)", renderSignal(s, true))
}

const flatXML = `<node>
  <interface name="org.test.I">
    <method name="Ping"/>
    <property name="Version" type="s" access="read"/>
    <signal name="Changed"><arg type="u"/></signal>
  </interface>
  <node name="child"/>
</node>`

func populated(t *testing.T) *topology.Tree {
	t.Helper()
	doc, err := introspect.Parse([]byte(flatXML))
	require.NoError(t, err)
	tree := &topology.Tree{}
	require.True(t, tree.BeginFetch(svcName, "/"))
	require.NoError(t, tree.ApplyNode(svcName, "/", doc))
	return tree
}

const svcName = "org.test.Svc"

func keys(rows []treeRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.label
	}
	return out
}

func TestFlattenCollapsedShowsOnlyRoot(t *testing.T) {
	tree := populated(t)
	rows := flatten(tree, svcName, map[string]bool{}, nil, nil)
	require.Len(t, rows, 1)
	assert.Equal(t, "/", rows[0].label)
	assert.Equal(t, topology.Populated, rows[0].state)
}

func TestFlattenExpandedRoot(t *testing.T) {
	tree := populated(t)
	expanded := map[string]bool{pathKey("/"): true}
	rows := flatten(tree, svcName, expanded, nil, nil)

	// Root, its interface, and the collapsed child path.
	assert.Equal(t, []string{"/", "org.test.I", "child"}, keys(rows))
	assert.Equal(t, topology.Unfetched, rows[2].state)
}

func TestFlattenMemberGroups(t *testing.T) {
	tree := populated(t)
	expanded := map[string]bool{
		pathKey("/"):                          true,
		ifaceKey("/", "org.test.I"):           true,
		groupKey("/", "org.test.I", "Methods"): true,
	}
	rows := flatten(tree, svcName, expanded, nil, nil)

	assert.Equal(t, []string{
		"/",
		"org.test.I",
		"Methods (1)",
		"Ping()",
		"Properties (1)",
		"Signals (1)",
		"child",
	}, keys(rows))

	assert.Equal(t, rowMethod, rows[3].kind)
	assert.Equal(t, "org.test.I", rows[3].iface)
}

func TestFlattenShowsCachedPropertyValue(t *testing.T) {
	tree := populated(t)
	expanded := map[string]bool{
		pathKey("/"):                              true,
		ifaceKey("/", "org.test.I"):               true,
		groupKey("/", "org.test.I", "Properties"): true,
	}
	cached := map[string]string{memberKey("/", "org.test.I", "Version"): `"9"`}
	rows := flatten(tree, svcName, expanded, nil, cached)

	found := false
	for _, r := range rows {
		if r.kind == rowProperty {
			found = true
			assert.Contains(t, r.label, `= "9"`)
		}
	}
	assert.True(t, found)
}

func TestFlattenErroredNode(t *testing.T) {
	tree := &topology.Tree{}
	require.True(t, tree.BeginFetch(svcName, "/"))
	require.NoError(t, tree.ApplyError(svcName, "/", "denied"))

	rows := flatten(tree, svcName, map[string]bool{}, nil, nil)
	require.Len(t, rows, 1)
	assert.Equal(t, topology.Errored, rows[0].state)
	assert.Equal(t, "denied", rows[0].errText)
}

func TestTreeModelCursorClamp(t *testing.T) {
	m := newTree()
	m.setService(svcName)
	m.setSize(40, 10)
	m.refresh(populated(t))

	require.NotEmpty(t, m.rows)
	m.moveCursor(99)
	assert.Equal(t, len(m.rows)-1, m.cursor)
	m.moveCursor(-99)
	assert.Equal(t, 0, m.cursor)
}

func TestTreeModelSetServiceResetsState(t *testing.T) {
	m := newTree()
	m.setService("a.svc")
	m.expanded["x"] = true
	m.watched["y"] = 1
	m.setService("b.svc")

	assert.False(t, m.expanded["x"])
	assert.Empty(t, m.watched)
	// Root starts expanded so selecting a service shows its contents.
	assert.True(t, m.expanded[pathKey("/")])
}
