package topology

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/busline/dscope/pkg/introspect"
)

const svc = "com.example.Demo"

func docWithChildren(children ...string) *introspect.Node {
	xml := "<node><interface name=\"org.test.I\"><method name=\"Ping\"/></interface>"
	for _, c := range children {
		xml += fmt.Sprintf("<node name=%q/>", c)
	}
	xml += "</node>"
	n, err := introspect.Parse([]byte(xml))
	if err != nil {
		panic(err)
	}
	return n
}

func TestRootStartsUnfetched(t *testing.T) {
	tree := &Tree{}
	root := tree.Root(svc)
	assert.Equal(t, Unfetched, root.State())
	assert.Equal(t, "/", root.Path)
	assert.Same(t, root, tree.Root(svc))
}

func TestSetServicesWholesale(t *testing.T) {
	tree := &Tree{}
	tree.SetServices([]string{"b.svc", "a.svc"})
	assert.Equal(t, []string{"a.svc", "b.svc"}, tree.Services())

	tree.Root("a.svc")
	tree.Root("b.svc")

	tree.SetServices([]string{"a.svc", "c.svc"})
	assert.Equal(t, []string{"a.svc", "c.svc"}, tree.Services())
	// Forest of the vanished service is dropped, the kept one survives.
	assert.NotNil(t, tree.Lookup("a.svc", "/"))
	assert.Nil(t, tree.Lookup("b.svc", "/"))
}

func TestFetchLifecycle(t *testing.T) {
	tree := &Tree{}

	require.True(t, tree.BeginFetch(svc, "/"))
	assert.Equal(t, Fetching, tree.Root(svc).State())
	assert.True(t, tree.Fetching(svc, "/"))

	// A second fetch while one is in flight is a no-op.
	assert.False(t, tree.BeginFetch(svc, "/"))

	require.NoError(t, tree.ApplyNode(svc, "/", docWithChildren("org")))
	root := tree.Root(svc)
	assert.Equal(t, Populated, root.State())
	assert.False(t, tree.Fetching(svc, "/"))
	require.Len(t, root.Children(), 1)

	child := root.Children()[0]
	assert.Equal(t, "/org", child.Path)
	assert.Equal(t, Unfetched, child.State())
	assert.Same(t, root, child.Parent())
	assert.Equal(t, "org", child.Segment())
}

func TestChildStaysUnfetchedUntilExpanded(t *testing.T) {
	tree := &Tree{}
	require.True(t, tree.BeginFetch(svc, "/"))
	require.NoError(t, tree.ApplyNode(svc, "/", docWithChildren("a", "b")))

	for _, c := range tree.Root(svc).Children() {
		assert.Equal(t, Unfetched, c.State())
	}

	// Expanding one child fetches only that child.
	require.True(t, tree.BeginFetch(svc, "/a"))
	assert.Equal(t, Fetching, tree.Lookup(svc, "/a").State())
	assert.Equal(t, Unfetched, tree.Lookup(svc, "/b").State())
}

func TestRefreshReplacesInterfaces(t *testing.T) {
	tree := &Tree{}
	require.True(t, tree.BeginFetch(svc, "/"))
	require.NoError(t, tree.ApplyNode(svc, "/", docWithChildren("kid")))

	// Refresh from Populated is allowed.
	require.True(t, tree.BeginFetch(svc, "/"))
	empty, err := introspect.Parse([]byte("<node/>"))
	require.NoError(t, err)
	require.NoError(t, tree.ApplyNode(svc, "/", empty))

	root := tree.Root(svc)
	assert.Empty(t, root.Interfaces())
	// Children discovered earlier are kept.
	assert.Len(t, root.Children(), 1)
}

func TestErrorScopedToNode(t *testing.T) {
	tree := &Tree{}
	require.True(t, tree.BeginFetch(svc, "/"))

	var segs []string
	for i := 0; i < 10; i++ {
		segs = append(segs, fmt.Sprintf("node%d", i))
	}
	require.NoError(t, tree.ApplyNode(svc, "/", docWithChildren(segs...)))

	children := tree.Root(svc).Children()
	require.Len(t, children, 10)

	// Nine siblings populate, one fails.
	for _, c := range children[1:] {
		require.True(t, tree.BeginFetch(svc, c.Path))
		require.NoError(t, tree.ApplyNode(svc, c.Path, docWithChildren()))
	}
	require.True(t, tree.BeginFetch(svc, children[0].Path))
	require.NoError(t, tree.ApplyError(svc, children[0].Path, "access denied"))

	assert.Equal(t, Errored, children[0].State())
	assert.Equal(t, "access denied", children[0].Err())
	for _, c := range children[1:] {
		assert.Equal(t, Populated, c.State())
	}
	// All ten remain visible.
	assert.Len(t, tree.Root(svc).Children(), 10)
}

func TestErroredNodeCanRefetch(t *testing.T) {
	tree := &Tree{}
	require.True(t, tree.BeginFetch(svc, "/"))
	require.NoError(t, tree.ApplyError(svc, "/", "timeout"))

	require.True(t, tree.BeginFetch(svc, "/"))
	require.NoError(t, tree.ApplyNode(svc, "/", docWithChildren()))
	assert.Equal(t, Populated, tree.Root(svc).State())
	assert.Empty(t, tree.Root(svc).Err())
}

func TestApplyWithoutFetchRejected(t *testing.T) {
	tree := &Tree{}
	assert.Error(t, tree.ApplyNode(svc, "/", docWithChildren()))
	assert.Error(t, tree.ApplyError(svc, "/", "nope"))
}

func TestLookupNestedPaths(t *testing.T) {
	tree := &Tree{}
	require.True(t, tree.BeginFetch(svc, "/"))
	require.NoError(t, tree.ApplyNode(svc, "/", docWithChildren("org")))
	require.True(t, tree.BeginFetch(svc, "/org"))
	require.NoError(t, tree.ApplyNode(svc, "/org", docWithChildren("example")))

	n := tree.Lookup(svc, "/org/example")
	require.NotNil(t, n)
	assert.Equal(t, "example", n.Segment())
	assert.Nil(t, tree.Lookup(svc, "/org/missing"))
	assert.Nil(t, tree.Lookup("other.svc", "/"))
}

func TestResetDropsEverything(t *testing.T) {
	tree := &Tree{}
	tree.SetServices([]string{svc})
	require.True(t, tree.BeginFetch(svc, "/"))
	tree.Reset()

	assert.Empty(t, tree.Services())
	assert.Nil(t, tree.Lookup(svc, "/"))
	// The forgotten in-flight fetch cannot complete.
	assert.Error(t, tree.ApplyNode(svc, "/", docWithChildren()))
}

func TestDescriptorWarningsRecorded(t *testing.T) {
	xml := `<node><interface name="org.test.I">
  <method name="Bad"><arg type="z" direction="in"/></method>
  <method name="Good"/>
</interface></node>`
	doc, err := introspect.Parse([]byte(xml))
	require.NoError(t, err)

	tree := &Tree{}
	require.True(t, tree.BeginFetch(svc, "/"))
	require.NoError(t, tree.ApplyNode(svc, "/", doc))

	root := tree.Root(svc)
	require.Len(t, root.Warnings(), 1)
	require.Len(t, root.Interfaces(), 1)
	assert.Len(t, root.Interfaces()[0].Methods, 1)
}
