package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/busline/dscope/pkg/sig"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "lon…", truncate("longer text", 4))
	assert.Equal(t, "a b", truncate("a\nb", 10))
}

func TestFmtDuration(t *testing.T) {
	assert.Equal(t, "1.5s", fmtDuration(1500*time.Millisecond))
	assert.Equal(t, "2m 5s", fmtDuration(125*time.Second))
}

func TestRenderValues(t *testing.T) {
	assert.Equal(t, "()", renderValues(nil))
	assert.Equal(t, "5", renderValues([]sig.Value{sig.Int32(5)}))
	assert.Equal(t, `5, "x"`, renderValues([]sig.Value{sig.Int32(5), sig.Str("x")}))
}
