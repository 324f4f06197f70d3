package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly-te", truncate("exactly-te", 10))
	assert.Equal(t, "a-much-...", truncate("a-much-longer-string", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}

func TestHumanAge(t *testing.T) {
	assert.Equal(t, "0s", humanAge(0))
	assert.Equal(t, "59s", humanAge(59))
	assert.Equal(t, "1m", humanAge(60))
	assert.Equal(t, "59m", humanAge(3599))
	assert.Equal(t, "2h", humanAge(7200))
	assert.Equal(t, "3d", humanAge(3*86400))
}
