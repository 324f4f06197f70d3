package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusJSONIsLowercase(t *testing.T) {
	for status, want := range map[Status]string{
		StatusThinking:   `"thinking"`,
		StatusProcessing: `"processing"`,
		StatusWaiting:    `"waiting"`,
		StatusIdle:       `"idle"`,
		StatusHistorical: `"historical"`,
	} {
		data, err := json.Marshal(status)
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}
}

func TestParseStatus(t *testing.T) {
	got, ok := ParseStatus("Waiting")
	assert.True(t, ok)
	assert.Equal(t, StatusWaiting, got)

	_, ok = ParseStatus("gone")
	assert.False(t, ok, "the removal sentinel is not a queryable status")

	_, ok = ParseStatus("somequery")
	assert.False(t, ok)
}

func TestSessionKeyDegradesToPath(t *testing.T) {
	withID := &Session{ID: "abc", ProjectPath: "/proj/a"}
	assert.Equal(t, Key{ProjectPath: "/proj/a", SessionID: "abc"}, withID.Key())

	// When no session id was recovered, ID carries the project path and
	// identity degrades to the path alone
	withoutID := &Session{ID: "/proj/a", ProjectPath: "/proj/a"}
	assert.Equal(t, Key{ProjectPath: "/proj/a"}, withoutID.Key())
}

func TestProjectName(t *testing.T) {
	assert.Equal(t, "api", ProjectName("/home/me/work/api"))
	assert.Equal(t, "api", ProjectName("/home/me/work/api/"))
	assert.Equal(t, "unknown", ProjectName("/"))
}
