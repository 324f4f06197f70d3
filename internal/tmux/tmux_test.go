package tmux

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeBridge(output string, err error) (*Bridge, *[][]string) {
	var calls [][]string
	b := &Bridge{run: func(ctx context.Context, args ...string) ([]byte, error) {
		calls = append(calls, args)
		if err != nil {
			return nil, err
		}
		return []byte(output), nil
	}}
	return b, &calls
}

func TestListPanes(t *testing.T) {
	out := strings.Join([]string{
		"801\tmain\t0\teditor\t/proj/a",
		"904\tmain\t2\tclaude: fix\t/proj/b",
		"garbage",
		"bad\tmain\t1\tx\t/proj/c",
		"",
	}, "\n")
	b, _ := fakeBridge(out, nil)

	panes, err := b.ListPanes(context.Background())
	require.NoError(t, err)
	require.Len(t, panes, 2)

	assert.Equal(t, Pane{
		PanePID:     801,
		SessionName: "main",
		WindowIndex: 0,
		WindowName:  "editor",
		WorkDir:     "/proj/a",
	}, panes[0])
	assert.Equal(t, "main:2", panes[1].Target())
	assert.Equal(t, "claude: fix", panes[1].WindowName)
}

func TestListPanesServerDown(t *testing.T) {
	b, _ := fakeBridge("", errors.New("no server running"))

	_, err := b.ListPanes(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestSwitchTo(t *testing.T) {
	b, calls := fakeBridge("", nil)

	require.NoError(t, b.SwitchTo(context.Background(), "main:2"))
	require.Len(t, *calls, 2)
	assert.Equal(t, []string{"switch-client", "-t", "main"}, (*calls)[0])
	assert.Equal(t, []string{"select-window", "-t", "main:2"}, (*calls)[1])
}

func TestNewWindow(t *testing.T) {
	b, calls := fakeBridge("main:5\n", nil)

	target, err := b.NewWindow(context.Background(), "/proj/a", "claude --resume abc")
	require.NoError(t, err)
	assert.Equal(t, "main:5", target)

	require.Len(t, *calls, 1)
	assert.Equal(t, "new-window", (*calls)[0][0])
	assert.Contains(t, (*calls)[0], "/proj/a")
	assert.Contains(t, (*calls)[0], "claude --resume abc")
}
