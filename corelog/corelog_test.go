package corelog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_levelGating(t *testing.T) {
	t.Parallel()

	sink := &MemorySink{}
	l := New(sink, LevelWarning)

	l.Info("info line %d", 1)
	l.Warning("warn line")
	l.Error("error line")

	lines := sink.Snapshot()
	require.Len(t, lines, 2)
	assert.Equal(t, LevelWarning, lines[0].Level)
	assert.Equal(t, "warn line", lines[0].Text)
	assert.Equal(t, LevelError, lines[1].Level)
}

func TestLogger_fatalPanics(t *testing.T) {
	t.Parallel()

	sink := &MemorySink{}
	l := New(sink, LevelInfo)

	assert.Panics(t, func() {
		l.Fatal("contract violation: %s", "bad page")
	})

	lines := sink.Snapshot()
	require.Len(t, lines, 1)
	assert.Equal(t, LevelFatal, lines[0].Level)
}

func TestDisabled_dropsEverything(t *testing.T) {
	t.Parallel()

	l := Disabled()
	l.Info("noop")
	l.Warning("noop")
	l.Error("noop")
	// Disabled must not panic on Fatal's own emit path being skipped,
	// but Fatal always panics regardless of sink state.
	assert.Panics(t, func() { l.Fatal("noop") })
}
