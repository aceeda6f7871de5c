package progress

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTracker_ConcurrentIncrement(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracker(slog.New(slog.NewTextHandler(&buf, nil)), 0)

	tr.Reset("pass 1", 100, 10)
	var wg sync.WaitGroup
	for i := 0; i < 90; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Increment()
		}()
	}
	wg.Wait()

	label, done, total := tr.Snapshot()
	require.Equal(t, "pass 1", label)
	require.Equal(t, 100, done)
	require.Equal(t, 100, total)
	require.Contains(t, buf.String(), "stage=\"pass 1\"")
}

func TestTracker_ResetStartsOver(t *testing.T) {
	tr := NewTracker(nil, 0)
	tr.Reset("a", 5, 0)
	tr.Increment()
	tr.Reset("b", 3, 0)

	label, done, total := tr.Snapshot()
	require.Equal(t, "b", label)
	require.Zero(t, done)
	require.Equal(t, 3, total)
}
