package watcher

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan []FileEvent) []FileEvent {
	t.Helper()
	select {
	case batch := <-ch:
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch")
		return nil
	}
}

func ops(batch []FileEvent) map[string]Operation {
	out := make(map[string]Operation, len(batch))
	for _, ev := range batch {
		out[ev.Path] = ev.Operation
	}
	return out
}

func TestDebouncer_CoalescesPerPath(t *testing.T) {
	// Given: bursts of events for several paths
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	// When: adding them inside one window
	d.Add(FileEvent{Path: "/a", Operation: OpCreate})
	d.Add(FileEvent{Path: "/a", Operation: OpModify})
	d.Add(FileEvent{Path: "/b", Operation: OpCreate})
	d.Add(FileEvent{Path: "/b", Operation: OpDelete})
	d.Add(FileEvent{Path: "/c", Operation: OpModify})
	d.Add(FileEvent{Path: "/c", Operation: OpDelete})
	d.Add(FileEvent{Path: "/d", Operation: OpDelete})
	d.Add(FileEvent{Path: "/d", Operation: OpCreate})
	d.Add(FileEvent{Path: "/e", Operation: OpModify})
	d.Add(FileEvent{Path: "/e", Operation: OpModify})

	// Then: one sorted batch with the merged operations
	batch := receive(t, d.Output())
	assert.Equal(t, map[string]Operation{
		"/a": OpCreate,
		"/c": OpDelete,
		"/d": OpModify,
		"/e": OpModify,
	}, ops(batch))
	require.Len(t, batch, 4)
	assert.Equal(t, "/a", batch[0].Path)
	assert.Equal(t, "/e", batch[3].Path)
}

func TestDebouncer_SeparateWindowsGiveSeparateBatches(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Path: "/a", Operation: OpModify})
	first := receive(t, d.Output())
	d.Add(FileEvent{Path: "/a", Operation: OpDelete})
	second := receive(t, d.Output())

	assert.Equal(t, OpModify, first[0].Operation)
	assert.Equal(t, OpDelete, second[0].Operation)
}

func TestDebouncer_StopClosesOutputAndDropsPending(t *testing.T) {
	d := NewDebouncer(time.Hour)
	d.Add(FileEvent{Path: "/a", Operation: OpModify})

	d.Stop()
	d.Stop()
	d.Add(FileEvent{Path: "/b", Operation: OpModify})

	_, ok := <-d.Output()
	assert.False(t, ok)
}

func TestDebouncer_SlowConsumerLosesNothing(t *testing.T) {
	// Given: a consumer that reads nothing until more batches are ready
	// than the output buffer holds
	d := NewDebouncer(2 * time.Millisecond)
	defer d.Stop()

	want := make(map[string]Operation)
	for i := 0; i < 20; i++ {
		path := fmt.Sprintf("/f%02d", i)
		want[path] = OpModify
		d.Add(FileEvent{Path: path, Operation: OpModify})
		time.Sleep(10 * time.Millisecond)
	}

	// When: draining the output
	got := make(map[string]Operation)
	for len(got) < len(want) {
		for path, op := range ops(receive(t, d.Output())) {
			got[path] = op
		}
	}

	// Then: every path arrives in some batch
	assert.Equal(t, want, got)
}

func TestOperation_String(t *testing.T) {
	assert.Equal(t, "CREATE", OpCreate.String())
	assert.Equal(t, "MODIFY", OpModify.String())
	assert.Equal(t, "DELETE", OpDelete.String())
	assert.Equal(t, "UNKNOWN", Operation(9).String())
}
