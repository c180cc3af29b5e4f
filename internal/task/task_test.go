package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{Created, "created"},
		{Running, "running"},
		{Killed, "killed"},
		{Success, "success"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.String())
		})
	}
}

func TestState_Dispatchable(t *testing.T) {
	assert.True(t, Created.Dispatchable())
	assert.True(t, Killed.Dispatchable())
	assert.False(t, Running.Dispatchable())
	assert.False(t, Success.Dispatchable())
}

func TestState_Resumable(t *testing.T) {
	assert.True(t, Running.Resumable())
	assert.True(t, Killed.Resumable())
	assert.False(t, Created.Resumable())
	assert.False(t, Success.Resumable())
}

func TestTable_PutGetDelete(t *testing.T) {
	tbl := NewTable()
	assert.Equal(t, 0, tbl.Len())

	tbl.Put(&Task{Name: "T1", SleepTime: 10, State: Created})
	got, ok := tbl.Get("T1")
	assert.True(t, ok)
	assert.Equal(t, uint32(10), got.SleepTime)
	assert.Equal(t, 1, tbl.Len())

	tbl.Delete("T1")
	_, ok = tbl.Get("T1")
	assert.False(t, ok)
	assert.Equal(t, 0, tbl.Len())
}

func TestTable_HasOpenByPK(t *testing.T) {
	tbl := NewTable()
	tbl.Put(&Task{Name: "T1"})
	assert.True(t, tbl.HasOpenByPK("T1"))
	assert.False(t, tbl.HasOpenByPK("T2"))
}

func TestTable_Each_StopsOnFalse(t *testing.T) {
	tbl := NewTable()
	tbl.Put(&Task{Name: "T1"})
	tbl.Put(&Task{Name: "T2"})
	tbl.Put(&Task{Name: "T3"})

	seen := 0
	tbl.Each(func(_ *Task) bool {
		seen++
		return false
	})
	assert.Equal(t, 1, seen)
}

func TestTable_Snapshot_IsIndependentCopy(t *testing.T) {
	tbl := NewTable()
	tbl.Put(&Task{Name: "T1", State: Created})

	snap := tbl.Snapshot()
	assert.Len(t, snap, 1)

	tbl.Put(&Task{Name: "T1", State: Running})
	assert.Equal(t, Created, snap[0].State, "snapshot must not observe later mutation")
}
