package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maumercado/taskdispatch/internal/task"
)

func TestMemory_FetchOpenTasks_ExcludesSuccess(t *testing.T) {
	m := NewMemory(
		task.Task{Name: "T1", State: task.Created},
		task.Task{Name: "T2", State: task.Success, CompleteTime: 100},
	)

	open, err := m.FetchOpenTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "T1", open[0].Name)
}

func TestMemory_Update_Running(t *testing.T) {
	m := NewMemory(task.Task{Name: "T1", State: task.Created})

	err := m.Update(context.Background(), task.Task{Name: "T1", State: task.Running, Worker: "W1", AssignTime: 42})
	require.NoError(t, err)

	open, err := m.FetchOpenTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, task.Running, open[0].State)
	assert.Equal(t, "W1", open[0].Worker)
	assert.EqualValues(t, 42, open[0].AssignTime)
}

func TestMemory_Update_Success_RemovesFromOpenSet(t *testing.T) {
	m := NewMemory(task.Task{Name: "T1", State: task.Running, Worker: "W1", AssignTime: 10})

	err := m.Update(context.Background(), task.Task{Name: "T1", State: task.Success, CompleteTime: 20})
	require.NoError(t, err)

	open, err := m.FetchOpenTasks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestMemory_Update_RejectsInvalidState(t *testing.T) {
	m := NewMemory(task.Task{Name: "T1", State: task.Created})
	err := m.Update(context.Background(), task.Task{Name: "T1", State: task.Created})
	assert.Error(t, err)
}

func TestMemory_Update_UnknownTask(t *testing.T) {
	m := NewMemory()
	err := m.Update(context.Background(), task.Task{Name: "ghost", State: task.Killed})
	assert.Error(t, err)
}

func TestMemory_Open_Unavailable(t *testing.T) {
	m := NewMemory()
	m.Available = false
	err := m.Open(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = m.FetchOpenTasks(context.Background())
	assert.Error(t, err)
}
