package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventType_Constants(t *testing.T) {
	assert.Equal(t, EventType("task.dispatched"), EventTaskDispatched)
	assert.Equal(t, EventType("task.completed"), EventTaskCompleted)
	assert.Equal(t, EventType("task.killed"), EventTaskKilled)
	assert.Equal(t, EventType("worker.joined"), EventWorkerJoined)
	assert.Equal(t, EventType("worker.left"), EventWorkerLeft)
	assert.Equal(t, EventType("sweep.run"), EventSweepRun)
}

func TestNewEvent(t *testing.T) {
	data := map[string]interface{}{"task_name": "T1", "worker_id": "W1"}

	event := NewEvent(EventTaskDispatched, data)

	assert.Equal(t, EventTaskDispatched, event.Type)
	assert.Equal(t, data, event.Data)
	assert.False(t, event.Timestamp.IsZero())
	assert.WithinDuration(t, time.Now(), event.Timestamp, time.Second)
}

func TestEvent_ToJSON(t *testing.T) {
	event := &Event{
		Type:      EventTaskCompleted,
		Timestamp: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Data:      map[string]interface{}{"task_name": "T1"},
	}

	data, err := event.ToJSON()
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, "task.completed", parsed["type"])
	assert.NotEmpty(t, parsed["timestamp"])
}

func TestFromJSON(t *testing.T) {
	jsonData := `{
		"type": "task.killed",
		"timestamp": "2024-01-15T10:30:00Z",
		"data": {"task_name": "T1", "worker_id": "W1"}
	}`

	event, err := FromJSON([]byte(jsonData))
	require.NoError(t, err)

	assert.Equal(t, EventTaskKilled, event.Type)
	assert.Equal(t, "T1", event.Data["task_name"])
}

func TestFromJSON_Invalid(t *testing.T) {
	_, err := FromJSON([]byte("invalid json"))
	assert.Error(t, err)
}

func TestEvent_RoundTrip(t *testing.T) {
	original := NewEvent(EventWorkerJoined, WorkerEventData("W1", nil))

	data, err := original.ToJSON()
	require.NoError(t, err)

	restored, err := FromJSON(data)
	require.NoError(t, err)

	assert.Equal(t, original.Type, restored.Type)
	assert.Equal(t, original.Data["worker_id"], restored.Data["worker_id"])
}

func TestTaskEventData(t *testing.T) {
	data := TaskEventData("T1", "W1", map[string]interface{}{"sleep_time": 30})

	assert.Equal(t, "T1", data["task_name"])
	assert.Equal(t, "W1", data["worker_id"])
	assert.Equal(t, 30, data["sleep_time"])
}

func TestWorkerEventData(t *testing.T) {
	data := WorkerEventData("W1", map[string]interface{}{"reason": "hangup"})
	assert.Equal(t, "W1", data["worker_id"])
	assert.Equal(t, "hangup", data["reason"])
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, EventTaskDispatched)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, NewEvent(EventTaskDispatched, nil)))
	require.NoError(t, bus.Publish(ctx, NewEvent(EventTaskCompleted, nil)))

	select {
	case ev := <-ch:
		assert.Equal(t, EventTaskDispatched, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected an event")
	}

	select {
	case ev := <-ch:
		t.Fatalf("unexpected second event of type %s, subscriber filtered to dispatched only", ev.Type)
	default:
	}
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, NewEvent(EventSweepRun, nil)))

	select {
	case ev := <-ch:
		assert.Equal(t, EventSweepRun, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected an event")
	}
}

func TestBus_Close_ClosesSubscriberChannels(t *testing.T) {
	bus := NewBus()
	ch, err := bus.Subscribe(context.Background())
	require.NoError(t, err)

	require.NoError(t, bus.Close())

	_, ok := <-ch
	assert.False(t, ok)
}
