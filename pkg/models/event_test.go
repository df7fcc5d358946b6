package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventAccessorsTolerateMissingAndMistypedKeys(t *testing.T) {
	event := Event{"instruction": 42}

	_, ok := event.Instruction()
	assert.False(t, ok)

	_, ok = event.Status()
	assert.False(t, ok)

	event["instruction"] = "run"
	instruction, ok := event.Instruction()
	require.True(t, ok)
	assert.Equal(t, "run", instruction)
}

func TestMarkInProgressStampsBookkeepingFields(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	event := Event{"instruction": "run"}

	event.MarkInProgress("MLAdapter", now)

	assert.Equal(t, "in progress", event["status"])
	assert.Equal(t, true, event["received"])
	assert.Equal(t, "MLAdapter", event["modifiedUser"])
	assert.Equal(t, "2024-03-01T12:00:00Z", event["modifiedDate"])
	// The original instruction survives the transition.
	assert.Equal(t, "run", event["instruction"])
}

func TestCloneIsIndependentOfTheOriginal(t *testing.T) {
	event := Event{
		"instruction": "run",
		"status":      "received",
		"payload":     map[string]any{"temp": 42.0},
		"tags":        []any{"a", "b"},
	}

	clone := event.Clone()
	clone.MarkComplete(time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC))
	clone["payload"].(map[string]any)["temp"] = 0.0
	clone["tags"].([]any)[0] = "z"

	assert.Equal(t, "received", event["status"])
	assert.NotContains(t, event, "modifiedDate")
	assert.Equal(t, 42.0, event["payload"].(map[string]any)["temp"])
	assert.Equal(t, "a", event["tags"].([]any)[0])

	var nilEvent Event
	assert.Nil(t, nilEvent.Clone())
}

func TestMarkCompleteRefreshesModifiedDate(t *testing.T) {
	event := Event{"status": "in progress", "modifiedDate": "old"}

	event.MarkComplete(time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC))

	assert.Equal(t, string(StatusComplete), event["status"])
	assert.Equal(t, "2024-03-01T13:00:00Z", event["modifiedDate"])
}
