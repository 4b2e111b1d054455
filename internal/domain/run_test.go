package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot() RunState {
	return RunState{
		RunID:   "run_1",
		Stages:  []*Stage{{ID: "intake", Status: StageStatusInProgress, StepInterval: 400 * time.Millisecond}},
		Elapsed: 1200 * time.Millisecond,
		Total:   3600 * time.Millisecond,
		Failed:  true,
	}
}

func TestReadersWorkOnReturnedSnapshot(t *testing.T) {
	require.NotNil(t, snapshot().Stage("intake"))
	assert.Nil(t, snapshot().Stage("missing"))
	assert.Equal(t, []int{0}, snapshot().InProgress())
	assert.True(t, snapshot().IsTerminal())
}

func TestRunStateJSONUsesMilliseconds(t *testing.T) {
	st := snapshot()
	st.LiveMessage = &LiveMessage{From: "intake", Text: "go", At: 800 * time.Millisecond}
	data, err := json.Marshal(st)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.EqualValues(t, 1200, raw["elapsed_ms"])
	assert.EqualValues(t, 3600, raw["total_ms"])
	assert.EqualValues(t, 800, raw["live_message"].(map[string]any)["at_ms"])
	assert.EqualValues(t, 400, raw["stages"].([]any)[0].(map[string]any)["step_interval_ms"])
	assert.Equal(t, "run_1", raw["run_id"])

	var back RunState
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, st.Elapsed, back.Elapsed)
	assert.Equal(t, st.Total, back.Total)
	assert.Equal(t, 800*time.Millisecond, back.LiveMessage.At)
	assert.Equal(t, 400*time.Millisecond, back.Stages[0].StepInterval)
}

func TestTransitionJSONUsesMilliseconds(t *testing.T) {
	data, err := json.Marshal(Transition{Type: EventTypeStageStarted, StageID: "intake", At: 2 * time.Second})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"stage_started","stage_id":"intake","at_ms":2000}`, string(data))
}
