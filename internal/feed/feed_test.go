package feed

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/agentflow/internal/domain"
)

func TestPercent(t *testing.T) {
	cases := []struct {
		name     string
		elapsed  time.Duration
		total    time.Duration
		complete bool
		want     int
	}{
		{"not started", 0, time.Second, false, 0},
		{"one third", 1200 * time.Millisecond, 3600 * time.Millisecond, false, 33},
		{"held below complete", 3600 * time.Millisecond, 3600 * time.Millisecond, false, 99},
		{"overrun", 5 * time.Second, time.Second, false, 99},
		{"complete", time.Second, 3600 * time.Millisecond, true, 100},
		{"no total", time.Second, 0, false, 0},
		{"negative", -time.Second, time.Second, false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Percent(tc.elapsed, tc.total, tc.complete))
		})
	}
}

func TestProgressLabel(t *testing.T) {
	r := Progress(domain.RunState{Elapsed: 65 * time.Second, Total: 125 * time.Second})
	assert.Equal(t, 52, r.Percent)
	assert.Equal(t, "01:05 / 02:05", r.Label)
}

func TestProgressWithoutNominalTotal(t *testing.T) {
	r := Progress(domain.RunState{ProgressPercent: 42})
	assert.Equal(t, 42, r.Percent)
	assert.Empty(t, r.Label)

	r = Progress(domain.RunState{ProgressPercent: 85, IsComplete: true})
	assert.Equal(t, 100, r.Percent)
}

func TestLiveMessage(t *testing.T) {
	_, terminal := Live(domain.RunState{})
	assert.False(t, terminal)

	msg := &domain.LiveMessage{From: "risk", To: "decision", Text: "High risk"}
	got, terminal := Live(domain.RunState{LiveMessage: msg})
	assert.Equal(t, *msg, got)
	assert.False(t, terminal)
	assert.Equal(t, "risk → decision: High risk", Line(got))

	final := &domain.LiveMessage{From: "decision", Text: "Case closed", IsFinal: true}
	got, terminal = Live(domain.RunState{LiveMessage: final, IsComplete: true})
	assert.True(t, terminal)
	assert.Equal(t, "decision: Case closed", Line(got))
}

func TestBuild(t *testing.T) {
	st := domain.RunState{
		RunID:  "run_1",
		RunKey: "CASE-1",
		Stages: []*domain.Stage{
			{
				ID: "intake", DisplayName: "Intake", Status: domain.StageStatusCompleted,
				SubActions:          []domain.SubAction{{Text: "a", Completed: true}, {Text: "b", Completed: true}},
				OutboundLinkMessage: "handing over",
			},
			{
				ID: "risk", DisplayName: "Risk", Status: domain.StageStatusInProgress,
				SubActions:          []domain.SubAction{{Text: "a", Completed: true}, {Text: "b"}},
				OutboundLinkMessage: "not yet",
			},
		},
		LiveMessage: &domain.LiveMessage{From: "intake", To: "risk", Text: "go"},
		Elapsed:     time.Second,
		Total:       4 * time.Second,
	}

	v := Build(st)
	assert.Equal(t, "run_1", v.RunID)
	assert.Equal(t, 25, v.Progress.Percent)
	assert.Equal(t, "intake → risk: go", v.MessageLine)
	assert.False(t, v.Terminal)
	if assert.Len(t, v.Stages, 2) {
		assert.Equal(t, 2, v.Stages[0].Done)
		assert.Equal(t, "handing over", v.Stages[0].Message)
		assert.Equal(t, 1, v.Stages[1].Done)
		assert.Equal(t, 2, v.Stages[1].Total)
		assert.Empty(t, v.Stages[1].Message)
	}
}

func TestViewJSONUsesMilliseconds(t *testing.T) {
	v := Build(domain.RunState{
		RunID:       "run_1",
		LiveMessage: &domain.LiveMessage{From: "a", Text: "go", At: 1200 * time.Millisecond},
		Elapsed:     1200 * time.Millisecond,
		Total:       3600 * time.Millisecond,
	})
	data, err := json.Marshal(v)
	require.NoError(t, err)

	var raw struct {
		Progress map[string]any `json:"progress"`
		Message  map[string]any `json:"message"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.EqualValues(t, 1200, raw.Progress["elapsed_ms"])
	assert.EqualValues(t, 3600, raw.Progress["total_ms"])
	assert.EqualValues(t, 1200, raw.Message["at_ms"])

	var back View
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, 1200*time.Millisecond, back.Progress.Elapsed)
	assert.Equal(t, 1200*time.Millisecond, back.Message.At)
}
