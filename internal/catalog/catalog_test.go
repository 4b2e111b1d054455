package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/agentflow/internal/domain"
)

func sequential(key string, ids ...string) domain.Scenario {
	sc := domain.Scenario{RunKey: key, Mode: domain.ModeSimulated, SummaryText: "done"}
	for _, id := range ids {
		sc.OrderedStages = append(sc.OrderedStages, domain.Stage{ID: id, StepInterval: time.Second})
	}
	return sc
}

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	assert.Equal(t, []string{CreditAppKey, FraudCaseKey, InvoiceLiveKey}, c.Keys())

	sc, err := c.Get(FraudCaseKey)
	require.NoError(t, err)
	assert.Len(t, sc.OrderedStages, 5)

	credit, err := c.Get(CreditAppKey)
	require.NoError(t, err)
	layout := credit.Layout()
	require.Len(t, layout, 3)
	assert.True(t, layout[1].Parallel)
	assert.Equal(t, []string{"credit", "identity"}, layout[1].Labels)
	assert.Equal(t, [][]int{{1, 2}, {3}}, layout[1].Tracks)
	// application 1s + max(credit 1.2s, identity 2.4s) + underwriting 1.2s
	assert.Equal(t, 4600*time.Millisecond, credit.NominalDuration())
}

func TestGetMissingScenario(t *testing.T) {
	_, err := Default().Get("CASE-404")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoScenario)
}

func TestValidateRejectsUnknownTransitionStage(t *testing.T) {
	sc := sequential("K", "a", "b")
	sc.TransitionMessages = []domain.TransitionMessage{{From: "a", To: "bb", Text: "typo"}}

	_, err := New(sc)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidScenario)
	assert.Contains(t, err.Error(), `"bb"`)
}

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(sc *domain.Scenario)
	}{
		{"empty run key", func(sc *domain.Scenario) { sc.RunKey = "" }},
		{"no stages", func(sc *domain.Scenario) { sc.OrderedStages = nil }},
		{"duplicate stage", func(sc *domain.Scenario) { sc.OrderedStages[1].ID = "a" }},
		{"zero interval", func(sc *domain.Scenario) { sc.OrderedStages[0].StepInterval = 0 }},
		{"parallel without track", func(sc *domain.Scenario) { sc.OrderedStages[0].IsParallelTrack = true }},
		{"single parallel track", func(sc *domain.Scenario) {
			sc.OrderedStages[0].IsParallelTrack = true
			sc.OrderedStages[0].Track = "x"
		}},
		{"confidence out of range", func(sc *domain.Scenario) {
			sc.OrderedStages[0].Decision = &domain.Decision{Label: "x", ConfidenceScore: 101}
		}},
		{"mapping on simulated", func(sc *domain.Scenario) {
			sc.StepMapping = InvoiceMapping("a", "b")
		}},
		{"unknown mode", func(sc *domain.Scenario) { sc.Mode = "batch" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := sequential("K", "a", "b")
			tt.mutate(&sc)
			err := Validate(&sc)
			assert.ErrorIs(t, err, domain.ErrInvalidScenario)
		})
	}
}

func TestValidateStreamMapping(t *testing.T) {
	sc := sequential("S", "a", "b")
	sc.Mode = domain.ModeStream
	assert.ErrorIs(t, Validate(&sc), domain.ErrInvalidScenario, "mapping required")

	sc.StepMapping = InvoiceMapping("a", "b")
	assert.NoError(t, Validate(&sc))

	sc.StepMapping = InvoiceMapping("a", "missing")
	assert.ErrorIs(t, Validate(&sc), domain.ErrInvalidScenario)

	sc.StepMapping = []domain.StepRange{
		{From: 1, To: 4, StageID: "a", Phase: domain.StreamPhaseRunning},
		{From: 3, StageID: "b", Phase: domain.StreamPhaseCompleted},
	}
	assert.ErrorIs(t, Validate(&sc), domain.ErrInvalidScenario, "overlap")

	sc.StepMapping = []domain.StepRange{
		{From: 1, StageID: "a", Phase: domain.StreamPhaseRunning},
		{From: 3, StageID: "b", Phase: domain.StreamPhaseCompleted},
	}
	assert.ErrorIs(t, Validate(&sc), domain.ErrInvalidScenario, "open range before last")
}

func TestNewRejectsDuplicateRunKey(t *testing.T) {
	_, err := New(sequential("K", "a"), sequential("K", "b"))
	assert.ErrorIs(t, err, domain.ErrInvalidScenario)
}

func TestWithOverrides(t *testing.T) {
	c := Default()
	override := sequential(FraudCaseKey, "only")
	merged, err := c.With(override, sequential("NEW-1", "x"))
	require.NoError(t, err)

	sc, err := merged.Get(FraudCaseKey)
	require.NoError(t, err)
	assert.Len(t, sc.OrderedStages, 1)
	assert.Len(t, merged.Keys(), 4)

	// the original catalog is untouched
	orig, err := c.Get(FraudCaseKey)
	require.NoError(t, err)
	assert.Len(t, orig.OrderedStages, 5)
}

const yamlCatalog = `
scenarios:
  - run_key: YAML-1
    title: From file
    stages:
      - id: first
        display_name: First
        step_interval: 250ms
        sub_actions:
          - text: one
          - text: two
        findings: ["f1"]
      - id: second
        display_name: Second
        step_interval: 1s
        decision:
          label: ok
          confidence_score: 70
    transition_messages:
      - from: first
        to: second
        text: handing over
      - from: second
        text: finished
    summary_text: all done
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlCatalog), 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	sc, err := c.Get("YAML-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ModeSimulated, sc.Mode)
	require.Len(t, sc.OrderedStages, 2)
	assert.Equal(t, 250*time.Millisecond, sc.OrderedStages[0].StepInterval)
	assert.Equal(t, 1500*time.Millisecond, sc.NominalDuration())
	assert.Equal(t, 70, sc.OrderedStages[1].Decision.ConfidenceScore)
	assert.Len(t, c.Keys(), 4)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Parse([]byte("scenarios: [::"))
	assert.Error(t, err)
}
