package catalog

import (
	"fmt"

	"github.com/xiaot623/agentflow/internal/domain"
)

// Validate checks a scenario for configuration gaps. Every error wraps
// domain.ErrInvalidScenario.
func Validate(sc *domain.Scenario) error {
	if sc.RunKey == "" {
		return invalid(sc, "run_key is required")
	}
	if len(sc.OrderedStages) == 0 {
		return invalid(sc, "at least one stage is required")
	}
	if sc.Mode != domain.ModeSimulated && sc.Mode != domain.ModeStream {
		return invalid(sc, "unknown mode %q", sc.Mode)
	}

	ids := make(map[string]bool, len(sc.OrderedStages))
	for i := range sc.OrderedStages {
		st := &sc.OrderedStages[i]
		if st.ID == "" {
			return invalid(sc, "stage %d has no id", i)
		}
		if ids[st.ID] {
			return invalid(sc, "duplicate stage id %q", st.ID)
		}
		ids[st.ID] = true
		if sc.Mode == domain.ModeSimulated && st.StepInterval <= 0 {
			return invalid(sc, "stage %q needs a positive step_interval", st.ID)
		}
		if st.IsParallelTrack && st.Track == "" {
			return invalid(sc, "parallel stage %q has no track", st.ID)
		}
		if st.Decision != nil && (st.Decision.ConfidenceScore < 0 || st.Decision.ConfidenceScore > 100) {
			return invalid(sc, "stage %q confidence score out of range", st.ID)
		}
	}

	for _, sec := range sc.Layout() {
		if sec.Parallel && len(sec.Tracks) < 2 {
			return invalid(sc, "parallel section with track %q needs a sibling track", sec.Labels[0])
		}
	}

	for _, m := range sc.TransitionMessages {
		if !ids[m.From] {
			return invalid(sc, "transition message references unknown stage %q", m.From)
		}
		if m.To != "" && !ids[m.To] {
			return invalid(sc, "transition message references unknown stage %q", m.To)
		}
	}

	if sc.Mode == domain.ModeStream {
		return validateMapping(sc, ids)
	}
	if len(sc.StepMapping) > 0 {
		return invalid(sc, "step_mapping is only valid in stream mode")
	}
	return nil
}

func validateMapping(sc *domain.Scenario, ids map[string]bool) error {
	if len(sc.StepMapping) == 0 {
		return invalid(sc, "stream scenario needs a step_mapping")
	}
	for _, st := range sc.OrderedStages {
		if st.IsParallelTrack {
			return invalid(sc, "stream scenario cannot have parallel stage %q", st.ID)
		}
	}
	prevEnd := 0
	for i, r := range sc.StepMapping {
		if !ids[r.StageID] {
			return invalid(sc, "step mapping references unknown stage %q", r.StageID)
		}
		if r.Phase != domain.StreamPhaseRunning && r.Phase != domain.StreamPhaseCompleted {
			return invalid(sc, "step mapping %d has unknown phase %q", i, r.Phase)
		}
		if r.From < 1 || (r.To != 0 && r.To < r.From) {
			return invalid(sc, "step mapping %d has an invalid range", i)
		}
		if r.From <= prevEnd {
			return invalid(sc, "step mapping %d overlaps the previous range", i)
		}
		if r.To == 0 && i != len(sc.StepMapping)-1 {
			return invalid(sc, "only the last step mapping may be open-ended")
		}
		prevEnd = r.To
	}
	return nil
}

func invalid(sc *domain.Scenario, format string, args ...any) error {
	return fmt.Errorf("%w %q: %s", domain.ErrInvalidScenario, sc.RunKey, fmt.Sprintf(format, args...))
}
