package domain

import "time"

// SubAction is a checklist item ticked while its stage is in progress.
type SubAction struct {
	Text      string `json:"text" yaml:"text"`
	Completed bool   `json:"completed" yaml:"-"`
}

// Decision is the display-only verdict a stage reports once completed.
type Decision struct {
	Label           string `json:"label" yaml:"label"`
	ConfidenceScore int    `json:"confidence_score" yaml:"confidence_score"`
}

// Stage is one pseudo-agent step of a workflow.
//
// Scenario templates carry the findings a stage will reveal; instantiated
// stages keep Findings empty until the stage completes.
type Stage struct {
	ID                  string        `json:"id" yaml:"id"`
	DisplayName         string        `json:"display_name" yaml:"display_name"`
	Icon                string        `json:"icon,omitempty" yaml:"icon"`
	Status              StageStatus   `json:"status" yaml:"-"`
	SubActions          []SubAction   `json:"sub_actions" yaml:"sub_actions"`
	Findings            []string      `json:"findings,omitempty" yaml:"findings"`
	Decision            *Decision     `json:"decision,omitempty" yaml:"decision"`
	OutboundLinkMessage string        `json:"outbound_link_message,omitempty" yaml:"outbound_link_message"`
	IsParallelTrack     bool          `json:"is_parallel_track,omitempty" yaml:"parallel"`
	Track               string        `json:"track,omitempty" yaml:"track"`
	StepInterval        time.Duration `json:"step_interval_ms" yaml:"step_interval"`
	ErrorMessage        string        `json:"error_message,omitempty" yaml:"-"`
}

// Ticks returns the number of timer ticks the stage needs to complete.
func (s *Stage) Ticks() int {
	if len(s.SubActions) == 0 {
		return 1
	}
	return len(s.SubActions)
}

// Duration returns the nominal time the stage spends in progress.
func (s *Stage) Duration() time.Duration {
	return time.Duration(s.Ticks()) * s.StepInterval
}

// CompletedSubActions counts ticked sub-actions.
func (s *Stage) CompletedSubActions() int {
	n := 0
	for _, a := range s.SubActions {
		if a.Completed {
			n++
		}
	}
	return n
}

// SetStatus moves the stage forward. It reports false and leaves the stage
// untouched when the move would go backward.
func (s *Stage) SetStatus(next StageStatus) bool {
	if !s.Status.CanTransition(next) {
		return false
	}
	s.Status = next
	return true
}

// Instantiate builds a fresh pending stage from a template.
// Findings and decision stay hidden until Reveal is called.
func (s *Stage) Instantiate() *Stage {
	out := *s
	out.Status = StageStatusPending
	out.Findings = nil
	out.Decision = nil
	out.ErrorMessage = ""
	out.SubActions = make([]SubAction, len(s.SubActions))
	for i, a := range s.SubActions {
		out.SubActions[i] = SubAction{Text: a.Text}
	}
	return &out
}

// Reveal copies the template's findings and decision onto a completed stage.
func (s *Stage) Reveal(tmpl *Stage) {
	s.Findings = append([]string(nil), tmpl.Findings...)
	if tmpl.Decision != nil {
		d := *tmpl.Decision
		s.Decision = &d
	}
}

// CompleteAllSubActions ticks every remaining sub-action.
func (s *Stage) CompleteAllSubActions() {
	for i := range s.SubActions {
		s.SubActions[i].Completed = true
	}
}

// Clone returns a deep copy of the stage.
func (s *Stage) Clone() *Stage {
	out := *s
	out.SubActions = append([]SubAction(nil), s.SubActions...)
	out.Findings = append([]string(nil), s.Findings...)
	if s.Decision != nil {
		d := *s.Decision
		out.Decision = &d
	}
	return &out
}
