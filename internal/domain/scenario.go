package domain

import "time"

// TransitionMessage is an agent-to-agent message emitted when its From stage
// completes. An empty To marks the final message of a run.
type TransitionMessage struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to,omitempty" yaml:"to"`
	Text string `json:"text" yaml:"text"`
}

// StepRange maps an inclusive range of stream step numbers to a stage phase.
// A zero To leaves the range open-ended.
type StepRange struct {
	From    int         `json:"from" yaml:"from"`
	To      int         `json:"to,omitempty" yaml:"to"`
	StageID string      `json:"stage_id" yaml:"stage"`
	Phase   StreamPhase `json:"phase" yaml:"phase"`
}

// Contains reports whether step falls in the range.
func (r StepRange) Contains(step int) bool {
	if step < r.From {
		return false
	}
	return r.To == 0 || step <= r.To
}

// Scenario is the immutable definition of a workflow run.
type Scenario struct {
	RunKey             string              `json:"run_key" yaml:"run_key"`
	Title              string              `json:"title" yaml:"title"`
	Mode               Mode                `json:"mode" yaml:"mode"`
	OpeningText        string              `json:"opening_text,omitempty" yaml:"opening_text"`
	OrderedStages      []Stage             `json:"stages" yaml:"stages"`
	TransitionMessages []TransitionMessage `json:"transition_messages" yaml:"transition_messages"`
	SummaryText        string              `json:"summary_text" yaml:"summary_text"`
	StepMapping        []StepRange         `json:"step_mapping,omitempty" yaml:"step_mapping"`
}

// Section is a contiguous part of a scenario layout. A sequential section has
// exactly one track; a parallel section has one track per Track label.
// Tracks hold indices into OrderedStages.
type Section struct {
	Parallel bool
	Tracks   [][]int
	Labels   []string
}

// Layout groups the ordered stages into sections. A maximal run of stages
// marked IsParallelTrack forms one parallel section; the stage following it
// is the collation stage and starts the next sequential section.
func (s *Scenario) Layout() []Section {
	var sections []Section
	i := 0
	for i < len(s.OrderedStages) {
		if !s.OrderedStages[i].IsParallelTrack {
			sec := Section{Labels: []string{""}}
			var track []int
			for i < len(s.OrderedStages) && !s.OrderedStages[i].IsParallelTrack {
				track = append(track, i)
				i++
			}
			sec.Tracks = [][]int{track}
			sections = append(sections, sec)
			continue
		}

		sec := Section{Parallel: true}
		byLabel := map[string]int{}
		for i < len(s.OrderedStages) && s.OrderedStages[i].IsParallelTrack {
			label := s.OrderedStages[i].Track
			idx, ok := byLabel[label]
			if !ok {
				idx = len(sec.Tracks)
				byLabel[label] = idx
				sec.Tracks = append(sec.Tracks, nil)
				sec.Labels = append(sec.Labels, label)
			}
			sec.Tracks[idx] = append(sec.Tracks[idx], i)
			i++
		}
		sections = append(sections, sec)
	}
	return sections
}

// NominalDuration is the sum of sequential stage durations plus the slowest
// track of every parallel section.
func (s *Scenario) NominalDuration() time.Duration {
	var total time.Duration
	for _, sec := range s.Layout() {
		var longest time.Duration
		for _, track := range sec.Tracks {
			var d time.Duration
			for _, idx := range track {
				d += s.OrderedStages[idx].Duration()
			}
			if d > longest {
				longest = d
			}
		}
		total += longest
	}
	return total
}

// StageIndex returns the index of the stage with the given id, or -1.
func (s *Scenario) StageIndex(id string) int {
	for i := range s.OrderedStages {
		if s.OrderedStages[i].ID == id {
			return i
		}
	}
	return -1
}

// MessageFrom returns the first transition message sent by the given stage.
func (s *Scenario) MessageFrom(stageID string) (TransitionMessage, bool) {
	for _, m := range s.TransitionMessages {
		if m.From == stageID {
			return m, true
		}
	}
	return TransitionMessage{}, false
}

// FinalMessage returns the transition message with an empty To, if any.
func (s *Scenario) FinalMessage() (TransitionMessage, bool) {
	for _, m := range s.TransitionMessages {
		if m.To == "" {
			return m, true
		}
	}
	return TransitionMessage{}, false
}
