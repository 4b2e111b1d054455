// Package feed derives the progress readout and the live message feed from a
// run snapshot. Every function is pure and safe to call on each change.
package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xiaot623/agentflow/internal/domain"
)

// Percent converts elapsed nominal time into a completion percentage.
// The result is clamped to [0,100] and only reaches 100 when complete.
func Percent(elapsed, total time.Duration, complete bool) int {
	if complete {
		return 100
	}
	if total <= 0 || elapsed <= 0 {
		return 0
	}
	p := int(elapsed * 100 / total)
	if p > 99 {
		p = 99
	}
	return p
}

// Readout is the progress bar state of a run.
type Readout struct {
	Percent int           `json:"percent"`
	Elapsed time.Duration `json:"elapsed_ms"`
	Total   time.Duration `json:"total_ms"`
	Label   string        `json:"label,omitempty"`
}

// MarshalJSON writes the durations as integer milliseconds.
func (r Readout) MarshalJSON() ([]byte, error) {
	type alias Readout
	return json.Marshal(struct {
		alias
		Elapsed int64 `json:"elapsed_ms"`
		Total   int64 `json:"total_ms"`
	}{alias(r), r.Elapsed.Milliseconds(), r.Total.Milliseconds()})
}

func (r *Readout) UnmarshalJSON(data []byte) error {
	type alias Readout
	aux := struct {
		*alias
		Elapsed int64 `json:"elapsed_ms"`
		Total   int64 `json:"total_ms"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Elapsed = time.Duration(aux.Elapsed) * time.Millisecond
	r.Total = time.Duration(aux.Total) * time.Millisecond
	return nil
}

// Progress derives the readout of a run. Runs without a nominal duration
// (stream runs) report the percentage their producer recorded.
func Progress(st domain.RunState) Readout {
	r := Readout{Elapsed: st.Elapsed, Total: st.Total}
	if st.Total > 0 {
		r.Percent = Percent(st.Elapsed, st.Total, st.IsComplete)
		r.Label = clock(st.Elapsed) + " / " + clock(st.Total)
		return r
	}
	r.Percent = st.ProgressPercent
	if st.IsComplete {
		r.Percent = 100
	}
	return r
}

func clock(d time.Duration) string {
	s := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

// Live returns the current message and whether it is the run's terminal one.
func Live(st domain.RunState) (domain.LiveMessage, bool) {
	if st.LiveMessage == nil {
		return domain.LiveMessage{}, false
	}
	return *st.LiveMessage, st.IsComplete && st.LiveMessage.IsFinal
}

// Line renders a message as "From → To: text".
func Line(m domain.LiveMessage) string {
	if m.Text == "" {
		return ""
	}
	if m.To == "" {
		return fmt.Sprintf("%s: %s", m.From, m.Text)
	}
	return fmt.Sprintf("%s → %s: %s", m.From, m.To, m.Text)
}
