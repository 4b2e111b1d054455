package domain

import (
	"encoding/json"
	"time"
)

// Durations travel as integer milliseconds in every *_ms field.

func fromMillis(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }

func (m LiveMessage) MarshalJSON() ([]byte, error) {
	type alias LiveMessage
	return json.Marshal(struct {
		alias
		At int64 `json:"at_ms"`
	}{alias(m), m.At.Milliseconds()})
}

func (m *LiveMessage) UnmarshalJSON(data []byte) error {
	type alias LiveMessage
	aux := struct {
		*alias
		At int64 `json:"at_ms"`
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.At = fromMillis(aux.At)
	return nil
}

func (t Transition) MarshalJSON() ([]byte, error) {
	type alias Transition
	return json.Marshal(struct {
		alias
		At int64 `json:"at_ms"`
	}{alias(t), t.At.Milliseconds()})
}

func (t *Transition) UnmarshalJSON(data []byte) error {
	type alias Transition
	aux := struct {
		*alias
		At int64 `json:"at_ms"`
	}{alias: (*alias)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	t.At = fromMillis(aux.At)
	return nil
}

func (r RunState) MarshalJSON() ([]byte, error) {
	type alias RunState
	return json.Marshal(struct {
		alias
		Elapsed int64 `json:"elapsed_ms"`
		Total   int64 `json:"total_ms"`
	}{alias(r), r.Elapsed.Milliseconds(), r.Total.Milliseconds()})
}

func (r *RunState) UnmarshalJSON(data []byte) error {
	type alias RunState
	aux := struct {
		*alias
		Elapsed int64 `json:"elapsed_ms"`
		Total   int64 `json:"total_ms"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Elapsed = fromMillis(aux.Elapsed)
	r.Total = fromMillis(aux.Total)
	return nil
}

func (s Stage) MarshalJSON() ([]byte, error) {
	type alias Stage
	return json.Marshal(struct {
		alias
		StepInterval int64 `json:"step_interval_ms"`
	}{alias(s), s.StepInterval.Milliseconds()})
}

func (s *Stage) UnmarshalJSON(data []byte) error {
	type alias Stage
	aux := struct {
		*alias
		StepInterval int64 `json:"step_interval_ms"`
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.StepInterval = fromMillis(aux.StepInterval)
	return nil
}
