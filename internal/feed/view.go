package feed

import "github.com/xiaot623/agentflow/internal/domain"

// StageView is the per-stage summary shown by the transports.
type StageView struct {
	ID          string             `json:"id"`
	DisplayName string             `json:"display_name"`
	Icon        string             `json:"icon,omitempty"`
	Status      domain.StageStatus `json:"status"`
	Done        int                `json:"done"`
	Total       int                `json:"total"`
	SubActions  []domain.SubAction `json:"sub_actions"`
	Findings    []string           `json:"findings,omitempty"`
	Decision    *domain.Decision   `json:"decision,omitempty"`
	Message     string             `json:"message,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// View bundles everything a client renders for one run.
type View struct {
	RunID       string                `json:"run_id"`
	RunKey      string                `json:"run_key"`
	Mode        domain.Mode           `json:"mode"`
	State       string                `json:"state,omitempty"`
	Progress    Readout               `json:"progress"`
	Message     *domain.LiveMessage   `json:"message,omitempty"`
	MessageLine string                `json:"message_line,omitempty"`
	Terminal    bool                  `json:"terminal"`
	Stages      []StageView           `json:"stages"`
	Summary     string                `json:"summary,omitempty"`
	Error       string                `json:"error,omitempty"`
	Result      *domain.InvoiceResult `json:"result,omitempty"`
}

// Build derives the view of a snapshot.
func Build(st domain.RunState) View {
	v := View{
		RunID:    st.RunID,
		RunKey:   st.RunKey,
		Mode:     st.Mode,
		Progress: Progress(st),
		Summary:  st.Summary,
		Error:    st.Error,
		Result:   st.Result,
		Stages:   make([]StageView, len(st.Stages)),
	}
	if msg, terminal := Live(st); msg.Text != "" {
		v.Message = &msg
		v.MessageLine = Line(msg)
		v.Terminal = terminal
	}
	for i, s := range st.Stages {
		sv := StageView{
			ID:          s.ID,
			DisplayName: s.DisplayName,
			Icon:        s.Icon,
			Status:      s.Status,
			Done:        s.CompletedSubActions(),
			Total:       len(s.SubActions),
			SubActions:  s.SubActions,
			Findings:    s.Findings,
			Decision:    s.Decision,
			Error:       s.ErrorMessage,
		}
		if s.Status == domain.StageStatusCompleted {
			sv.Message = s.OutboundLinkMessage
		}
		v.Stages[i] = sv
	}
	return v
}
