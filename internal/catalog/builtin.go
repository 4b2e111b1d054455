package catalog

import (
	"time"

	"github.com/xiaot623/agentflow/internal/domain"
)

// Built-in run keys.
const (
	FraudCaseKey   = "CASE-1001"
	CreditAppKey   = "APP-2001"
	InvoiceLiveKey = "INV-3001"
)

// InvoiceMapping is the step table of the invoice streaming backend:
// steps 1-2 run extraction, 3-4 complete it, 5-6 run validation and
// 7 onward complete validation.
func InvoiceMapping(extraction, validation string) []domain.StepRange {
	return []domain.StepRange{
		{From: 1, To: 2, StageID: extraction, Phase: domain.StreamPhaseRunning},
		{From: 3, To: 4, StageID: extraction, Phase: domain.StreamPhaseCompleted},
		{From: 5, To: 6, StageID: validation, Phase: domain.StreamPhaseRunning},
		{From: 7, StageID: validation, Phase: domain.StreamPhaseCompleted},
	}
}

func actions(texts ...string) []domain.SubAction {
	out := make([]domain.SubAction, len(texts))
	for i, t := range texts {
		out[i] = domain.SubAction{Text: t}
	}
	return out
}

// Builtin returns the scenarios shipped with the binary.
func Builtin() []domain.Scenario {
	return []domain.Scenario{fraudCase(), creditApplication(), invoiceLive()}
}

func fraudCase() domain.Scenario {
	step := 400 * time.Millisecond
	return domain.Scenario{
		RunKey:      FraudCaseKey,
		Title:       "Card-not-present fraud investigation",
		Mode:        domain.ModeSimulated,
		OpeningText: "New dispute received for card ending 4421, starting intake",
		OrderedStages: []domain.Stage{
			{
				ID: "intake", DisplayName: "Intake Agent", Icon: "inbox", StepInterval: step,
				SubActions: actions("Load dispute record", "Normalize merchant data", "Attach cardholder profile"),
				Findings:   []string{"Dispute filed 2 days after transaction", "Merchant category: electronics"},
			},
			{
				ID: "transactions", DisplayName: "Transaction Analyst", Icon: "chart", StepInterval: step,
				SubActions: actions("Pull 90-day history", "Compare spend velocity", "Flag geographic outliers"),
				Findings:   []string{"3 purchases within 6 minutes", "Shipping address differs from billing"},
			},
			{
				ID: "device", DisplayName: "Device Intelligence", Icon: "fingerprint", StepInterval: step,
				SubActions: actions("Resolve device fingerprint", "Check IP reputation"),
				Findings:   []string{"Device first seen on day of purchase", "IP routed through hosting provider"},
			},
			{
				ID: "risk", DisplayName: "Risk Scoring", Icon: "gauge", StepInterval: step,
				SubActions: actions("Aggregate signals", "Score against fraud model", "Calibrate confidence"),
				Findings:   []string{"Composite risk score 87/100"},
			},
			{
				ID: "decision", DisplayName: "Case Decision", Icon: "gavel", StepInterval: step,
				SubActions: actions("Draft recommendation", "Attach evidence bundle"),
				Findings:   []string{"Recommend chargeback approval"},
				Decision:   &domain.Decision{Label: "Confirmed fraud", ConfidenceScore: 92},
			},
		},
		TransitionMessages: []domain.TransitionMessage{
			{From: "intake", To: "transactions", Text: "Case normalized, handing over transaction history"},
			{From: "transactions", To: "device", Text: "Velocity anomaly found, please check the purchasing device"},
			{From: "device", To: "risk", Text: "Device and network signals attached"},
			{From: "risk", To: "decision", Text: "High risk score, preparing recommendation"},
			{From: "decision", Text: "Case closed with recommendation"},
		},
		SummaryText: "Case CASE-1001 classified as confirmed fraud (92% confidence); chargeback recommended.",
	}
}

func creditApplication() domain.Scenario {
	return domain.Scenario{
		RunKey:      CreditAppKey,
		Title:       "Small business credit application",
		Mode:        domain.ModeSimulated,
		OpeningText: "Application received, splitting bureau and KYC checks",
		OrderedStages: []domain.Stage{
			{
				ID: "application", DisplayName: "Application Intake", Icon: "file", StepInterval: 500 * time.Millisecond,
				SubActions: actions("Parse application form", "Verify requested amount"),
				Findings:   []string{"Requested line: $250,000", "Business age: 6 years"},
			},
			{
				ID: "bureau", DisplayName: "Credit Bureau Agent", Icon: "bank", IsParallelTrack: true, Track: "credit",
				StepInterval: 300 * time.Millisecond,
				SubActions:   actions("Pull commercial report", "Pull owner report"),
				Findings:     []string{"Paydex 78", "No derogatory marks"},
			},
			{
				ID: "cashflow", DisplayName: "Cash Flow Model", Icon: "chart", IsParallelTrack: true, Track: "credit",
				StepInterval: 300 * time.Millisecond,
				SubActions:   actions("Estimate DSCR", "Project 12-month runway"),
				Findings:     []string{"DSCR 1.42"},
			},
			{
				ID: "kyc", DisplayName: "KYC Agent", Icon: "id", IsParallelTrack: true, Track: "identity",
				StepInterval: 1200 * time.Millisecond,
				SubActions:   actions("Verify beneficial owners", "Screen sanctions lists"),
				Findings:     []string{"Owners verified", "No sanctions hits"},
			},
			{
				ID: "underwriting", DisplayName: "Underwriting Collation", Icon: "stack", StepInterval: 600 * time.Millisecond,
				SubActions: actions("Merge credit and identity findings", "Apply policy limits"),
				Findings:   []string{"Approve at $200,000 with 24-month term"},
				Decision:   &domain.Decision{Label: "Approve with conditions", ConfidenceScore: 81},
			},
		},
		TransitionMessages: []domain.TransitionMessage{
			{From: "application", To: "bureau", Text: "Application parsed, requesting bureau data"},
			{From: "bureau", To: "cashflow", Text: "Bureau reports attached for cash flow modelling"},
			{From: "cashflow", To: "underwriting", Text: "Credit track finished"},
			{From: "kyc", To: "underwriting", Text: "Identity track finished"},
			{From: "underwriting", Text: "Underwriting memo ready for review"},
		},
		SummaryText: "Application APP-2001 approved with conditions at $200,000 (81% confidence).",
	}
}

func invoiceLive() domain.Scenario {
	return domain.Scenario{
		RunKey:      InvoiceLiveKey,
		Title:       "Live invoice extraction",
		Mode:        domain.ModeStream,
		OpeningText: "Uploading invoice to extraction backend",
		OrderedStages: []domain.Stage{
			{
				ID: "extraction", DisplayName: "Extraction Agent", Icon: "scan",
				SubActions: actions("Read document", "Extract header fields", "Extract line items"),
			},
			{
				ID: "validation", DisplayName: "Validation Agent", Icon: "check",
				SubActions: actions("Recompute totals", "Cross-check purchase order"),
			},
		},
		TransitionMessages: []domain.TransitionMessage{
			{From: "extraction", To: "validation", Text: "Fields extracted, validating totals"},
			{From: "validation", Text: "Invoice extracted and validated"},
		},
		SummaryText: "Invoice extracted and validated.",
		StepMapping: InvoiceMapping("extraction", "validation"),
	}
}
