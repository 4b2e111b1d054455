package domain

import "encoding/json"

// StreamEvent is one control frame delivered by a streaming backend.
type StreamEvent struct {
	Step   int             `json:"step"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
}

// HasResult reports whether the event carries a terminal payload.
func (e StreamEvent) HasResult() bool {
	return len(e.Result) > 0 && string(e.Result) != "null"
}

// InvoiceMetadata holds the header fields of an extracted invoice.
type InvoiceMetadata struct {
	InvoiceNumber string `json:"invoice_number"`
	VendorName    string `json:"vendor_name"`
	InvoiceDate   string `json:"invoice_date"`
	DueDate       string `json:"due_date"`
	Currency      string `json:"currency"`
	PONumber      string `json:"po_number,omitempty"`
}

// LineItem is one row of an extracted invoice.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Amount      float64 `json:"amount"`
}

// InvoiceSummary holds the final totals of an extracted invoice.
type InvoiceSummary struct {
	Subtotal  float64 `json:"subtotal"`
	Tax       float64 `json:"tax"`
	Total     float64 `json:"total"`
	AmountDue float64 `json:"amount_due"`
}

// InvoiceResult is the terminal payload of a streaming run.
type InvoiceResult struct {
	Metadata  InvoiceMetadata `json:"metadata"`
	LineItems []LineItem      `json:"line_items"`
	Summary   InvoiceSummary  `json:"summary"`
}

// Clone returns a deep copy of the result.
func (r *InvoiceResult) Clone() *InvoiceResult {
	out := *r
	out.LineItems = append([]LineItem(nil), r.LineItems...)
	return &out
}
