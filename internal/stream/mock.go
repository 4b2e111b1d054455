package stream

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/agentflow/internal/domain"
)

// SampleInvoice is the result the mock backend returns.
func SampleInvoice() domain.InvoiceResult {
	return domain.InvoiceResult{
		Metadata: domain.InvoiceMetadata{
			InvoiceNumber: "INV-2024-0117",
			VendorName:    "Northwind Office Supply",
			InvoiceDate:   "2024-03-04",
			DueDate:       "2024-04-03",
			Currency:      "USD",
			PONumber:      "PO-88412",
		},
		LineItems: []domain.LineItem{
			{Description: "Ergonomic chair", Quantity: 4, UnitPrice: 289.5, Amount: 1158},
			{Description: "Standing desk frame", Quantity: 2, UnitPrice: 410, Amount: 820},
			{Description: "Delivery", Quantity: 1, UnitPrice: 75, Amount: 75},
		},
		Summary: domain.InvoiceSummary{Subtotal: 2053, Tax: 164.24, Total: 2217.24, AmountDue: 2217.24},
	}
}

// InvoiceFrames is the frame sequence of a successful invoice run.
func InvoiceFrames(result domain.InvoiceResult) []domain.StreamEvent {
	raw, _ := json.Marshal(result)
	return []domain.StreamEvent{
		{Step: 1, Status: "Reading document"},
		{Step: 2, Status: "Extracting header fields"},
		{Step: 3, Status: "Extracting line items"},
		{Step: 4, Status: "Extraction finished"},
		{Step: 5, Status: "Recomputing totals"},
		{Step: 6, Status: "Cross-checking purchase order"},
		{Step: 7, Status: "Done", Result: raw},
	}
}

// MockBackend serves a canned frame sequence in small chunks that do not
// line up with frame boundaries.
type MockBackend struct {
	Frames    []domain.StreamEvent
	Marker    string
	Delay     time.Duration
	ChunkSize int
}

// NewMockBackend serves the sample invoice with the given delay per chunk.
func NewMockBackend(delay time.Duration) *MockBackend {
	return &MockBackend{
		Frames:    InvoiceFrames(SampleInvoice()),
		Marker:    DefaultMarker,
		Delay:     delay,
		ChunkSize: 37,
	}
}

// Body returns the whole response body.
func (m *MockBackend) Body() ([]byte, error) {
	var out []byte
	for _, ev := range m.Frames {
		line, err := EncodeFrame(m.Marker, ev)
		if err != nil {
			return nil, err
		}
		out = append(out, line...)
	}
	return out, nil
}

// Register mounts the backend on path.
func (m *MockBackend) Register(e *echo.Echo, path string) {
	e.POST(path, m.Handle)
}

// Handle streams the frames.
func (m *MockBackend) Handle(c echo.Context) error {
	var req InvokeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	body, err := m.Body()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("X-Run-ID", req.RunID)
	c.Response().WriteHeader(http.StatusOK)

	ctx := c.Request().Context()
	size := m.ChunkSize
	if size <= 0 {
		size = len(body)
	}
	for len(body) > 0 {
		n := min(size, len(body))
		if _, err := c.Response().Write(body[:n]); err != nil {
			return nil
		}
		c.Response().Flush()
		body = body[n:]

		if m.Delay > 0 && len(body) > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(m.Delay):
			}
		}
	}
	return nil
}
