package v1

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/agentflow/internal/feed"
)

type scenarioInfo struct {
	RunKey      string `json:"run_key"`
	Mode        string `json:"mode"`
	Stages      int    `json:"stages"`
	SummaryText string `json:"summary_text"`
}

// ListScenarios lists the scenario catalog.
// GET /v1/scenarios
func (h *Handler) ListScenarios(c echo.Context) error {
	list := h.service.Scenarios()
	out := make([]scenarioInfo, 0, len(list))
	for _, sc := range list {
		out = append(out, scenarioInfo{
			RunKey:      sc.RunKey,
			Mode:        string(sc.Mode),
			Stages:      len(sc.OrderedStages),
			SummaryText: sc.SummaryText,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"scenarios": out,
	})
}

// GetSession returns the current view of a run key.
// GET /v1/sessions/:run_key
func (h *Handler) GetSession(c echo.Context) error {
	v, err := h.service.View(c.Param("run_key"))
	if err != nil {
		return c.JSON(statusOf(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, v)
}

// RunAgent starts or re-runs the workflow of a run key.
// POST /v1/sessions/:run_key/run
func (h *Handler) RunAgent(c echo.Context) error {
	return h.trigger(c, h.service.RunAgent)
}

// CancelAgent cancels the running workflow of a run key.
// POST /v1/sessions/:run_key/cancel
func (h *Handler) CancelAgent(c echo.Context) error {
	return h.trigger(c, h.service.CancelAgent)
}

// ResetAgent resets a run key to a fresh idle run.
// POST /v1/sessions/:run_key/reset
func (h *Handler) ResetAgent(c echo.Context) error {
	return h.trigger(c, h.service.ResetAgent)
}

func (h *Handler) trigger(c echo.Context, fn func(context.Context, string) (feed.View, error)) error {
	v, err := fn(c.Request().Context(), c.Param("run_key"))
	if err != nil {
		resp := map[string]interface{}{"error": err.Error()}
		if v.RunKey != "" {
			resp["view"] = v
		}
		return c.JSON(statusOf(err), resp)
	}
	return c.JSON(http.StatusOK, v)
}
