// internal/api/handler/api/state.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/newthinker/tradewatch/internal/api/response"
	"github.com/newthinker/tradewatch/internal/core"
	"github.com/newthinker/tradewatch/internal/view"
)

// StateSource returns the most recently rendered state.
type StateSource interface {
	Get() (view.State, bool)
}

// Selector changes the active symbol.
type Selector interface {
	Select(symbol string) error
}

// Controller sends a pause/resume action to the bot.
type Controller interface {
	Set(ctx context.Context, action core.ControlAction) (core.BotStatus, error)
}

// StateHandler exposes the merged dashboard state as JSON.
type StateHandler struct {
	state    StateSource
	selector Selector
	control  Controller
}

// NewStateHandler creates a new state handler.
func NewStateHandler(state StateSource, selector Selector, control Controller) *StateHandler {
	return &StateHandler{state: state, selector: selector, control: control}
}

// Get returns the state rendered by the last cycle.
func (h *StateHandler) Get(w http.ResponseWriter, r *http.Request) {
	state, ok := h.state.Get()
	if !ok {
		response.Error(w, http.StatusServiceUnavailable,
			core.WrapError(core.ErrNoData, fmt.Errorf("no refresh cycle completed yet")))
		return
	}
	response.JSON(w, http.StatusOK, state)
}

// SelectRequest is the body of POST /api/v1/select.
type SelectRequest struct {
	Symbol string `json:"symbol"`
}

// Select makes a symbol active. The next cycle picks it up.
func (h *StateHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, core.WrapError(core.ErrInvalidSymbol, err))
		return
	}

	symbol := strings.TrimSpace(req.Symbol)
	if err := h.selector.Select(symbol); err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}

	response.JSON(w, http.StatusAccepted, map[string]string{
		"active_symbol": symbol,
	})
}

// ControlRequest is the body of POST /api/v1/control.
type ControlRequest struct {
	Action core.ControlAction `json:"action"`
}

// Control forwards a pause/resume action and returns the bot's status.
func (h *StateHandler) Control(w http.ResponseWriter, r *http.Request) {
	var req ControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, core.WrapError(core.ErrInvalidAction, err))
		return
	}

	status, err := h.control.Set(r.Context(), req.Action)
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"status": status,
		"paused": status.Paused(),
	})
}
