// Package admin provides the read-only admin API over the call log.
package admin

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"classrelay/internal/calllog"
	"classrelay/internal/core"
)

// DefaultDays is the look-back window when no days parameter is given.
const DefaultDays = 30

// Handler serves admin API endpoints.
type Handler struct {
	reader calllog.Reader
}

// NewHandler creates a new admin API handler.
// reader may be nil if the call log is not available.
func NewHandler(reader calllog.Reader) *Handler {
	return &Handler{reader: reader}
}

// parseQueryParams extracts call log filters from the query string.
func parseQueryParams(c echo.Context) (calllog.QueryParams, error) {
	var params calllog.QueryParams

	days := DefaultDays
	if d := c.QueryParam("days"); d != "" {
		parsed, err := strconv.Atoi(d)
		if err != nil || parsed <= 0 {
			return params, core.NewInvalidRequestError("days must be a positive integer", nil)
		}
		days = parsed
	}
	params.Since = time.Now().UTC().AddDate(0, 0, -days)

	params.Kind = c.QueryParam("kind")
	switch params.Kind {
	case "", calllog.KindRelay, calllog.KindUpload:
	default:
		return params, core.NewInvalidRequestError("kind must be relay or upload", nil)
	}
	params.Action = c.QueryParam("action")

	if l := c.QueryParam("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			return params, core.NewInvalidRequestError("limit must be a positive integer", nil)
		}
		params.Limit = parsed
	}

	return params, nil
}

// handleError converts errors to the same envelope the relay routes answer with.
func handleError(c echo.Context, err error) error {
	var relayErr *core.RelayError
	if errors.As(err, &relayErr) {
		status := http.StatusInternalServerError
		if relayErr.Kind == core.KindInvalidRequest {
			status = http.StatusBadRequest
		}
		return c.JSONBlob(status, relayErr.Envelope())
	}

	return c.JSONBlob(http.StatusInternalServerError, core.ErrorEnvelope("an unexpected error occurred"))
}

// Summary handles GET /admin/api/v1/calls/summary
//
// @Summary      Get call log summary
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        days    query     int     false  "Number of days (default 30)"
// @Param        kind    query     string  false  "relay or upload"
// @Param        action  query     string  false  "Backend action name"
// @Success      200  {object}  calllog.Summary
// @Failure      400  {object}  server.Envelope
// @Failure      401  {object}  server.Envelope
// @Router       /admin/api/v1/calls/summary [get]
func (h *Handler) Summary(c echo.Context) error {
	if h.reader == nil {
		return c.JSON(http.StatusOK, calllog.Summary{})
	}

	params, err := parseQueryParams(c)
	if err != nil {
		return handleError(c, err)
	}

	summary, err := h.reader.GetSummary(c.Request().Context(), params)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

// Outcomes handles GET /admin/api/v1/calls/outcomes
//
// @Summary      Get call counts by outcome
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        days    query     int     false  "Number of days (default 30)"
// @Param        kind    query     string  false  "relay or upload"
// @Param        action  query     string  false  "Backend action name"
// @Success      200  {array}   calllog.OutcomeCount
// @Failure      400  {object}  server.Envelope
// @Failure      401  {object}  server.Envelope
// @Router       /admin/api/v1/calls/outcomes [get]
func (h *Handler) Outcomes(c echo.Context) error {
	if h.reader == nil {
		return c.JSON(http.StatusOK, []calllog.OutcomeCount{})
	}

	params, err := parseQueryParams(c)
	if err != nil {
		return handleError(c, err)
	}

	outcomes, err := h.reader.GetOutcomes(c.Request().Context(), params)
	if err != nil {
		return handleError(c, err)
	}
	if outcomes == nil {
		outcomes = []calllog.OutcomeCount{}
	}
	return c.JSON(http.StatusOK, outcomes)
}

// Recent handles GET /admin/api/v1/calls/recent
//
// @Summary      List the newest call log entries
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        days    query     int     false  "Number of days (default 30)"
// @Param        kind    query     string  false  "relay or upload"
// @Param        action  query     string  false  "Backend action name"
// @Param        limit   query     int     false  "Max entries (default 50, max 500)"
// @Success      200  {array}   calllog.Entry
// @Failure      400  {object}  server.Envelope
// @Failure      401  {object}  server.Envelope
// @Router       /admin/api/v1/calls/recent [get]
func (h *Handler) Recent(c echo.Context) error {
	if h.reader == nil {
		return c.JSON(http.StatusOK, []calllog.Entry{})
	}

	params, err := parseQueryParams(c)
	if err != nil {
		return handleError(c, err)
	}

	entries, err := h.reader.GetRecent(c.Request().Context(), params)
	if err != nil {
		return handleError(c, err)
	}
	if entries == nil {
		entries = []calllog.Entry{}
	}
	return c.JSON(http.StatusOK, entries)
}
