package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"classrelay/internal/cache"
	"classrelay/internal/chunk"
	"classrelay/internal/core"
)

// Actions the relay answers itself instead of forwarding verbatim
const (
	ActionUploadRefMaterial = "uploadRefMaterial"
	ActionGetRefImage       = "getRefImage"
)

// Uploader sends a payload through the chunk transport
type Uploader interface {
	Upload(ctx context.Context, payload []byte, mimeType, fileName string) (chunk.Locator, error)
}

// Handler holds the HTTP handlers
type Handler struct {
	relayer   core.Relayer
	uploader  Uploader
	refCache  cache.Cache
	bodyLimit int64
}

// NewHandler creates a handler. uploader may be nil, in which case
// uploadRefMaterial is answered with an error envelope.
func NewHandler(relayer core.Relayer, uploader Uploader, refCache cache.Cache, bodyLimit int64) *Handler {
	if refCache == nil {
		refCache = cache.Noop{}
	}
	return &Handler{
		relayer:   relayer,
		uploader:  uploader,
		refCache:  refCache,
		bodyLimit: bodyLimit,
	}
}

// RelayGet handles GET /relay
//
// @Summary      Relay a GET call to the backend
// @Description  Query parameters are forwarded as the backend query string. The backend redirect is resolved server-side.
// @Tags         relay
// @Produce      json
// @Param        action  query     string  true  "Backend action"
// @Success      200     {object}  Envelope
// @Failure      500     {object}  Envelope
// @Router       /relay [get]
func (h *Handler) RelayGet(c echo.Context) error {
	params := c.QueryParams()
	action := params.Get("action")

	if action == ActionGetRefImage {
		return h.getRefImage(c, params.Get("imgId"))
	}

	resp, err := h.relayer.Relay(c.Request().Context(), core.NewGetRequest(action, params))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSONBlob(http.StatusOK, resp.Body)
}

// RelayPost handles POST /relay
//
// @Summary      Relay a POST call to the backend
// @Description  The JSON body is forwarded unchanged. action=uploadRefMaterial is handled by the relay, which delivers fileData to the backend in ordered chunks and answers with a ref:// locator.
// @Tags         relay
// @Accept       json
// @Produce      json
// @Param        body  body      object  true  "{action, ...fields}"
// @Success      200   {object}  Envelope
// @Failure      500   {object}  Envelope
// @Router       /relay [post]
func (h *Handler) RelayPost(c echo.Context) error {
	body, err := h.readBody(c)
	if err != nil {
		return handleError(c, err)
	}
	if !gjson.ValidBytes(body) {
		return handleError(c, core.NewInvalidRequestError("request body must be JSON", nil))
	}

	switch gjson.GetBytes(body, "action").String() {
	case ActionUploadRefMaterial:
		return h.uploadRefMaterial(c, body)
	case ActionGetRefImage:
		return h.getRefImage(c, gjson.GetBytes(body, "imgId").String())
	}

	resp, err := h.relayer.Relay(c.Request().Context(), core.NewPostRequest(body))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSONBlob(http.StatusOK, resp.Body)
}

// Preflight handles OPTIONS /relay without contacting the backend
func (h *Handler) Preflight(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// readBody reads at most bodyLimit bytes and reports PayloadTooLarge past that
func (h *Handler) readBody(c echo.Context) ([]byte, error) {
	r := c.Request().Body
	if r == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r, h.bodyLimit+1))
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to read request body: "+err.Error(), err)
	}
	if int64(len(body)) > h.bodyLimit {
		size := c.Request().ContentLength
		if size < int64(len(body)) {
			size = int64(len(body))
		}
		return nil, core.NewPayloadTooLargeError(size, h.bodyLimit)
	}
	return body, nil
}

// getRefImage resolves a locator to its data URL envelope. Success answers
// are cached by token; uploads are immutable once complete.
func (h *Handler) getRefImage(c echo.Context, imgID string) error {
	ctx := c.Request().Context()

	loc, ok := chunk.ParseLocator(imgID)
	if !ok {
		return handleError(c, core.NewInvalidRequestError("imgId is required", nil))
	}

	cached, err := h.refCache.Get(ctx, loc.Token())
	if err != nil {
		slog.Warn("reference cache read failed", "token", loc.Token(), "error", err)
	}
	if cached != nil {
		return c.JSONBlob(http.StatusOK, cached)
	}

	params := url.Values{}
	params.Set("imgId", loc.Token())
	resp, err := h.relayer.Relay(ctx, core.NewGetRequest(ActionGetRefImage, params))
	if err != nil {
		return handleError(c, err)
	}

	if resp.OK() && resp.Get("dataUrl").Exists() {
		if err := h.refCache.Set(ctx, loc.Token(), resp.Body); err != nil {
			slog.Warn("reference cache write failed", "token", loc.Token(), "error", err)
		}
	}
	return c.JSONBlob(http.StatusOK, resp.Body)
}

// uploadRefMaterial delivers fileData through the chunk transport and
// answers {status:"success", url:"ref://<token>"}
func (h *Handler) uploadRefMaterial(c echo.Context, body []byte) error {
	if h.uploader == nil {
		return handleError(c, core.NewInvalidRequestError("uploads are not available", nil))
	}

	fields := gjson.GetManyBytes(body, "fileData", "fileName", "mimeType")
	payload, mimeType, err := parseFileData(fields[0].String(), fields[2].String())
	if err != nil {
		return handleError(c, err)
	}
	fileName := fields[1].String()
	if fileName == "" {
		fileName = defaultFileName
	}

	loc, err := h.uploader.Upload(c.Request().Context(), payload, mimeType, fileName)
	if err != nil {
		return handleError(c, err)
	}

	out, err := sjson.SetBytes([]byte(`{"status":"success"}`), "url", loc.String())
	if err != nil {
		return handleError(c, err)
	}
	return c.JSONBlob(http.StatusOK, out)
}

// Envelope documents the response shape shared by every relay route
type Envelope struct {
	Status  string `json:"status" example:"success"`
	Message string `json:"message,omitempty"`
}

// handleError converts relay errors to envelope responses
func handleError(c echo.Context, err error) error {
	var relayErr *core.RelayError
	if errors.As(err, &relayErr) {
		return c.JSONBlob(relayErr.HTTPStatusCode(), relayErr.Envelope())
	}

	slog.Error("unexpected relay error", "error", err, "request_id", core.GetRequestID(c.Request().Context()))
	return c.JSONBlob(http.StatusInternalServerError, core.ErrorEnvelope(err.Error()))
}
