package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/catalogfed/types"
)

// maxRequestBytes caps a query request body.
const maxRequestBytes = 1 << 20

// Engine is the federation surface served over HTTP.
type Engine interface {
	Query(ctx context.Context, req *types.QueryRequest) (*types.QueryResponse, error)
	Sources() []string
}

// Response is the envelope of every API answer.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo describes a failed call.
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// HandlerOptions configures NewHandler.
type HandlerOptions struct {
	Version string
	// Metrics mounts the Prometheus handler on /metrics.
	Metrics bool
	Logger  *zap.Logger
}

type handler struct {
	engine  Engine
	version string
	logger  *zap.Logger
}

// NewHandler returns the API mux:
//
//	GET  /healthz      liveness
//	GET  /version      build version
//	GET  /v1/sources   registered source ids
//	POST /v1/query     federated query, body is a types.QueryRequest
//	GET  /metrics      Prometheus metrics, when enabled
func NewHandler(engine Engine, opts HandlerOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{
		engine:  engine,
		version: opts.Version,
		logger:  logger.With(zap.String("component", "api")),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /version", h.handleVersion)
	mux.HandleFunc("GET /v1/sources", h.handleSources)
	mux.HandleFunc("POST /v1/query", h.handleQuery)
	if opts.Metrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}
	return mux
}

// MetricsHandler serves only /metrics.
func MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"status": "healthy", "timestamp": time.Now()})
}

func (h *handler) handleVersion(w http.ResponseWriter, _ *http.Request) {
	WriteSuccess(w, "", map[string]string{"version": h.version})
}

func (h *handler) handleSources(w http.ResponseWriter, _ *http.Request) {
	WriteSuccess(w, "", map[string]any{"sources": h.engine.Sources()})
}

func (h *handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req types.QueryRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, "", types.NewError(types.ErrInvalidRequest, "malformed query request").WithCause(err))
		return
	}
	if req.Properties == nil {
		req.Properties = make(map[string]any)
	}
	if id := r.Header.Get("X-Request-ID"); id != "" {
		req.SetProperty(types.PropertyRequestID, id)
	}

	resp, err := h.engine.Query(r.Context(), &req)
	if err != nil {
		h.writeError(w, "", err)
		return
	}
	requestID, _ := resp.Properties[types.PropertyRequestID].(string)
	WriteSuccess(w, requestID, resp)
}

func (h *handler) writeError(w http.ResponseWriter, requestID string, err error) {
	info := &ErrorInfo{Code: string(types.ErrInternalError), Message: err.Error()}
	var typed *types.Error
	if errors.As(err, &typed) {
		info.Code = string(typed.Code)
		info.Message = typed.Message
		info.Retryable = typed.Retryable
	}
	status := statusFor(types.ErrorCode(info.Code))

	h.logger.Warn("API error",
		zap.String("code", info.Code),
		zap.Int("status", status),
		zap.Error(err))

	WriteJSON(w, status, Response{
		Success:   false,
		Error:     info,
		Timestamp: time.Now(),
		RequestID: requestID,
	})
}

// WriteJSON writes v as a JSON body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteSuccess wraps data in a successful Response.
func WriteSuccess(w http.ResponseWriter, requestID string, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: requestID,
	})
}

func statusFor(code types.ErrorCode) int {
	switch code {
	case types.ErrInvalidRequest:
		return http.StatusBadRequest
	case types.ErrRateLimited:
		return http.StatusTooManyRequests
	case types.ErrTimeout:
		return http.StatusGatewayTimeout
	case types.ErrSourceUnavailable, types.ErrExecutorRejected:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
