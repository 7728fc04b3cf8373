package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	orchestratorx "github.com/tanpawarit/brain-orchestrator/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
)

const maxBodyBytes = 1 << 20

const (
	msgBadJSON      = "request body must be valid JSON"
	msgEmptyMessage = "message must not be empty"
	msgEmptyQuery   = "query must not be empty"
	msgEmptyDesc    = "description must not be empty"
	msgUnavailable  = "The assistant is temporarily unavailable. Please try again."
	msgNoStreaming  = "streaming is not supported by this connection"
)

// Service is the orchestrator surface the HTTP layer needs.
type Service interface {
	Stream(ctx context.Context, req contractx.ChatRequest) (<-chan contractx.ProgressEvent, error)
	Chat(ctx context.Context, req contractx.ChatRequest) (contractx.ChatResponse, error)
	Analyze(ctx context.Context, query string) (contractx.ChatResponse, error)
	Visualize(ctx context.Context, description string) (contractx.VisualizeResponse, error)
	Health(ctx context.Context) orchestratorx.HealthReport
}

var _ Service = (*orchestratorx.Orchestrator)(nil)

type Config struct {
	Addr              string        `envconfig:"HTTP_ADDR" default:":8080"`
	ReadHeaderTimeout time.Duration `envconfig:"HTTP_READ_HEADER_TIMEOUT" default:"10s"`
	ShutdownTimeout   time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
}

type Handler struct {
	svc Service
	mux *http.ServeMux
}

func NewHandler(svc Service) *Handler {
	h := &Handler{svc: svc, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST /ai/chat", h.chat)
	h.mux.HandleFunc("POST /ai/chat/stream", h.chatStream)
	h.mux.HandleFunc("POST /ai/analyze", h.analyze)
	h.mux.HandleFunc("POST /ai/visualize", h.visualize)
	h.mux.HandleFunc("GET /ai/health", h.health)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()
	logger := log.With().Str("request_id", reqID).Str("path", r.URL.Path).Logger()
	start := time.Now()

	h.mux.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))

	logger.Debug().Str("method", r.Method).Dur("elapsed", time.Since(start)).Msg("request served")
}

type analyzeRequest struct {
	Query string `json:"query"`
}

type visualizeRequest struct {
	Description string `json:"description"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	var req contractx.ChatRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, msgEmptyMessage)
		return
	}

	resp, err := h.svc.Chat(r.Context(), req)
	if err != nil {
		writeRunError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, msgEmptyQuery)
		return
	}

	resp, err := h.svc.Analyze(r.Context(), req.Query)
	if err != nil {
		writeRunError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) visualize(w http.ResponseWriter, r *http.Request) {
	var req visualizeRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		writeError(w, http.StatusBadRequest, msgEmptyDesc)
		return
	}

	resp, err := h.svc.Visualize(r.Context(), req.Description)
	if err != nil {
		writeRunError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Health(r.Context()))
}

// chatStream writes one SSE data frame per progress event. Once headers are
// sent, failures arrive as the error event itself.
func (h *Handler) chatStream(w http.ResponseWriter, r *http.Request) {
	var req contractx.ChatRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, msgEmptyMessage)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, msgNoStreaming)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, err := h.svc.Stream(ctx, req)
	if err != nil {
		writeRunError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger := zerolog.Ctx(ctx)
	for ev := range events {
		if err := writeEvent(w, ev); err != nil {
			logger.Info().Err(err).Msg("stream client went away")
			// Cancelling stops the run; drain until the producer closes.
			cancel()
			for range events {
			}
			return
		}
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, ev contractx.ProgressEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		zerolog.Ctx(r.Context()).Debug().Err(err).Msg("invalid request body")
		writeError(w, http.StatusBadRequest, msgBadJSON)
		return false
	}
	return true
}

// writeRunError maps service failures onto user-safe responses.
func writeRunError(ctx context.Context, w http.ResponseWriter, err error) {
	var runErr *orchestratorx.RunError
	switch {
	case errors.Is(err, orchestratorx.ErrInvalidMessage):
		writeError(w, http.StatusBadRequest, msgEmptyMessage)
	case errors.As(err, &runErr):
		writeError(w, http.StatusServiceUnavailable, runErr.Message)
	default:
		zerolog.Ctx(ctx).Error().Err(err).Msg("request failed")
		writeError(w, http.StatusServiceUnavailable, msgUnavailable)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}
