// Package api exposes the dimmer over HTTP
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"dimctl/host/dimmer"
	"dimctl/host/service"
	"dimctl/protocol"
)

const (
	requestTimeout  = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Controller is the part of the service the API drives
type Controller interface {
	Status() service.Status
	SetBrightness(ctx context.Context, level float64) error
}

type brightnessRequest struct {
	Level *float64 `json:"level" validate:"required,gte=0,lte=1"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter builds the HTTP routes. metrics may be nil.
func NewRouter(ctrl Controller, metrics http.Handler) http.Handler {
	h := &handler{
		ctrl:     ctrl,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/status", h.status)
	r.Put("/brightness", h.setBrightness)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	return r
}

// Serve runs an HTTP server on addr until ctx is cancelled
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type handler struct {
	ctrl     Controller
	validate *validator.Validate
}

func (h *handler) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Status())
}

func (h *handler) setBrightness(w http.ResponseWriter, r *http.Request) {
	var req brightnessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "level must be between 0 and 1"})
		return
	}

	if err := h.ctrl.SetBrightness(r.Context(), *req.Level); err != nil {
		log.Warn().Err(err).Float64("level", *req.Level).Msg("api: brightness update failed")
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, h.ctrl.Status())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidLevel):
		return http.StatusBadRequest
	case errors.Is(err, dimmer.ErrNotReady), errors.Is(err, dimmer.ErrFailed):
		return http.StatusServiceUnavailable
	case errors.Is(err, protocol.ErrNoReply):
		return http.StatusGatewayTimeout
	case protocol.IsDispatchError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("api: failed to write response")
	}
}
