// Package ticketapi exposes the triage service over HTTP.
package ticketapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/sift/internal/triage"
)

// TriageService defines the business operations ticketapi needs.
type TriageService interface {
	Triage(ctx context.Context, description string) (*triage.Result, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger      log.Logger
	svc         TriageService
	environment string
}

type triageRequest struct {
	Description string `json:"description"`
}

type healthResponse struct {
	Status      string `json:"status"`
	Environment string `json:"environment"`
}

// New creates a new API handler.
func New(logger log.Logger, svc TriageService, environment string) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	return &API{
		logger:      logger,
		svc:         svc,
		environment: environment,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/triage", a.handleTriage)
		r.Get("/health", a.handleHealth)
	})
}

func (a *API) handleTriage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	span := trace.SpanFromContext(ctx)

	var req triageRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	// the body must hold exactly one JSON value
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	if err := triage.ValidateDescription(req.Description); err != nil {
		span.SetAttributes(attribute.Bool("sift.triage.rejected", true))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	result, err := a.svc.Triage(ctx, req.Description)
	if err != nil {
		var verr *triage.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusUnprocessableEntity, verr.Error())
			return
		}
		a.logger.Error(ctx, err, "triage failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	span.SetAttributes(
		attribute.String("sift.triage.category", string(result.Category)),
		attribute.String("sift.triage.severity", string(result.Severity)),
		attribute.Bool("sift.triage.known_issue", result.KnownIssue),
	)

	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Environment: a.environment})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
