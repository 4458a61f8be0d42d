package handler

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/YannKr/countersignal/internal/config"
	"github.com/YannKr/countersignal/internal/diskstat"
	"github.com/YannKr/countersignal/internal/engine"
	"github.com/YannKr/countersignal/internal/sse"
	"github.com/YannKr/countersignal/internal/stats"
	"github.com/YannKr/countersignal/internal/technique"
)

type Handler struct {
	DB       *sql.DB
	Cfg      *config.Config
	Engine   *engine.Engine
	Registry *technique.Registry
	SSE      *sse.Hub
	Backlog  stats.Backlog
	Disk     *diskstat.Cache
}

func New(database *sql.DB, cfg *config.Config, eng *engine.Engine, registry *technique.Registry, sseHub *sse.Hub, backlog stats.Backlog) *Handler {
	if cfg.OperatorKeyHash == "" {
		slog.Warn("OPERATOR_KEY_HASH is not set, the operator API is unauthenticated")
	}
	return &Handler{
		DB:       database,
		Cfg:      cfg,
		Engine:   eng,
		Registry: registry,
		SSE:      sseHub,
		Backlog:  backlog,
	}
}

type apiError struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Problems []string `json:"problems,omitempty"`
}

func renderJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode json response", "error", err)
	}
}

func renderJSONError(w http.ResponseWriter, status int, code, msg string) {
	renderJSON(w, status, map[string]apiError{"error": {Code: code, Message: msg}})
}

func renderProblems(w http.ResponseWriter, problems []string) {
	renderJSON(w, http.StatusUnprocessableEntity, map[string]apiError{"error": {
		Code:     "VALIDATION_FAILED",
		Message:  "the generate request is invalid",
		Problems: problems,
	}})
}
