package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/YannKr/countersignal/internal/db"
	"github.com/YannKr/countersignal/internal/diskstat"
	"github.com/YannKr/countersignal/internal/extract"
	"github.com/YannKr/countersignal/internal/model"
	"github.com/YannKr/countersignal/internal/stats"
)

const maxExtractBody = 32 << 20

type apiTechnique struct {
	Format      string `json:"format"`
	Technique   string `json:"technique"`
	Description string `json:"description"`
}

type apiRejected struct {
	Token      string `json:"token"`
	SourceIP   string `json:"source_ip"`
	UserAgent  string `json:"user_agent"`
	Method     string `json:"method"`
	ReceivedAt string `json:"received_at"`
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.DB.PingContext(r.Context()); err != nil {
		renderJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	renderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// APITechniques lists the registry along with the payload vocabulary.
func (h *Handler) APITechniques(w http.ResponseWriter, r *http.Request) {
	entries := h.Registry.Entries()
	out := make([]apiTechnique, 0, len(entries))
	for _, e := range entries {
		out = append(out, apiTechnique{
			Format:      string(e.Format),
			Technique:   string(e.Technique),
			Description: e.Description,
		})
	}
	dangerous := make([]model.PayloadType, 0, len(model.PayloadTypes))
	for _, t := range model.PayloadTypes {
		if t.Dangerous() {
			dangerous = append(dangerous, t)
		}
	}
	renderJSON(w, http.StatusOK, map[string]interface{}{
		"formats":         h.Registry.Formats(),
		"techniques":      out,
		"payload_styles":  model.PayloadStyles,
		"payload_types":   model.PayloadTypes,
		"dangerous_types": dangerous,
	})
}

// APIExtract runs the text extraction an ingesting agent would see over an
// uploaded document.
func (h *Handler) APIExtract(w http.ResponseWriter, r *http.Request) {
	format := model.Format(r.URL.Query().Get("format"))
	if format == "" {
		renderJSONError(w, http.StatusBadRequest, "MISSING_FORMAT", "format query parameter is required")
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxExtractBody))
	if err != nil {
		renderJSONError(w, http.StatusRequestEntityTooLarge, "TOO_LARGE", "document exceeds 32 MiB")
		return
	}
	if len(data) == 0 {
		renderJSONError(w, http.StatusBadRequest, "EMPTY_BODY", "request body is empty")
		return
	}

	text, err := extract.Extract(format, data)
	if err != nil {
		if errors.Is(err, extract.ErrUnsupported) {
			renderJSONError(w, http.StatusBadRequest, "UNSUPPORTED_FORMAT", err.Error())
			return
		}
		renderJSONError(w, http.StatusUnprocessableEntity, "EXTRACT_FAILED", err.Error())
		return
	}
	renderJSON(w, http.StatusOK, map[string]interface{}{
		"format": format,
		"bytes":  len(data),
		"text":   text,
	})
}

func (h *Handler) APIStats(w http.ResponseWriter, r *http.Request) {
	s, err := stats.Collect(r.Context(), h.DB, r.URL.Query().Get("campaign"), h.Backlog)
	if err != nil {
		slog.Error("collect stats", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not collect stats")
		return
	}
	renderJSON(w, http.StatusOK, struct {
		*stats.Snapshot
		Disk *diskstat.Stats `json:"disk,omitempty"`
	}{s, h.diskSnapshot()})
}

func (h *Handler) diskSnapshot() *diskstat.Stats {
	if h.Disk == nil {
		return nil
	}
	d := h.Disk.Get()
	return &d
}

func (h *Handler) APIRejected(w http.ResponseWriter, r *http.Request) {
	limit := defaultHitsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHitsLimit {
			renderJSONError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	lookups, err := db.ListRejectedLookups(r.Context(), h.DB, limit)
	if err != nil {
		slog.Error("list rejected lookups", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not list rejected lookups")
		return
	}
	out := make([]apiRejected, 0, len(lookups))
	for _, l := range lookups {
		out = append(out, apiRejected{
			Token:      l.Token,
			SourceIP:   l.SourceIP,
			UserAgent:  l.UserAgent,
			Method:     l.Method,
			ReceivedAt: l.ReceivedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	renderJSON(w, http.StatusOK, map[string]interface{}{"rejected": out})
}

// APIReset wipes every campaign, token, hit and rejected lookup along with
// the generated artifacts.
func (h *Handler) APIReset(w http.ResponseWriter, r *http.Request) {
	if err := db.Reset(r.Context(), h.DB); err != nil {
		slog.Error("reset store", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not reset store")
		return
	}
	if err := os.RemoveAll(filepath.Join(h.Cfg.DataDir, "artifacts")); err != nil {
		slog.Warn("remove artifacts", "error", err)
	}
	slog.Warn("store reset by operator", "remote", clientIP(r))
	w.WriteHeader(http.StatusNoContent)
}
