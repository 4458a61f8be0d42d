package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/YannKr/countersignal/internal/db"
	"github.com/YannKr/countersignal/internal/engine"
	"github.com/YannKr/countersignal/internal/model"
)

const (
	maxRequestBody   = 1 << 20
	defaultHitsLimit = 100
	maxHitsLimit     = 1000
)

type apiCampaign struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Config      model.CampaignConfig `json:"config"`
	TokenCount  int                  `json:"token_count"`
	ReadyCount  int                  `json:"ready_count"`
	FailedCount int                  `json:"failed_count"`
	HitCount    int                  `json:"hit_count"`
	LastHitAt   *string              `json:"last_hit_at"`
	CreatedAt   string               `json:"created_at"`
}

type apiToken struct {
	Token        string `json:"token"`
	Format       string `json:"format"`
	Technique    string `json:"technique"`
	PayloadStyle string `json:"payload_style"`
	PayloadType  string `json:"payload_type"`
	CallbackURL  string `json:"callback_url"`
	State        string `json:"state"`
	SHA256       string `json:"sha256,omitempty"`
	SizeBytes    int64  `json:"size_bytes,omitempty"`
	Error        string `json:"error,omitempty"`
	ArtifactURL  string `json:"artifact_url,omitempty"`
	HitCount     int    `json:"hit_count"`
}

type apiHit struct {
	ID         string            `json:"id"`
	Token      string            `json:"token"`
	CampaignID string            `json:"campaign_id"`
	ReceivedAt string            `json:"received_at"`
	Method     string            `json:"method"`
	SourceIP   string            `json:"source_ip"`
	UserAgent  string            `json:"user_agent"`
	Confidence string            `json:"confidence"`
	Signals    []string          `json:"signals"`
	Rationale  string            `json:"rationale"`
	Metadata   model.HitMetadata `json:"metadata"`
}

func summaryToAPI(s *model.CampaignSummary) apiCampaign {
	ac := apiCampaign{
		ID:          s.ID,
		Name:        s.Name,
		Config:      s.Config,
		TokenCount:  s.TokenCount,
		ReadyCount:  s.ReadyCount,
		FailedCount: s.FailedCount,
		HitCount:    s.HitCount,
		CreatedAt:   s.CreatedAt.UTC().Format(time.RFC3339),
	}
	if s.LastHitAt != nil {
		v := s.LastHitAt.UTC().Format(time.RFC3339)
		ac.LastHitAt = &v
	}
	return ac
}

func tokenToAPI(t *model.Token, hits int) apiToken {
	at := apiToken{
		Token:        t.Value,
		Format:       string(t.Format),
		Technique:    string(t.Technique),
		PayloadStyle: string(t.PayloadStyle),
		PayloadType:  string(t.PayloadType),
		CallbackURL:  t.CallbackURL,
		State:        t.State,
		SHA256:       t.SHA256,
		SizeBytes:    t.SizeBytes,
		Error:        t.Error,
		HitCount:     hits,
	}
	if t.State == model.TokenReady {
		at.ArtifactURL = "/api/v1/campaigns/" + t.CampaignID + "/artifacts/" + t.Value
	}
	return at
}

func hitToAPI(h *model.Hit) apiHit {
	signals := h.Signals
	if signals == nil {
		signals = []string{}
	}
	return apiHit{
		ID:         h.ID,
		Token:      h.Token,
		CampaignID: h.CampaignID,
		ReceivedAt: h.ReceivedAt.UTC().Format(time.RFC3339Nano),
		Method:     h.Method,
		SourceIP:   h.SourceIP,
		UserAgent:  h.UserAgent,
		Confidence: string(h.Confidence),
		Signals:    signals,
		Rationale:  h.Rationale,
		Metadata:   h.RawMetadata,
	}
}

// APICampaignCreate runs a generate request and answers with its manifest.
func (h *Handler) APICampaignCreate(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		renderJSONError(w, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body")
		return
	}

	if disk := h.Disk.Get(); disk.Low(h.Cfg.MinFreeDiskPct) {
		slog.Warn("generate refused, disk nearly full", "pct_free", disk.PctFree())
		renderJSONError(w, http.StatusInsufficientStorage, "DISK_FULL", "not enough free disk space to generate artifacts")
		return
	}

	// The campaign is stored before the batch runs; a client hanging up
	// must not turn the rest of the batch into failures.
	m, err := h.Engine.Generate(context.WithoutCancel(r.Context()), req)
	if err != nil {
		var verr *engine.ValidationError
		switch {
		case errors.As(err, &verr):
			renderProblems(w, verr.Problems)
		case errors.Is(err, db.ErrTokenCollision):
			slog.Error("token collision, request rejected", "error", err)
			renderJSONError(w, http.StatusInternalServerError, "TOKEN_COLLISION", "token collision, nothing was stored")
		default:
			slog.Error("generate campaign", "error", err)
			renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not generate campaign")
		}
		return
	}
	renderJSON(w, http.StatusCreated, m)
}

func (h *Handler) APICampaignList(w http.ResponseWriter, r *http.Request) {
	summaries, err := db.ListCampaigns(r.Context(), h.DB)
	if err != nil {
		slog.Error("list campaigns", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not list campaigns")
		return
	}
	out := make([]apiCampaign, 0, len(summaries))
	for i := range summaries {
		out = append(out, summaryToAPI(&summaries[i]))
	}
	renderJSON(w, http.StatusOK, map[string]interface{}{"campaigns": out})
}

// campaignFromURL writes a 404 and returns nil when {id} names no campaign.
func (h *Handler) campaignFromURL(w http.ResponseWriter, r *http.Request) *model.Campaign {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		renderJSONError(w, http.StatusNotFound, "NOT_FOUND", "campaign not found")
		return nil
	}
	c, err := db.GetCampaign(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("get campaign", "campaign", id, "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not load campaign")
		return nil
	}
	if c == nil {
		renderJSONError(w, http.StatusNotFound, "NOT_FOUND", "campaign not found")
		return nil
	}
	return c
}

func (h *Handler) APICampaignGet(w http.ResponseWriter, r *http.Request) {
	c := h.campaignFromURL(w, r)
	if c == nil {
		return
	}
	tokens, err := db.ListTokensByCampaign(r.Context(), h.DB, c.ID)
	if err != nil {
		slog.Error("list tokens", "campaign", c.ID, "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not load tokens")
		return
	}

	summary := model.CampaignSummary{Campaign: *c, TokenCount: len(tokens)}
	apiTokens := make([]apiToken, 0, len(tokens))
	for i := range tokens {
		t := &tokens[i]
		hits, err := db.CountHitsByToken(r.Context(), h.DB, t.Value)
		if err != nil {
			slog.Error("count hits", "token", t.Value, "error", err)
			renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not count hits")
			return
		}
		switch t.State {
		case model.TokenReady:
			summary.ReadyCount++
		case model.TokenFailed:
			summary.FailedCount++
		}
		summary.HitCount += hits
		apiTokens = append(apiTokens, tokenToAPI(t, hits))
	}

	renderJSON(w, http.StatusOK, map[string]interface{}{
		"campaign": summaryToAPI(&summary),
		"tokens":   apiTokens,
	})
}

// APICampaignDelete drops the campaign, its tokens and hits, and its
// artifact directory. Callbacks for its tokens become unknown-token lookups.
func (h *Handler) APICampaignDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		renderJSONError(w, http.StatusNotFound, "NOT_FOUND", "campaign not found")
		return
	}
	found, err := db.DeleteCampaign(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("delete campaign", "campaign", id, "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not delete campaign")
		return
	}
	if !found {
		renderJSONError(w, http.StatusNotFound, "NOT_FOUND", "campaign not found")
		return
	}
	if err := os.RemoveAll(filepath.Join(h.Cfg.DataDir, "artifacts", id)); err != nil {
		slog.Warn("remove campaign artifacts", "campaign", id, "error", err)
	}
	slog.Info("campaign deleted", "campaign", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) APICampaignHits(w http.ResponseWriter, r *http.Request) {
	c := h.campaignFromURL(w, r)
	if c == nil {
		return
	}
	limit := defaultHitsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHitsLimit {
			renderJSONError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	confidence := model.Confidence(strings.ToUpper(r.URL.Query().Get("min_confidence")))

	hits, err := db.ListHits(r.Context(), h.DB, c.ID, limit)
	if err != nil {
		slog.Error("list hits", "campaign", c.ID, "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not list hits")
		return
	}
	out := make([]apiHit, 0, len(hits))
	for i := range hits {
		if confidence != "" && !hits[i].Confidence.AtLeast(confidence) {
			continue
		}
		out = append(out, hitToAPI(&hits[i]))
	}
	renderJSON(w, http.StatusOK, map[string]interface{}{"campaign_id": c.ID, "hits": out})
}

// APIArtifactDownload serves the generated document for one token.
func (h *Handler) APIArtifactDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := db.GetToken(r.Context(), h.DB, chi.URLParam(r, "token"))
	if err != nil {
		slog.Error("get token", "error", err)
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not load token")
		return
	}
	if t == nil || t.CampaignID != id {
		renderJSONError(w, http.StatusNotFound, "NOT_FOUND", "artifact not found")
		return
	}
	if t.State != model.TokenReady || t.ArtifactPath == "" {
		renderJSONError(w, http.StatusConflict, "NOT_READY", "artifact was not generated: "+t.Error)
		return
	}

	path := filepath.Join(h.Cfg.DataDir, filepath.FromSlash(t.ArtifactPath))
	f, err := os.Open(path)
	if err != nil {
		slog.Error("open artifact", "token", t.Value, "path", path, "error", err)
		renderJSONError(w, http.StatusNotFound, "NOT_FOUND", "artifact file missing")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not stat artifact")
		return
	}

	name := filepath.Base(path)
	ctype := mime.TypeByExtension(filepath.Ext(name))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	if t.SHA256 != "" {
		w.Header().Set("X-Content-SHA256", t.SHA256)
	}
	http.ServeContent(w, r, name, info.ModTime(), f)
}
