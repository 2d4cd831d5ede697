// Package httpapi is the HTTP edge of the intake service. Handlers stay
// thin: they authenticate, decode, delegate to the session registry and
// the submission reconciler, and translate domain errors to statuses.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/karsell/intake/internal/logging"
	"github.com/karsell/intake/internal/models"
	"github.com/karsell/intake/internal/session"
	"github.com/karsell/intake/internal/shared"
	"github.com/karsell/intake/internal/storage/blob"
	"github.com/karsell/intake/internal/storage/valuationstash"
	"github.com/karsell/intake/internal/submit"
)

const maxUploadBytes = 32 << 20

// Uploader is the slice of the blob store the photo endpoint needs.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string, overwrite bool) error
	PublicURL(key string) string
}

// Handler serves the intake session API.
type Handler struct {
	registry   *session.Registry
	reconciler *submit.Reconciler
	stash      valuationstash.Stash
	uploader   Uploader
	log        logging.Logger
}

// NewHandler wires the handler. uploader may be nil when no blob store
// is configured; the photo endpoint then rejects uploads.
func NewHandler(registry *session.Registry, reconciler *submit.Reconciler,
	stash valuationstash.Stash, uploader Uploader, log logging.Logger) *Handler {
	return &Handler{
		registry:   registry,
		reconciler: reconciler,
		stash:      stash,
		uploader:   uploader,
		log:        log,
	}
}

// Register mounts the session endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Post("/sessions", h.openSession)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.getSession)
		r.Patch("/", h.updateSession)
		r.Post("/save", h.saveNow)
		r.Post("/pause", h.pause)
		r.Post("/resume", h.resume)
		r.Put("/valuation", h.putValuation)
		r.Post("/photos", h.uploadPhoto)
		r.Post("/submit", h.submitListing)
	})
}

func (h *Handler) openSession(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, shared.NewFieldError("body", "malformed JSON", ""))
			return
		}
	}

	s, err := h.registry.Open(r.Context(), sellerID(r.Context()), req.SessionID, req.DraftID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(s.ID, s.Engine.Snapshot()))
}

// owned looks the session up and checks it belongs to the caller.
func (h *Handler) owned(r *http.Request) (*session.Session, error) {
	s, err := h.registry.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		return nil, err
	}
	if s.SellerID != sellerID(r.Context()) {
		return nil, shared.ErrorUnauthorized
	}
	return s, nil
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.owned(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(s.ID, s.Engine.Snapshot()))
}

func (h *Handler) updateSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.owned(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, shared.NewFieldError("body", "malformed JSON", ""))
		return
	}

	s.Engine.Apply(r.Context(), req.apply)
	writeJSON(w, http.StatusOK, newSessionResponse(s.ID, s.Engine.Snapshot()))
}

func (h *Handler) saveNow(w http.ResponseWriter, r *http.Request) {
	s, err := h.owned(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.Engine.SaveNow(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(s.ID, s.Engine.Snapshot()))
}

func (h *Handler) pause(w http.ResponseWriter, r *http.Request) {
	s, err := h.owned(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.Engine.Pause()
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	s, err := h.owned(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.Engine.Resume()
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}

// putValuation deposits the raw payload of the external valuation step.
// The body is kept verbatim; price extraction happens at submit time.
func (h *Handler) putValuation(w http.ResponseWriter, r *http.Request) {
	s, err := h.owned(r)
	if err != nil {
		writeError(w, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil || !json.Valid(body) {
		writeError(w, shared.NewFieldError("body", "valuation payload must be valid JSON", ""))
		return
	}
	if err := h.stash.Put(r.Context(), s.ID, body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}

func (h *Handler) uploadPhoto(w http.ResponseWriter, r *http.Request) {
	s, err := h.owned(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.uploader == nil {
		writeError(w, shared.ErrorConfiguration)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, shared.NewFieldError("photo", "malformed multipart body", ""))
		return
	}
	file, header, err := r.FormFile("photo")
	if err != nil {
		writeError(w, shared.NewFieldError("photo", "missing file part", ""))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeError(w, err)
		return
	}

	category := r.FormValue("category")
	if category == "" {
		category = "photos"
	}

	key := blob.ObjectPath(s.ID, category, header.Filename)
	if err := h.uploader.Upload(r.Context(), key, data, header.Header.Get("Content-Type"), false); err != nil {
		writeError(w, err)
		return
	}

	ref := models.FileRef{Name: header.Filename, Size: header.Size, Path: key}
	s.Engine.Apply(r.Context(), func(f *models.FormSnapshot) {
		f.Photos = append(f.Photos, ref)
	})

	writeJSON(w, http.StatusCreated, uploadResponse{
		Success: true,
		Path:    key,
		URL:     h.uploader.PublicURL(key),
	})
}

func (h *Handler) submitListing(w http.ResponseWriter, r *http.Request) {
	s, err := h.owned(r)
	if err != nil {
		writeError(w, err)
		return
	}

	// autosaves stay out of the way while the reconciler runs; the
	// explicit flush also awaits any in-flight save, so the snapshot
	// below carries the bound draft ID
	s.Engine.Pause()
	if err := s.Engine.SaveNow(r.Context()); err != nil {
		s.Engine.Resume()
		writeError(w, err)
		return
	}
	snap := s.Engine.Snapshot()

	res, err := h.reconciler.Submit(r.Context(), s.ID, snap, s.SellerID, snap.DraftID)
	if err != nil {
		s.Engine.Resume()
		h.log.Warn(r.Context(), "submission failed", "session", s.ID, "error", err)
		writeError(w, err)
		return
	}

	h.registry.Discard(r.Context(), s.ID)
	writeJSON(w, http.StatusCreated, submitResponse{Success: true, ListingID: res.ListingID})
}
