package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"imageforge/internal/imaging"
	"imageforge/internal/inference"
	"imageforge/internal/models"
	"imageforge/internal/repositories"
	"imageforge/internal/services"
	"imageforge/internal/styles"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("encode response", zap.Error(err))
	}
}

// writeError maps domain errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		authErr      *inference.AuthenticationError
		rateErr      *inference.RateLimitError
		paramErr     *inference.InvalidParameterError
		transientErr *inference.TransientUnavailableError
		styleErr     *styles.UnknownStyleError
		notFoundErr  *repositories.NotFoundError
		jobErr       *services.JobNotFoundError
		corruptErr   *imaging.CorruptImageError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &authErr):
		status = http.StatusUnauthorized
	case errors.As(err, &rateErr):
		status = http.StatusTooManyRequests
	case errors.As(err, &paramErr), errors.As(err, &styleErr):
		status = http.StatusBadRequest
	case errors.As(err, &notFoundErr), errors.As(err, &jobErr):
		status = http.StatusNotFound
	case errors.As(err, &transientErr):
		status = http.StatusServiceUnavailable
	case errors.As(err, &corruptErr):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

type generateResponse struct {
	JobID string `json:"job_id"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req models.GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	id, err := s.svc.Generation.StartJob(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, generateResponse{JobID: id})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.Generation.JobStatus(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Generation.CancelJob(r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

type stylesResponse struct {
	Default string               `json:"default"`
	Presets []models.StylePreset `json:"presets"`
}

func (s *Server) handleStyles(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, stylesResponse{
		Default: s.svc.Styles.Default(),
		Presets: s.svc.Styles.Presets(),
	})
}

type galleryListResponse struct {
	Entries []models.GalleryEntry `json:"entries"`
	Total   int64                 `json:"total"`
}

func (s *Server) handleGalleryList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	entries, err := s.svc.Gallery.List(limit, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	total, err := s.svc.Gallery.Count()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []models.GalleryEntry{}
	}
	s.writeJSON(w, http.StatusOK, galleryListResponse{Entries: entries, Total: total})
}

func (s *Server) handleGalleryGet(w http.ResponseWriter, r *http.Request) {
	entry, err := s.svc.Gallery.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleGalleryImage(w http.ResponseWriter, r *http.Request) {
	s.serveImage(w, r, s.svc.Gallery.Image)
}

func (s *Server) handleGalleryThumbnail(w http.ResponseWriter, r *http.Request) {
	s.serveImage(w, r, s.svc.Gallery.Thumbnail)
}

func (s *Server) serveImage(w http.ResponseWriter, r *http.Request, read func(string) ([]byte, error)) {
	data, err := read(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.Write(data)
}

func (s *Server) handleGalleryDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Gallery.Delete(r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleGalleryArchive(w http.ResponseWriter, r *http.Request) {
	data, err := s.svc.Gallery.Archive()
	if err != nil {
		s.writeError(w, err)
		return
	}
	name := fmt.Sprintf("gallery_%s.zip", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Write(data)
}

type keyRequest struct {
	APIKey string `json:"api_key"`
}

func (s *Server) handleKeyStore(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if err := s.svc.Keys.StoreApiKey(req.APIKey); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "stored"})
}

func (s *Server) handleKeyDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Keys.DeleteApiKey(); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleKeyStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]bool{"configured": s.svc.Keys.HasKey()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
