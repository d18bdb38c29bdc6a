package server

import (
	"encoding/json"
	"net/http"

	"cantina/internal/apperr"
	"cantina/pkg/models"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// respondJSON writes a JSON response body.
func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

// respondError maps typed engine errors to status codes and logs them with
// request context.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperr.IsNotFound(err):
		status = http.StatusNotFound
	case apperr.IsValidation(err):
		status = http.StatusBadRequest
	case apperr.IsConflict(err):
		status = http.StatusConflict
	}

	logEntry := s.logger.WithFields(logrus.Fields{
		"method":      r.Method,
		"path":        r.URL.Path,
		"status_code": status,
	}).WithError(err)

	if status >= 500 {
		logEntry.Error("Server error")
	} else {
		logEntry.Warn("Client error")
	}

	s.respondJSON(w, status, map[string]interface{}{
		"error":   err.Error(),
		"code":    status,
		"success": false,
	})
}

// decodeRequest parses a JSON body into dst and runs struct validation.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.respondError(w, r, apperr.Validation("invalid request body: %v", err))
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			s.respondError(w, r, apperr.Validation("field %s failed on %s", fe.Field(), fe.Tag()))
			return false
		}
		s.respondError(w, r, apperr.Validation("invalid request: %v", err))
		return false
	}
	return true
}

// resolveCollection maps the slug path segment to a collection reference.
// The reserved "all" slug resolves to the virtual collection.
func (s *Server) resolveCollection(w http.ResponseWriter, r *http.Request) (models.CollectionRef, bool) {
	ref, err := s.collections.ResolveSlug(r.PathValue("slug"))
	if err != nil {
		s.respondError(w, r, err)
		return models.CollectionRef{}, false
	}
	return ref, true
}
