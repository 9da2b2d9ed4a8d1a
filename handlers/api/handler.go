package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/nijaru/reelflow/errors"
	"github.com/nijaru/reelflow/middleware"
	"github.com/sirupsen/logrus"
)

const maxJSONBody = 64 * 1024

// Response represents a standardized API response
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, code int, payload interface{}) {
	response := Response{
		Success:   code >= 200 && code < 300,
		Data:      payload,
		RequestID: middleware.GetRequestID(r.Context()),
		Timestamp: time.Now().UTC(),
	}

	if !response.Success && payload != nil {
		if err, ok := payload.(string); ok {
			response.Error = err
			response.Data = nil
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		middleware.GetLogger(r.Context()).WithError(err).Error("Failed to encode response")
	}
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	msg := "Internal server error"

	var appErr *errors.AppError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &appErr):
		code = appErr.Code
		msg = appErr.Message
	case errors.As(err, &tooLarge):
		code = http.StatusRequestEntityTooLarge
		msg = "Request body too large"
	}

	entry := middleware.GetLogger(r.Context()).WithFields(logrus.Fields{
		"error":  err,
		"status": code,
	})
	if code >= 500 {
		entry.Error("Request error")
	} else {
		entry.Warn("Request rejected")
	}

	respondJSON(w, r, code, msg)
}

func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return errors.InvalidInput("readJSON", err, "Invalid JSON format")
	}
	return nil
}
