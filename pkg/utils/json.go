// Package utils holds HTTP reply helpers shared by the handlers.
package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

type Body map[string]any

const maxBodyBytes = 1 << 20

func ReplyJSON(w http.ResponseWriter, status int, body Body) error {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

func ReplyError(w http.ResponseWriter, status int, msg string) {
	_ = ReplyJSON(w, status, Body{
		"error": msg,
	})
}

func ReplyBadRequest(w http.ResponseWriter, msg string) {
	ReplyError(w, http.StatusBadRequest, msg)
}

func ReplyNotFound(w http.ResponseWriter, msg string) {
	ReplyError(w, http.StatusNotFound, msg)
}

func ReplyConflict(w http.ResponseWriter, msg string) {
	ReplyError(w, http.StatusConflict, msg)
}

func ReplyInternalServerError(w http.ResponseWriter, msg string) {
	ReplyError(w, http.StatusInternalServerError, msg)
}

func ReplyMethodNotAllowed(w http.ResponseWriter) {
	ReplyError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// DecodeJSON reads a single JSON object from r into v, rejecting unknown
// fields and trailing data.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if dec.More() {
		return errors.New("invalid request body: trailing data")
	}
	return nil
}
