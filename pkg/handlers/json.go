// Package handlers contains HTTP handler implementations. This file adds the
// small helpers shared by all endpoints: strict JSON request decoding and the
// envelope-based response writers.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"SongRequest-Go/pkg/outcome"
)

// maxBodyBytes caps request bodies; nothing this API accepts comes close.
const maxBodyBytes = 1 << 20

// decodeJSON reads exactly one JSON document from the request body into v.
// Unknown fields are rejected so a misspelled field fails loudly instead of
// being silently dropped.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	switch err := dec.Decode(v); {
	case errors.Is(err, io.EOF):
		return errors.New("missing request body")
	case err != nil:
		return err
	}
	if dec.More() {
		return errors.New("request body holds more than one JSON document")
	}
	return nil
}

// respondOK writes a success envelope around v.
func respondOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(outcome.OK(v)); err != nil {
		log.WithError(err).Error("encode response")
	}
}

// respondError writes an error envelope with an HTTP status derived from the
// error's tag.
func respondError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusForTag(outcome.TagOf(err)))
	if encErr := json.NewEncoder(w).Encode(outcome.Fail(err)); encErr != nil {
		log.WithError(encErr).Error("encode error response")
	}
}

// statusForTag maps the stable error tags onto HTTP status codes. Unknown
// tags report as internal errors.
func statusForTag(tag string) int {
	switch tag {
	case outcome.TagInvalidRequest, outcome.TagTokenParse:
		return http.StatusBadRequest
	case outcome.TagSongRequestNotFound:
		return http.StatusNotFound
	case outcome.TagNoRefreshToken, outcome.TagStreamOfflineNoTok:
		return http.StatusConflict
	case outcome.TagTokenRefreshNetwork, outcome.TagTokenRefreshParse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
