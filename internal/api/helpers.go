package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rendis/blockflow/pkg/schema"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error      string                   `json:"error"`
	Code       string                   `json:"code,omitempty"`
	Label      string                   `json:"label,omitempty"`
	Details    map[string]any           `json:"details,omitempty"`
	Validation *schema.ValidationResult `json:"validation,omitempty"`
}

// writeError maps err to a status code and writes it as JSON.
func writeError(w http.ResponseWriter, err error) {
	writeErrorWith(w, err, nil)
}

func writeErrorWith(w http.ResponseWriter, err error, result *schema.ValidationResult) {
	body := errorBody{Error: err.Error(), Validation: result}
	var bfErr *schema.BlockflowError
	if errors.As(err, &bfErr) {
		body.Error = bfErr.Message
		body.Code = bfErr.Code
		body.Label = bfErr.Label
		if result == nil {
			body.Details = bfErr.Details
		}
	}
	writeJSON(w, statusFor(err), body)
}

func statusFor(err error) int {
	var bfErr *schema.BlockflowError
	if !errors.As(err, &bfErr) {
		return http.StatusInternalServerError
	}
	switch bfErr.Code {
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeConflict:
		return http.StatusConflict
	case schema.ErrCodeValidation, schema.ErrCodeCycleDetected:
		return http.StatusUnprocessableEntity
	case schema.ErrCodeMalformedField, schema.ErrCodeUnknownBlockType, schema.ErrCodeInvalidGraph:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// decodeJSON reads a size-capped JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return schema.NewErrorf(schema.ErrCodeMalformedField, "invalid JSON: %v", err).WithCause(err)
	}
	return nil
}

// readDefinition parses a JSON or YAML definition from the request body.
func readDefinition(w http.ResponseWriter, r *http.Request) (*schema.Definition, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	def, err := schema.ParseAny(data)
	if err != nil {
		var bfErr *schema.BlockflowError
		if errors.As(err, &bfErr) {
			return nil, err
		}
		return nil, schema.NewErrorf(schema.ErrCodeMalformedField, "invalid definition: %v", err).WithCause(err)
	}
	return def, nil
}

// queryInt extracts an integer query param with a default value.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
