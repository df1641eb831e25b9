package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/lychee-technology/assetio"
	"github.com/lychee-technology/assetio/internal/dispatch"
	"go.uber.org/zap"
)

// parseErrorPolicy accepts collect (the default) or throw. Callbacks cannot
// cross a request, so stream is rejected.
func parseErrorPolicy(s string) (dispatch.Mode, error) {
	mode, err := dispatch.ParseMode(s)
	if err != nil {
		return mode, err
	}
	if mode == dispatch.StreamViaCallbacks {
		return mode, fmt.Errorf("error policy %q is not supported over http", s)
	}
	return mode, nil
}

// closeValues releases values that will not be encoded, such as pagers
// after an earlier element failed to encode.
func closeValues[T any](values []T) {
	for _, v := range values {
		if c, ok := any(v).(io.Closer); ok {
			if err := c.Close(); err != nil {
				zap.S().Debugw("failed to close unencoded value", "error", err)
			}
		}
	}
}

// parseAccess defaults to read
func parseAccess(s string, fallback assetio.Access) (assetio.Access, error) {
	if s == "" {
		return fallback, nil
	}
	return assetio.ParseAccess(s)
}

func parseRefs(raw []string) []assetio.EntityReference {
	return assetio.EntityReferences(raw...)
}

func parseTraitsData(raw []map[string]map[string]any) ([]*assetio.TraitsData, error) {
	out := make([]*assetio.TraitsData, len(raw))
	for i, m := range raw {
		data, err := assetio.TraitsDataFromMap(m)
		if err != nil {
			return nil, fmt.Errorf("traits data %d: %w", i, err)
		}
		out[i] = data
	}
	return out, nil
}

func parseTraitSets(raw [][]string) []assetio.TraitSet {
	out := make([]assetio.TraitSet, len(raw))
	for i, ids := range raw {
		out[i] = assetio.NewTraitSet(ids...)
	}
	return out
}

// APIResponse is the standard error response format
type APIResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	// Set when a throw policy request fails on an element
	Index *int                          `json:"index,omitempty"`
	Kind  assetio.BatchElementErrorKind `json:"kind,omitempty"`
}

// elementResult is one entry of a collect policy response
type elementResult struct {
	Index int                        `json:"index"`
	Value any                        `json:"value,omitempty"`
	Error *assetio.BatchElementError `json:"error,omitempty"`
}

// writeJSON writes JSON response to http.ResponseWriter
func writeJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, statusCode int, message string) error {
	return writeJSON(w, statusCode, APIResponse{
		Success: false,
		Error:   message,
	})
}

// writeSuccess writes a success response
func writeSuccess(w http.ResponseWriter, statusCode int, data any) error {
	return writeJSON(w, statusCode, data)
}

// writeFailure maps a Manager error to a response. Element errors become 422
// with their index and kind; call-level errors map by type.
func writeFailure(w http.ResponseWriter, err error) error {
	if berr, ok := assetio.AsBatchElementError(err); ok {
		index := berr.Index
		return writeJSON(w, http.StatusUnprocessableEntity, APIResponse{
			Success: false,
			Error:   berr.Message,
			Index:   &index,
			Kind:    berr.Kind,
		})
	}

	resp := APIResponse{Success: false, Error: err.Error()}
	status := http.StatusInternalServerError
	var aerr *assetio.Error
	if errors.As(err, &aerr) {
		resp.Type = string(aerr.Type)
		resp.Code = aerr.Code
		status = statusForErrorType(aerr.Type)
	}
	return writeJSON(w, status, resp)
}

func statusForErrorType(t assetio.ErrorType) int {
	switch t {
	case assetio.ErrorTypeInputValidation:
		return http.StatusBadRequest
	case assetio.ErrorTypeUnsupportedCapability, assetio.ErrorTypeNotImplemented:
		return http.StatusNotImplemented
	case assetio.ErrorTypeNotInitialized:
		return http.StatusServiceUnavailable
	case assetio.ErrorTypeBackend:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// readJSONBody reads and decodes JSON from request body
func readJSONBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
