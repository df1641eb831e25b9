package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lychee-technology/assetio"
	"github.com/lychee-technology/assetio/internal/dispatch"
)

func TestParseErrorPolicy(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		want        dispatch.Mode
		expectError bool
	}{
		{name: "empty defaults to collect", input: "", want: dispatch.CollectAsResults},
		{name: "collect", input: "collect", want: dispatch.CollectAsResults},
		{name: "throw is case insensitive", input: " THROW ", want: dispatch.ThrowOnFirstError},
		{name: "stream is not served over http", input: "stream", expectError: true},
		{name: "unknown", input: "ignore", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseErrorPolicy(tt.input)

			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error but got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected policy %s, got %s", tt.want, got)
			}
		})
	}
}

func TestParseAccess(t *testing.T) {
	got, err := parseAccess("", assetio.AccessWrite)
	if err != nil || got != assetio.AccessWrite {
		t.Fatalf("expected fallback access, got %v %v", got, err)
	}
	got, err = parseAccess("createRelated", assetio.AccessRead)
	if err != nil || got != assetio.AccessCreateRelated {
		t.Fatalf("expected createRelated, got %v %v", got, err)
	}
	if _, err := parseAccess("sideways", assetio.AccessRead); err == nil {
		t.Fatalf("expected error for unknown access")
	}
}

func TestWriteFailure(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   assetio.BatchElementErrorKind
		wantType   string
	}{
		{
			name:       "element error",
			err:        &assetio.BatchElementError{Index: 2, Kind: assetio.KindEntityNotFound, Message: "gone"},
			wantStatus: http.StatusUnprocessableEntity,
			wantKind:   assetio.KindEntityNotFound,
		},
		{
			name:       "input validation",
			err:        assetio.NewInputValidationError(assetio.ErrCodeNilContext, "context cannot be nil"),
			wantStatus: http.StatusBadRequest,
			wantType:   string(assetio.ErrorTypeInputValidation),
		},
		{
			name:       "backend abort",
			err:        fmt.Errorf("wrapped: %w", assetio.NewBackendError("resolve", fmt.Errorf("connection reset"))),
			wantStatus: http.StatusBadGateway,
			wantType:   string(assetio.ErrorTypeBackend),
		},
		{
			name:       "plain error",
			err:        fmt.Errorf("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeFailure(rec, tt.err)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			var resp APIResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid response body: %v", err)
			}
			if resp.Success {
				t.Fatalf("failure response must not report success")
			}
			if resp.Kind != tt.wantKind {
				t.Fatalf("expected kind %q, got %q", tt.wantKind, resp.Kind)
			}
			if resp.Type != tt.wantType {
				t.Fatalf("expected type %q, got %q", tt.wantType, resp.Type)
			}
			if tt.wantKind != "" && (resp.Index == nil || *resp.Index != 2) {
				t.Fatalf("expected index 2, got %v", resp.Index)
			}
		})
	}
}

type trackedValue struct {
	name   string
	closed *[]string
}

func (v *trackedValue) Close() error {
	*v.closed = append(*v.closed, v.name)
	return nil
}

func TestServeBatchClosesUnencodedValues(t *testing.T) {
	var closed []string
	values := []*trackedValue{
		{name: "a", closed: &closed},
		{name: "b", closed: &closed},
		{name: "c", closed: &closed},
	}
	failOnB := func(v *trackedValue) (any, error) {
		if v.name == "b" {
			return nil, fmt.Errorf("encode %s", v.name)
		}
		return v.name, nil
	}

	rec := httptest.NewRecorder()
	serveBatch(rec, dispatch.ThrowOnFirstError,
		func() ([]*trackedValue, error) { return values, nil },
		nil,
		failOnB)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
	if len(closed) != 1 || closed[0] != "c" {
		t.Fatalf("expected only c to be closed, got %v", closed)
	}

	closed = nil
	rec = httptest.NewRecorder()
	serveBatch(rec, dispatch.CollectAsResults,
		nil,
		func() ([]assetio.Outcome[*trackedValue], error) {
			return []assetio.Outcome[*trackedValue]{
				assetio.Success(values[1]),
				assetio.Failure[*trackedValue](assetio.NewBatchElementError(assetio.KindEntityNotFound, "gone")),
				assetio.Success(values[2]),
			}, nil
		},
		failOnB)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
	if len(closed) != 1 || closed[0] != "c" {
		t.Fatalf("expected only c to be closed, got %v", closed)
	}
}
