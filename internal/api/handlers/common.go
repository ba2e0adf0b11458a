// Package handlers provides HTTP request handlers for the netscope API.
// Every response body is one JSON document: a report on success or
// {"error": message} on failure.
package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/anstrom/netscope/internal/api/middleware"
	"github.com/anstrom/netscope/internal/capture"
	"github.com/anstrom/netscope/internal/discovery"
	"github.com/anstrom/netscope/internal/errors"
	"github.com/anstrom/netscope/internal/logging"
	"github.com/anstrom/netscope/internal/portscan"
	"github.com/anstrom/netscope/internal/report"
)

// HostDiscoverer runs a discovery sweep, reporting hosts as they answer.
type HostDiscoverer interface {
	Stream(ctx context.Context, base string, low, high int,
		onHost func(discovery.HostResult)) ([]discovery.HostResult, error)
}

// PortScanner runs a TCP connect scan, reporting open ports as they are found.
type PortScanner interface {
	Stream(ctx context.Context, target string, ports []int,
		onPort func(portscan.PortResult)) ([]portscan.PortResult, error)
}

// CaptureAnalyzer summarizes a capture file.
type CaptureAnalyzer interface {
	AnalyzeFile(ctx context.Context, path string) (*capture.Result, error)
}

// newValidator returns a validator that names fields by their JSON tag.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError turns a validator failure into an invocation error.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return errors.ErrValidation(fmt.Sprintf("Invalid value for %s", fe.Field())).
			WithContext("rule", fe.Tag())
	}
	return errors.ErrValidation(err.Error())
}

// statusForError maps an error to its HTTP status.
func statusForError(err error) int {
	switch code := errors.GetCode(err); {
	case errors.IsInvocation(err):
		return http.StatusBadRequest
	case code == errors.CodeCaptureParse, code == errors.CodeCaptureUnsupported:
		return http.StatusUnprocessableEntity
	case code == errors.CodeTimeout:
		return http.StatusGatewayTimeout
	case code == errors.CodeCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Error("Failed to encode JSON response",
			"request_id", middleware.GetRequestID(r),
			"error", err)
	}
}

// writeError writes the error report for err with its mapped status.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeJSON(w, r, statusForError(err), report.Error(err))
}

// parseJSON decodes an optional JSON body into dst. An empty body leaves
// dst untouched.
func parseJSON(r *http.Request, maxSize int64, dst interface{}) error {
	if r.Body == nil {
		return nil
	}
	r.Body = http.MaxBytesReader(nil, r.Body, maxSize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		if stderrors.Is(err, io.EOF) {
			return nil
		}
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			return errors.ErrValidation("Request body too large")
		}
		return errors.ErrValidation("Invalid JSON body").WithContext("cause", err.Error())
	}
	return nil
}
