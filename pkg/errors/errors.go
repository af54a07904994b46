// Package errors provides coded, structured errors for nanoflow.
//
// Codes follow the "area.op.kind" shape; the last segment decides how an
// error is surfaced at the HTTP and CLI boundaries.
package errors

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeIngestOpenFailure  Code = "ingest.file.open.failure"
	CodeIngestParseFailure Code = "ingest.parse.failure"
	CodeIngestNoInput      Code = "ingest.input.invalid"

	CodeSnapshotInvalid      Code = "storage.snapshot.invalid_format"
	CodeSnapshotWriteFailure Code = "storage.snapshot.write.failure"
	CodeSnapshotReadFailure  Code = "storage.snapshot.read.failure"
	CodeArchiveNotFound      Code = "storage.archive.not_found"

	CodeSettingsLoadFailure  Code = "settings.load.failure"
	CodeSettingsSaveFailure  Code = "settings.save.failure"
	CodeSettingsInvalidValue Code = "settings.validate.invalid_value"

	CodeConfigLoadReadFailure Code = "config.load.read.failure"
	CodeConfigInvalidValue    Code = "config.validate.invalid_value"

	CodeServerRequestInvalid   Code = "server.request.invalid"
	CodeServerAuthUnauthorized Code = "server.auth.unauthorized"
	CodeServerGraphNotFound    Code = "server.graph.not_found"
	CodeServerGraphReadOnly    Code = "server.graph.conflict"
	CodeServerInternalFailure  Code = "server.internal.failure"

	CodeCLIInputInvalid Code = "cli.input.invalid"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldFile(path string) Attr {
	return Field("file", path)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

// Wrap attaches code and fields to err. A nil err stays nil.
func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}
	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return oops.Code(code).Wrapf(err, format, args...)
}

// CodeOf returns the code carried by err, or "" for uncoded errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	switch code := oopsErr.Code().(type) {
	case Code:
		return code
	case string:
		return Code(code)
	case nil:
		return ""
	default:
		return Code(fmt.Sprintf("%v", code))
	}
}

// FieldsOf returns the structured context attached to err.
func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsConflict(err error) bool {
	return reason(CodeOf(err)) == "conflict"
}

func IsInvalidInput(err error) bool {
	switch reason(CodeOf(err)) {
	case "invalid", "invalid_input", "invalid_value", "invalid_format":
		return true
	}
	return false
}

func IsUnauthorized(err error) bool {
	return reason(CodeOf(err)) == "unauthorized"
}

// HTTPStatus maps an error to the status code the API responds with.
func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsUnauthorized(err):
		return http.StatusUnauthorized
	case HasCode(err, CodeIngestParseFailure):
		// A file the caller uploaded could not be parsed.
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
