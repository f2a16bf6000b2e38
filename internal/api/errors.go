package api

import (
	"encoding/json"
	"fmt"
	"sort"
)

// AppError is an API failure. It renders as a flat body: "detail" for the
// general message plus one list of messages per rejected field, the shape
// form clients map back onto their inputs.
type AppError struct {
	Code   string              `json:"-"`
	Status int                 `json:"-"`
	Detail string              `json:"-"`
	Fields map[string][]string `json:"-"`
}

func (e *AppError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("%s: invalid fields %v", e.Code, keys)
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		body[k] = v
	}
	if e.Detail != "" {
		body["detail"] = e.Detail
	}
	return json.Marshal(body)
}

func NewAppError(code string, status int, detail string) *AppError {
	return &AppError{Code: code, Status: status, Detail: detail}
}

func NotFoundError(what string) *AppError {
	return &AppError{Code: "NOT_FOUND", Status: 404, Detail: fmt.Sprintf("%s not found", what)}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Status: 401, Detail: msg}
}

func ForbiddenError(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Status: 403, Detail: msg}
}

func InvalidPayloadError() *AppError {
	return &AppError{Code: "INVALID_PAYLOAD", Status: 400, Detail: "Invalid JSON body"}
}

// ValidationError reports field problems with status 400.
func ValidationError(fields map[string][]string) *AppError {
	return &AppError{Code: "VALIDATION_FAILED", Status: 400, Fields: fields}
}
