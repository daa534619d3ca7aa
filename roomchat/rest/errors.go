package rest

import (
	"encoding/json"
	"fmt"
	"strings"
)

// APIError is a non-2xx response. Detail carries the server's "detail"
// field when present, otherwise the raw body.
type APIError struct {
	Status int
	Detail string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Detail)
}

// validationItem is one entry of a 422 validation detail array. Location
// segments may be strings or indexes.
type validationItem struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

func errorFromResponse(status int, body []byte) error {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Detail) > 0 {
		var detail string
		if err := json.Unmarshal(envelope.Detail, &detail); err == nil {
			return &APIError{Status: status, Detail: detail}
		}
		var items []validationItem
		if err := json.Unmarshal(envelope.Detail, &items); err == nil {
			return &APIError{Status: status, Detail: flattenValidation(items)}
		}
	}
	return &APIError{Status: status, Detail: strings.TrimSpace(string(body))}
}

func flattenValidation(items []validationItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		segs := make([]string, 0, len(it.Loc))
		for _, s := range it.Loc {
			segs = append(segs, fmt.Sprint(s))
		}
		parts = append(parts, strings.Join(segs, ".")+": "+it.Msg)
	}
	return strings.Join(parts, "; ")
}
