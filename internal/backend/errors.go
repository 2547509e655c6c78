package backend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message())
}

// Message extracts the backend's human readable explanation. It understands
// plain {"message": ...} bodies, ASP.NET problem details ({"title", "errors"})
// and falls back to the raw text or the status text.
func (e *StatusError) Message() string {
	var body struct {
		Message string              `json:"message"`
		Error   string              `json:"error"`
		Title   string              `json:"title"`
		Detail  string              `json:"detail"`
		Errors  map[string][]string `json:"errors"`
	}
	if err := json.Unmarshal(e.Body, &body); err == nil {
		switch {
		case body.Message != "":
			return body.Message
		case body.Error != "":
			return body.Error
		case body.Detail != "":
			return body.Detail
		case body.Title != "":
			if len(body.Errors) == 0 {
				return body.Title
			}
			var parts []string
			for field, msgs := range body.Errors {
				parts = append(parts, field+": "+strings.Join(msgs, ", "))
			}
			sort.Strings(parts)
			return body.Title + " (" + strings.Join(parts, "; ") + ")"
		}
	}
	if text := strings.TrimSpace(string(e.Body)); text != "" {
		return text
	}
	return http.StatusText(e.StatusCode)
}

// DecodeError is returned when a 2xx response body is not the expected JSON.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "malformed response body: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
