package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
)

// ErrMissingAgentID is returned before any network call when no agent is configured.
var ErrMissingAgentID = errors.New("letta: agent id is not configured")

// HTTPError is a non-2xx response from the agent service.
type HTTPError struct {
	Status int
	Body   string
	Detail string // human-readable detail extracted from Body, if any
	Code   string // structured error code extracted from Body, if any
}

func (e *HTTPError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = e.Body
	}
	return fmt.Sprintf("letta: HTTP %d: %s", e.Status, msg)
}

// newHTTPError extracts detail and code from the common error body shapes:
// {"detail": "..."}, {"code": "..."} and {"error": {"type": "...", "message": "..."}}.
func newHTTPError(status int, body []byte) *HTTPError {
	e := &HTTPError{Status: status, Body: string(body)}

	var parsed struct {
		Detail  json.RawMessage `json:"detail"`
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Error   *struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return e
	}

	if len(parsed.Detail) > 0 {
		var s string
		if err := json.Unmarshal(parsed.Detail, &s); err == nil {
			e.Detail = s
		} else {
			e.Detail = string(parsed.Detail)
		}
	}
	e.Code = parsed.Code
	if parsed.Error != nil {
		if e.Code == "" {
			e.Code = parsed.Error.Type
		}
		if e.Detail == "" {
			e.Detail = parsed.Error.Message
		}
	}
	if e.Detail == "" {
		e.Detail = parsed.Message
	}
	return e
}

var tooLargeCodes = map[string]bool{
	"payload_too_large": true,
	"request_too_large": true,
}

// tooLargePattern is the fallback for services that only describe the
// problem in prose, e.g. "Request exceeds 5 MB limit".
var tooLargePattern = regexp.MustCompile(`(?i)exceeds\s*\d+(\.\d+)?\s*MB`)

// IsPayloadTooLarge reports whether err is the agent service rejecting a
// request body as oversized. Structured signals win; prose matching is last.
func IsPayloadTooLarge(err error) bool {
	if err == nil {
		return false
	}
	var he *HTTPError
	if errors.As(err, &he) {
		if he.Status == http.StatusRequestEntityTooLarge || tooLargeCodes[he.Code] {
			return true
		}
		return tooLargePattern.MatchString(he.Detail) || tooLargePattern.MatchString(he.Body)
	}
	return tooLargePattern.MatchString(err.Error())
}
