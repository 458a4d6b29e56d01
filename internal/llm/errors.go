package llm

import (
	"encoding/json"
	"fmt"
)

const maxRawErrorLength = 240

// APIError is a completion API failure: a non-success status code or a
// response with no usable body.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewAPIError builds an APIError from a status code and the raw error
// body. A parseable JSON body with error.message (or a top-level
// message) is used verbatim; otherwise a status-specific message or a
// truncated raw snippet.
func NewAPIError(code int, rawError string) *APIError {
	return &APIError{
		StatusCode: code,
		Message:    buildAPIErrorMessage(code, rawError),
	}
}

func buildAPIErrorMessage(code int, rawError string) string {
	if parsed := extractAPIErrorMessage(rawError); parsed != "" {
		return fmt.Sprintf("API error (%d): %s", code, parsed)
	}

	switch {
	case code == 400:
		return "API error (400): invalid request. Check baseUrl (/v1/), model and payload."
	case code == 401:
		return "API error (401): unauthorized. Check DEEPSEEK_API_KEY."
	case code == 403:
		return "API error (403): access denied for this key/model."
	case code == 404:
		return "API error (404): endpoint not found. Check DEEPSEEK_BASE_URL."
	case code == 429:
		return "API error (429): rate limit exceeded."
	case code >= 500 && code <= 599:
		return fmt.Sprintf("API error (%d): DeepSeek server is unavailable.", code)
	default:
		safeRaw := rawError
		if len(safeRaw) > maxRawErrorLength {
			safeRaw = safeRaw[:maxRawErrorLength]
		}
		if safeRaw != "" {
			return fmt.Sprintf("API error (%d): %s", code, safeRaw)
		}
		return fmt.Sprintf("API error (%d)", code)
	}
}

// extractAPIErrorMessage pulls error.message or a top-level message out
// of a JSON error body, returning "" when neither is present.
func extractAPIErrorMessage(rawError string) string {
	if rawError == "" {
		return ""
	}

	var root struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(rawError), &root); err != nil {
		return ""
	}

	if root.Error != nil && root.Error.Message != "" {
		return root.Error.Message
	}
	return root.Message
}
