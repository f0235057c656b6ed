package prediction

import (
	"bytes"
	"encoding/json"
	"errors"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// User-facing messages.
const (
	GenericFailureMessage = "Failed to get prediction. Please try again."
	ValidationMessage     = "Please fix the highlighted fields and try again."
)

const maxBodySnippet = 300

var bodyPolicy = bluemonday.StrictPolicy()

// UserMessage converts a prediction error into the text shown to the user.
// A cancellation yields "".
func UserMessage(err error) string {
	if err == nil || errors.Is(err, ErrCanceled) {
		return ""
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return ValidationMessage
	}

	var respErr *ResponseError
	if !errors.As(err, &respErr) {
		return GenericFailureMessage
	}

	msg := "Failed to get prediction: " + respErr.Error() + "."
	if body := serializeBody(respErr.Body); body != "" {
		msg += " " + body
	}
	return msg
}

// serializeBody renders an error body for display. JSON is compacted; anything
// else is stripped of markup and shortened.
func serializeBody(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}
	if json.Valid(trimmed) {
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err == nil {
			return buf.String()
		}
	}
	text := html.UnescapeString(string(bodyPolicy.SanitizeBytes(trimmed)))
	text = strings.Join(strings.Fields(text), " ")
	return truncate(text, maxBodySnippet)
}

func truncate(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit]) + "..."
}
