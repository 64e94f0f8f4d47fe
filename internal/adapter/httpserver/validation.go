package httpserver

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

// ValidationError describes one rejected field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult aggregates field errors for one request.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

var validTaskID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateTaskID checks the shape of a task id path parameter.
func ValidateTaskID(taskID string) ValidationResult {
	if taskID == "" {
		return ValidationResult{Valid: false, Errors: []ValidationError{
			{Field: "id", Code: "REQUIRED", Message: "task id is required"},
		}}
	}
	if len(taskID) > 100 {
		return ValidationResult{Valid: false, Errors: []ValidationError{
			{Field: "id", Code: "TOO_LONG", Message: "task id is too long (max 100 characters)"},
		}}
	}
	if !validTaskID.MatchString(taskID) {
		return ValidationResult{Valid: false, Errors: []ValidationError{
			{Field: "id", Code: "INVALID_FORMAT", Message: "task id contains invalid characters"},
		}}
	}
	return ValidationResult{Valid: true}
}

// textContentKeys are the task input fields that must hold document text.
// Submissions sometimes arrive with binary blobs pasted into these fields;
// they are rejected here instead of burning an AI call downstream.
var textContentKeys = []string{"documentContent", "rawContent", "textContent", "content"}

// ValidateDocumentFields sniffs the large text fields of a task input and
// rejects anything that is not textual content, plus anything above maxKB.
func ValidateDocumentFields(input map[string]any, maxKB int64) ValidationResult {
	var errs []ValidationError
	for _, key := range textContentKeys {
		v, ok := input[key]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			errs = append(errs, ValidationError{Field: key, Code: "INVALID_FORMAT", Message: "must be a string"})
			continue
		}
		if maxKB > 0 && int64(len(s)) > maxKB*1024 {
			errs = append(errs, ValidationError{Field: key, Code: "TOO_LONG", Message: "document exceeds the size limit"})
			continue
		}
		if s == "" {
			continue
		}
		if !utf8.ValidString(s) {
			errs = append(errs, ValidationError{Field: key, Code: "INVALID_ENCODING", Message: "document is not valid UTF-8"})
			continue
		}
		m := mimetype.Detect([]byte(s))
		if !textMIME(m.String()) {
			errs = append(errs, ValidationError{Field: key, Code: "UNSUPPORTED_MEDIA_TYPE", Message: "document content must be plain text, got " + m.String()})
		}
	}
	if len(errs) > 0 {
		return ValidationResult{Valid: false, Errors: errs}
	}
	return ValidationResult{Valid: true}
}

func textMIME(m string) bool {
	m = strings.ToLower(m)
	// Allow parameters such as charset, and structured text formats that
	// legitimate documents sniff as (JSON abstracts, XML exports).
	return strings.HasPrefix(m, "text/") ||
		strings.HasPrefix(m, "application/json") ||
		strings.HasPrefix(m, "application/xml")
}

// SanitizeString removes null bytes and control noise from small string
// inputs, trims whitespace and caps length.
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	input = strings.TrimSpace(input)
	if len(input) > 1000 {
		input = input[:1000]
	}
	if !utf8.ValidString(input) {
		input = strings.ToValidUTF8(input, "")
	}
	return input
}
