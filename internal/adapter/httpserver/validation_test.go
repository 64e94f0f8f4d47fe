package httpserver

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTaskID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		id    string
		valid bool
		code  string
	}{
		{"simple", "task-1", true, ""},
		{"ulid style", "01J8X2K9ZQW3R4T5Y6U7V8W9X0", true, ""},
		{"underscores", "task_abc_123", true, ""},
		{"empty", "", false, "REQUIRED"},
		{"too long", strings.Repeat("a", 101), false, "TOO_LONG"},
		{"path traversal", "../etc/passwd", false, "INVALID_FORMAT"},
		{"spaces", "task 1", false, "INVALID_FORMAT"},
		{"unicode", "tásk", false, "INVALID_FORMAT"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			vr := ValidateTaskID(tc.id)
			assert.Equal(t, tc.valid, vr.Valid)
			if !tc.valid {
				require.NotEmpty(t, vr.Errors)
				assert.Equal(t, tc.code, vr.Errors[0].Code)
			}
		})
	}
}

func TestValidateDocumentFields_TextAccepted(t *testing.T) {
	t.Parallel()
	input := map[string]any{
		"paperId":     "p1",
		"textContent": "Transformers have become the dominant architecture in NLP.",
	}
	vr := ValidateDocumentFields(input, 512)
	assert.True(t, vr.Valid)
}

func TestValidateDocumentFields_JSONAndXMLAccepted(t *testing.T) {
	t.Parallel()
	vr := ValidateDocumentFields(map[string]any{
		"content": `{"abstract": "structured export"}`,
	}, 512)
	assert.True(t, vr.Valid, "JSON abstracts are legitimate document content")

	vr = ValidateDocumentFields(map[string]any{
		"rawContent": `<?xml version="1.0"?><article><title>t</title></article>`,
	}, 512)
	assert.True(t, vr.Valid, "XML exports are legitimate document content")
}

func TestValidateDocumentFields_BinaryRejected(t *testing.T) {
	t.Parallel()
	vr := ValidateDocumentFields(map[string]any{
		"documentContent": "%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n",
	}, 512)
	require.False(t, vr.Valid)
	assert.Equal(t, "UNSUPPORTED_MEDIA_TYPE", vr.Errors[0].Code)
	assert.Equal(t, "documentContent", vr.Errors[0].Field)
}

func TestValidateDocumentFields_NonStringRejected(t *testing.T) {
	t.Parallel()
	vr := ValidateDocumentFields(map[string]any{"content": 42}, 512)
	require.False(t, vr.Valid)
	assert.Equal(t, "INVALID_FORMAT", vr.Errors[0].Code)
}

func TestValidateDocumentFields_SizeCap(t *testing.T) {
	t.Parallel()
	big := strings.Repeat("a", 2*1024+1)
	vr := ValidateDocumentFields(map[string]any{"textContent": big}, 2)
	require.False(t, vr.Valid)
	assert.Equal(t, "TOO_LONG", vr.Errors[0].Code)
}

func TestValidateDocumentFields_InvalidUTF8(t *testing.T) {
	t.Parallel()
	vr := ValidateDocumentFields(map[string]any{"content": "abc\xff\xfedef"}, 512)
	require.False(t, vr.Valid)
	assert.Equal(t, "INVALID_ENCODING", vr.Errors[0].Code)
}

func TestValidateDocumentFields_IgnoresOtherFields(t *testing.T) {
	t.Parallel()
	// Only the known document keys are sniffed; metadata fields pass through.
	vr := ValidateDocumentFields(map[string]any{
		"paperId": "%PDF-1.4", "depth": "detailed",
	}, 512)
	assert.True(t, vr.Valid)
}

func TestSanitizeString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "hello", SanitizeString("  hello\x00  "))
	assert.Equal(t, "abc", SanitizeString("abc"))
	assert.Len(t, SanitizeString(strings.Repeat("x", 2000)), 1000)
}
