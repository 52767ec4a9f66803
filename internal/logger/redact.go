package logger

import (
	"bytes"
	"io"
	"regexp"
)

// RedactWriter wraps an io.Writer and masks sensitive values before writing.
// It redacts ssh identity-file paths and user@host targets so log shipping
// does not leak how the remote daemon is reached.
type RedactWriter struct {
	w          io.Writer
	patterns   []*regexp.Regexp
	redactWith string
}

var defaultPatterns = []*regexp.Regexp{
	// Identity file path in key=value or "key":"value" form
	regexp.MustCompile(`(?i)(ssh[_-]?key["'\s:=]+)\S+`),
	regexp.MustCompile(`(?i)(identity[_-]?file["'\s:=]+)\S+`),
	// ssh -i <path> in logged argv
	regexp.MustCompile(`(ssh",?\s*"-i",?\s*")[^"]+`),
	// user@host targets
	regexp.MustCompile(`([A-Za-z0-9._-]+@)[A-Za-z0-9.:_-]+`),
}

// NewRedactWriter returns a RedactWriter that applies all default sensitive patterns.
func NewRedactWriter(w io.Writer) *RedactWriter {
	return &RedactWriter{
		w:          w,
		patterns:   defaultPatterns,
		redactWith: "[REDACTED]",
	}
}

// Write applies all redaction patterns before forwarding to the underlying writer.
func (r *RedactWriter) Write(p []byte) (int, error) {
	sanitized := p
	for _, re := range r.patterns {
		sanitized = re.ReplaceAll(sanitized, appendRedacted(re, r.redactWith))
	}
	n, err := r.w.Write(sanitized)
	// Return original length so callers don't get short-write errors
	// even if redaction changed the byte count.
	if n > len(sanitized) {
		n = len(sanitized)
	}
	if err != nil {
		return n, err
	}
	return len(p), nil
}

// appendRedacted builds a replacement []byte that keeps capture group $1 + redactWith.
func appendRedacted(re *regexp.Regexp, redact string) []byte {
	// All our patterns have exactly one capture group for the key/prefix.
	var buf bytes.Buffer
	buf.WriteString("${1}")
	buf.WriteString(redact)
	return buf.Bytes()
}
