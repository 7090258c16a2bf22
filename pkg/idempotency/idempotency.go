package idempotency

import (
	"net/http"
	"strings"
)

const (
	Header = "Idempotency-Key"
	MaxLen = 255
)

func Key(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(Header))
}

// Valid reports whether a non-empty key fits the storage column.
func Valid(key string) bool {
	return len(key) <= MaxLen
}
