package httpapi

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

const maxRequestIDLength = 128

// requestIDFrom keeps a caller supplied id when it looks sane, otherwise mints one.
func requestIDFrom(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(requestIDHeader))
	if id == "" || len(id) > maxRequestIDLength || strings.ContainsAny(id, " \t\r\n") {
		return uuid.NewString()
	}
	return id
}
