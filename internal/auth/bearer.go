package auth

import (
	"fmt"
	"net/http"
	"strings"
)

// FromRequest extracts the bearer credential from a handshake request:
// the Authorization header first, then the token query parameter for
// browser WebSocket clients that cannot set headers.
func FromRequest(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", fmt.Errorf("%w: malformed authorization header", ErrAuthentication)
		}
		return parts[1], nil
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}

	return "", fmt.Errorf("%w: missing credential", ErrAuthentication)
}
