package middleware

import (
	"net/http"
	"strings"

	"github.com/TariqKichawele/BrightData/internal/api/response"
	"golang.org/x/crypto/bcrypt"
)

// OwnerHeader carries the end-user identity resolved by the front end.
const OwnerHeader = "X-Owner-ID"

const maxOwnerIDLen = 256

// Auth checks service API keys against bcrypt hashes and attaches the owner.
type Auth struct {
	hashes [][]byte
}

// NewAuth creates a new Auth middleware from bcrypt hashes of the accepted keys.
func NewAuth(hashes []string) *Auth {
	a := &Auth{}
	for _, h := range hashes {
		a.hashes = append(a.hashes, []byte(h))
	}
	return a
}

// Authenticate validates the Bearer token and sets owner_id in the request
// context from the X-Owner-ID header.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey := extractBearerToken(r)
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		if !a.matches(rawKey) {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key", nil)
			return
		}

		owner := strings.TrimSpace(r.Header.Get(OwnerHeader))
		if owner == "" {
			response.Error(w, http.StatusBadRequest,
				"MISSING_OWNER_ID", "X-Owner-ID header is required", nil)
			return
		}
		if len(owner) > maxOwnerIDLen {
			response.Error(w, http.StatusBadRequest,
				"INVALID_OWNER_ID", "X-Owner-ID header is too long", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(SetOwnerID(r.Context(), owner)))
	})
}

func (a *Auth) matches(rawKey string) bool {
	for _, h := range a.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(rawKey)) == nil {
			return true
		}
	}
	return false
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
