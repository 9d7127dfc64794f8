package controller

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashAPIKey derives a storable bcrypt hash of the configured apikey,
// so the plaintext is never compared or held longer than startup
// (adapted from the teacher's password-hashing use of bcrypt; here it
// protects a single static bearer key instead of user passwords).
func HashAPIKey(apikey string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(apikey), bcrypt.DefaultCost)
}

// requireAPIKey builds middleware that enforces "Authorization:
// Bearer <apikey>" on every request when apikeyHash is non-nil. A
// missing header is 401; a present-but-wrong one is 403 (spec §6).
func requireAPIKey(apikeyHash []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if apikeyHash == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || bcrypt.CompareHashAndPassword(apikeyHash, []byte(token)) != nil {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
