package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
)

type contextKey string

const fingerprintKey contextKey = "fingerprint"

// Fingerprint derives a non-identifying sender fingerprint from connection
// attributes and places it in the request context. Used only as a coarse
// spam signal on stored messages; it never identifies a sender.
func Fingerprint(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}

		sum := sha256.Sum256([]byte(ip + "|" + r.UserAgent()))
		fp := hex.EncodeToString(sum[:])[:16]

		ctx := context.WithValue(r.Context(), fingerprintKey, fp)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FingerprintFromContext returns the request-derived fingerprint, or "" when
// the middleware did not run.
func FingerprintFromContext(ctx context.Context) string {
	fp, _ := ctx.Value(fingerprintKey).(string)
	return fp
}
