package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/hunabku/shorturl/internal/errors"
	"github.com/hunabku/shorturl/internal/logger"
)

// APIKey rejects requests that do not carry the shared secret, either as
// the "apikey" query/form parameter or the X-API-Key header. An empty key
// disables the check.
func APIKey(key string, log *logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("X-API-Key")
			if provided == "" {
				provided = r.FormValue("apikey")
			}

			if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
				log.Warn("rejected api key",
					"request_id", GetRequestID(r.Context()),
					"path", r.URL.Path,
					"present", provided != "",
				)
				errors.Unauthorized().WriteJSON(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
