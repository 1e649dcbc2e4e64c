package middleware

import (
	"mime"
	"net/http"

	"github.com/cloo-solutions/finknow/internal/api"
)

// BodyLimits caps request bodies. Multipart uploads carry whole PDFs and get Upload; everything else is a
// small JSON document and gets JSON. A zero limit disables that cap.
type BodyLimits struct {
	Upload int64
	JSON   int64
}

func (l BodyLimits) forRequest(r *http.Request) int64 {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return l.Upload
	}
	return l.JSON
}

// LimitBody rejects bodies over the limit with 413. A declared Content-Length is checked up front, before
// any parsing; bodies of unknown length fail once the limit is read.
func LimitBody(limits BodyLimits) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limit := limits.forRequest(r)
			if limit <= 0 || r.Body == nil || (r.Body == http.NoBody && r.ContentLength <= 0) {
				next.ServeHTTP(w, r)
				return
			}

			if r.ContentLength > limit {
				api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
