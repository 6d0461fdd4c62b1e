package server

import (
	"context"
	"encoding/json"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"consentwallet/internal/engine"
	"consentwallet/internal/i18n"
)

type langKey struct{}

func withLang(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, langKey{}, lang)
}

// engineFor returns e rendering texts in the request's language.
func engineFor(ctx context.Context, e engine.Engine) engine.Engine {
	if lang, ok := ctx.Value(langKey{}).(string); ok && lang != "" {
		return e.WithLanguage(lang)
	}
	return e
}

// requestLang reads ?lang= first, then the first Accept-Language tag.
func requestLang(r *http.Request) string {
	if l := strings.TrimSpace(r.URL.Query().Get("lang")); l != "" {
		return i18n.Alpha2(l)
	}
	return i18n.Match(r.Header.Get("Accept-Language"))
}

func newRequestMiddleware(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-Id")
			if _, err := uuid.Parse(reqID); err != nil {
				reqID = uuid.NewString()
			}
			w.Header().Set("X-Request-Id", reqID)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(withLang(r.Context(), requestLang(r))))
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			observeRequest(r.Method, status, time.Since(start))
			log.WithFields(logrus.Fields{
				"request_id": reqID,
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     status,
				"duration":   time.Since(start).String(),
			}).Debug("request")
		})
	}
}

// newSessionMiddleware answers 401 for API paths that need a signed-in
// user when the workspace has no session.
func newSessionMiddleware(basePath string, e engine.Engine) func(http.Handler) http.Handler {
	public := []string{
		path.Join(basePath, "health"),
		path.Join(basePath, "auth") + "/",
		path.Join(basePath, "openapi.json"),
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !strings.HasPrefix(req.URL.Path, basePath+"/") {
				next.ServeHTTP(w, req)
				return
			}
			for _, p := range public {
				if req.URL.Path == p || (strings.HasSuffix(p, "/") && strings.HasPrefix(req.URL.Path, p)) {
					next.ServeHTTP(w, req)
					return
				}
			}
			if e.Session.User() == nil {
				if _, err := e.Init(req.Context()); err != nil {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "authentication_needed", "sign in required", nil))
					return
				}
			}
			next.ServeHTTP(w, req)
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
