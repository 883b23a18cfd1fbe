package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lensai/lensai/internal/auth"
)

// ProjectIDParam is the route parameter naming the project.
const ProjectIDParam = "project_id"

// RequireProject allows the request only when the authenticated key belongs to
// the project in the URL. A mismatch answers 404 so other projects' IDs are not confirmed.
// Must be applied after Auth.
func RequireProject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.AuthFromContext(r.Context()) == nil {
			writeAuthError(w)
			return
		}

		if !auth.CanAccessProject(r.Context(), chi.URLParam(r, ProjectIDParam)) {
			writeErrorEnvelope(w, http.StatusNotFound, "NOT_FOUND", "Project not found")
			return
		}

		next.ServeHTTP(w, r)
	})
}
