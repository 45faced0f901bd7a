package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/njabbott/npp-simulation/internal/app"
)

// WorkspaceHeader carries the workspace id for clients that do not put it in the path.
const WorkspaceHeader = "X-Workspace-ID"

type contextKey string

// WorkspaceIDContextKey is the key used to store the workspace id in the request context.
const WorkspaceIDContextKey = contextKey("workspaceID")

// WorkspaceMiddleware checks that the workspace named by the path, or failing
// that by the X-Workspace-ID header, exists and injects its id into the context.
func WorkspaceMiddleware(workspaces *app.Workspaces) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(chi.URLParam(r, "workspaceID"))
			if id == "" {
				id = strings.TrimSpace(r.Header.Get(WorkspaceHeader))
			}
			if id == "" {
				writeError(w, http.StatusBadRequest, "workspace id required")
				return
			}
			if _, err := workspaces.Open(id); err != nil {
				if errors.Is(err, app.ErrWorkspaceNotFound) {
					writeError(w, http.StatusNotFound, err.Error())
					return
				}
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}

			w.Header().Set(WorkspaceHeader, id)
			ctx := context.WithValue(r.Context(), WorkspaceIDContextKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WorkspaceFromContext returns the workspace id injected by WorkspaceMiddleware.
func WorkspaceFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(WorkspaceIDContextKey).(string)
	return id, ok && id != ""
}
