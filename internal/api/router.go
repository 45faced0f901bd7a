/**
 * @description
 * This file sets up the HTTP router for the tracker shell using go-chi/chi.
 * Every browser workspace owns its own set of session cells; the send page of a
 * workspace is driven through the routes under /workspaces/{workspaceID}.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers the tracker routes.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", WorkspaceHeader},
			ExposedHeaders:   []string{WorkspaceHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("healthy"))
	})

	r.Get("/payids", h.handleListPayIDs)
	r.Get("/quick-payids", h.handleQuickPayIDs)
	r.Get("/sender-accounts", h.handleSenderAccounts)
	r.Post("/workspaces", h.handleCreateWorkspace)

	r.Route("/workspaces/{workspaceID}/slots/send", func(r chi.Router) {
		r.Use(WorkspaceMiddleware(h.workspaces))

		r.Get("/", h.handleView)
		r.Post("/mount", h.handleMount)
		r.Post("/unmount", h.handleUnmount)
		r.Put("/form", h.handleChangeForm)
		r.Post("/mode", h.handleSetMode)
		r.Post("/payee-source", h.handleSetPayeeSource)
		r.Post("/resolve", h.handleResolve)
		r.Post("/quick-select", h.handleQuickSelect)
		r.Get("/registered", h.handleLoadRegistered)
		r.Post("/registered", h.handleSelectRegistered)
		r.Post("/submit", h.handleSubmit)
		r.Post("/return", h.handleReturn)
		r.Post("/reset", h.handleReset)
		r.Post("/messages/{messageID}/toggle", h.handleToggleMessage)
	})

	return r
}
