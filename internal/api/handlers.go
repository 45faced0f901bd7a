/**
 * @description
 * This file contains the HTTP handlers of the tracker shell. Each handler looks
 * up the workspace's send page, applies one user action to it, and answers with
 * the page's current view so the client can re-render from a single response.
 *
 * @dependencies
 * - internal/app: Workspaces and the send page orchestrator.
 * - pkg/nppclient: For mapping backend errors onto HTTP statuses.
 */
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/njabbott/npp-simulation/internal/app"
	"github.com/njabbott/npp-simulation/internal/domain"
	"github.com/njabbott/npp-simulation/internal/store"
	"github.com/njabbott/npp-simulation/pkg/nppclient"
)

// Handler serves the shell API.
type Handler struct {
	workspaces *app.Workspaces
	backend    app.Backend
}

// NewHandler creates a new Handler.
func NewHandler(workspaces *app.Workspaces, backend app.Backend) *Handler {
	return &Handler{workspaces: workspaces, backend: backend}
}

type resolveRequest struct {
	Type  domain.PayIDType `json:"type"`
	Value string           `json:"value"`
}

type valueRequest struct {
	Value string `json:"value"`
}

func (h *Handler) handleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	id := h.workspaces.Create()
	w.Header().Set(WorkspaceHeader, id)
	writeJSON(w, http.StatusCreated, map[string]string{"workspaceId": id})
}

func (h *Handler) handleListPayIDs(w http.ResponseWriter, r *http.Request) {
	payees, err := h.backend.ListPayIDs(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, payees)
}

func (h *Handler) handleQuickPayIDs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, app.QuickPayIDs)
}

func (h *Handler) handleSenderAccounts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": app.SenderAccounts,
		"bsbs":     app.SenderBSBs,
	})
}

func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	page, ok := h.page(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, page.Snapshot())
}

func (h *Handler) handleMount(w http.ResponseWriter, r *http.Request) {
	id, _ := WorkspaceFromContext(r.Context())
	page, err := h.workspaces.Mount(id, store.SlotSend)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page.Snapshot())
}

func (h *Handler) handleUnmount(w http.ResponseWriter, r *http.Request) {
	id, _ := WorkspaceFromContext(r.Context())
	if err := h.workspaces.Unmount(id, store.SlotSend); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleChangeForm(w http.ResponseWriter, r *http.Request) {
	var fields map[string]string
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	page, ok := h.page(w, r)
	if !ok {
		return
	}
	for field, value := range fields {
		if err := page.Change(field, value); err != nil {
			writeAppError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, page.Snapshot())
}

func (h *Handler) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode domain.Mode `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	h.apply(w, r, func(page *app.Page) error { return page.SetMode(req.Mode) })
}

func (h *Handler) handleSetPayeeSource(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source domain.PayeeSource `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	h.apply(w, r, func(page *app.Page) error { return page.SetPayeeSource(req.Source) })
}

// handleResolve resolves the PayID in the body, or the form's current PayID
// when the body is empty, which is what a blur sends.
func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	h.apply(w, r, func(page *app.Page) error {
		if req.Value == "" && req.Type == "" {
			return page.Blur(r.Context())
		}
		return page.Resolve(r.Context(), req.Type, req.Value)
	})
}

func (h *Handler) handleQuickSelect(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	h.apply(w, r, func(page *app.Page) error { return page.QuickSelect(r.Context(), req.Value) })
}

func (h *Handler) handleLoadRegistered(w http.ResponseWriter, r *http.Request) {
	page, ok := h.page(w, r)
	if !ok {
		return
	}
	payees, err := page.LoadRegisteredPayees(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payees)
}

func (h *Handler) handleSelectRegistered(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	h.apply(w, r, func(page *app.Page) error { return page.SelectRegistered(r.Context(), req.Value) })
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, func(page *app.Page) error {
		_, err := page.Submit(r.Context())
		return err
	})
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, func(page *app.Page) error {
		_, err := page.Return(r.Context())
		return err
	})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, func(page *app.Page) error {
		page.Reset()
		return nil
	})
}

func (h *Handler) handleToggleMessage(w http.ResponseWriter, r *http.Request) {
	messageID, err := strconv.ParseInt(chi.URLParam(r, "messageID"), 10, 64)
	if err != nil || messageID <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid message id")
		return
	}
	h.apply(w, r, func(page *app.Page) error {
		page.ToggleMessage(messageID)
		return nil
	})
}

// apply runs action on the workspace's send page and answers with its view.
func (h *Handler) apply(w http.ResponseWriter, r *http.Request, action func(page *app.Page) error) {
	page, ok := h.page(w, r)
	if !ok {
		return
	}
	if err := action(page); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page.Snapshot())
}

func (h *Handler) page(w http.ResponseWriter, r *http.Request) (*app.Page, bool) {
	id, ok := WorkspaceFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "workspace id required")
		return nil, false
	}
	page, err := h.workspaces.Page(id, store.SlotSend)
	if err != nil {
		writeAppError(w, err)
		return nil, false
	}
	return page, true
}

// writeAppError maps page errors onto HTTP statuses.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrWorkspaceNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, app.ErrSubmitInProgress), errors.Is(err, app.ErrSessionReset):
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	status := http.StatusInternalServerError
	kind := app.KindOf(err)
	switch kind {
	case app.KindValidation:
		status = http.StatusBadRequest
	case app.KindResolution:
		status = http.StatusUnprocessableEntity
	case app.KindSubmission:
		status = http.StatusBadGateway
		var apiErr *nppclient.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			status = http.StatusUnprocessableEntity
		}
	case app.KindStream:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "kind": string(kind)})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"Failed to encode response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
