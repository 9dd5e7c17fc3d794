package pad

import (
	"encoding/json"
	"errors"
	"net/http"

	"scratchpad/internal/pad/model"
	"scratchpad/internal/pad/service"
	"scratchpad/pkg/logger"
	"scratchpad/socket"
)

type PadHandler struct {
	Store *service.PadStore
	Hub   *socket.Hub
}

func NewPadHandler(store *service.PadStore, hub *socket.Hub) *PadHandler {
	return &PadHandler{Store: store, Hub: hub}
}

// GetPad is the cold-load accessor. An unknown id comes back as a
// freshly created empty pad, never a 404.
func (h *PadHandler) GetPad(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	p := h.Store.Get(id)
	writeJSON(w, http.StatusOK, model.PadResponse{
		ID:           p.ID,
		Content:      p.Content,
		LastModified: p.LastModified,
	})
}

// SavePad is the debounced persistence path. It does not broadcast;
// live peers already saw the content through the relay.
func (h *PadHandler) SavePad(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req model.SavePadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// A pointer target keeps JSON null from sliding through as "".
	var content *string
	if err := json.Unmarshal(req.Content, &content); err != nil || content == nil {
		writeError(w, http.StatusBadRequest, "Content must be of string type")
		return
	}

	p := h.Store.Put(id, *content)
	writeJSON(w, http.StatusOK, model.SavePadResponse{
		Success:      true,
		ID:           p.ID,
		LastModified: p.LastModified,
	})
}

func (h *PadHandler) ListPads(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.ListPadsResponse{
		Success: true,
		Pads:    h.Store.List(),
	})
}

func (h *PadHandler) DeletePad(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.Store.Delete(id); err != nil {
		if errors.Is(err, service.ErrPadNotFound) {
			writeError(w, http.StatusNotFound, "Pad not found")
			return
		}
		logger.Sugar.Errorf("Handler: Failed to delete pad %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to delete pad")
		return
	}

	// Stop broadcasting to a room whose pad no longer exists.
	h.Hub.RemovePad(id)

	writeJSON(w, http.StatusOK, model.DeletePadResponse{Success: true, Message: "Pad Deleted"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Sugar.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}
