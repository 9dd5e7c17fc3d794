package router

import (
	"net/http"

	padHandler "scratchpad/internal/pad"
	"scratchpad/internal/pad/service"
	"scratchpad/middleware"
	"scratchpad/socket"
)

func Setup(store *service.PadStore, hub *socket.Hub) http.Handler {
	mux := http.NewServeMux()

	// WebSocket relay
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		socket.ServeWs(hub, w, r)
	})

	// REST API (snapshot endpoint)
	h := padHandler.NewPadHandler(store, hub)
	mux.HandleFunc("GET /pad/{id}", h.GetPad)
	mux.HandleFunc("POST /pad/{id}", h.SavePad)
	mux.HandleFunc("DELETE /pad/{id}", h.DeletePad)
	mux.HandleFunc("GET /pads", h.ListPads)

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ScratchPad Backend is running !"))
	})

	return middleware.CORSMiddleware(mux)
}
