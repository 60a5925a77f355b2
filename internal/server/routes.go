package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
// WebSocket clients may connect on "/" or "/ws".
func SetupRoutes(hub *Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", RootHandler(hub))
	mux.HandleFunc("/ws", WebSocketHandler(hub))
	mux.HandleFunc("/stats", StatsHandler(hub))
	return mux
}
