package httpapi

import "net/http"

func registerSystemRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("GET /healthz", handler.Healthz)
}

func registerPicksRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("GET /v1/entries/{entryID}/picks/{gameweekID}", handler.GetEntryPicks)
}
