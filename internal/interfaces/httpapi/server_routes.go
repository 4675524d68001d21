package httpapi

import "net/http"

func registerSystemRoutes(mux *http.ServeMux, handler *Handler, swaggerEnabled bool) {
	mux.HandleFunc("GET /healthz", handler.Healthz)
	if !swaggerEnabled {
		return
	}

	mux.HandleFunc("GET /openapi.yaml", handler.OpenAPI)
	mux.HandleFunc("GET /docs", handler.SwaggerUI)
	mux.HandleFunc("GET /docs/", handler.SwaggerUI)
}

func registerMatchRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("GET /market", handler.ListMarket)
	mux.HandleFunc("GET /v1/market", handler.ListMarket)
	mux.HandleFunc("GET /match/{matchID}", handler.GetMatch)
	mux.HandleFunc("GET /v1/match/{matchID}", handler.GetMatch)
}
