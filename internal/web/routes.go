package web

import (
	"net/http"
)

func (wc *WebController) RegisterRoutes(mux *http.ServeMux) {

	// Public routes
	mux.HandleFunc("GET /login", wc.loginPageHandler)
	mux.HandleFunc("POST /login", wc.loginSubmitHandler)

	// Protected routes
	mux.HandleFunc("/", wc.RequireAuth(wc.handler))
	mux.HandleFunc("POST /logout", wc.RequireAuth(wc.logoutHandler))
	// Search page and results
	mux.HandleFunc("GET /search", wc.RequireAuth(wc.searchPageHandler))
	mux.HandleFunc("GET /search/results", wc.RequireAuth(wc.searchResultsHandler))
	mux.HandleFunc("GET /details/{id}", wc.RequireAuth(wc.buildDetailsHandler))
	// Runners page
	mux.HandleFunc("GET /runners", wc.RequireAuth(wc.runnersHandler))
	// Pipelines list and detail
	mux.HandleFunc("GET /pipelines", wc.RequireAuth(wc.pipelinesHandler))
	mux.HandleFunc("GET /pipelines/{name}", wc.RequireAuth(wc.pipelineByNameHandler))
}
