package controllers

import "net/http"

// RegisterRoutes wires the HTTP routes for this controller.
func (c *BuildsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/builds", c.RequireAuth(c.handleCreateBuild))
	mux.HandleFunc("POST /api/builds/search", c.RequireAuth(c.handleSearchBuilds))
	mux.HandleFunc("GET /api/builds/{id}", c.RequireAuth(c.handleGetBuildById))
	mux.HandleFunc("GET /api/builds/byExternalId/{externalId}", c.RequireAuth(c.handleGetBuildByExternalId))
}
func (c *ActionsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/actions/byBuildId/{id}", c.RequireAuth(c.handleGetActionsForBuild))
}
func (c *RunnersController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/runners", c.RequireAuth(c.handleGetRunners))
}
func (c *PipelinesController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/pipelines", c.RequireAuth(c.handleGetPipelines))
	mux.HandleFunc("GET /api/pipelines/{name}", c.RequireAuth(c.handleGetPipelineByName))
}
func (c *UsersController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/users", c.RequireAuth(c.handleGetUsers))
	mux.HandleFunc("POST /api/users", c.RequireAuth(c.handleCreateUser))
	mux.HandleFunc("GET /api/users/{id}", c.RequireAuth(c.handleGetUserById))
	mux.HandleFunc("DELETE /api/users/{id}", c.RequireAuth(c.handleDeleteUser))
}

// Hooks authenticate with the shared secret, not RequireAuth.
func (c *HooksController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/hooks", c.handleHook)
}
