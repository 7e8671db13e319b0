package web

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/conveyorci/conveyor/internal/config"
	"github.com/conveyorci/conveyor/internal/controllers"
	"github.com/conveyorci/conveyor/internal/engine"
	internalmodels "github.com/conveyorci/conveyor/internal/models"
	"github.com/conveyorci/conveyor/internal/repository"
	"github.com/conveyorci/conveyor/pkg/conveyor/domain"
	"github.com/conveyorci/conveyor/pkg/conveyor/models"

	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type WebController struct {
	controllers.AuthController
	manager  *engine.BuildManager
	userRepo engine.UserRepo
}

type buildRow struct {
	ID             int64
	ExternalID     string
	PipelineName   string
	BusinessKey    string
	Status         string
	Stage          string
	RunnerGroup    string
	NextActivation string
	Created        string
	Modified       string
}

type searchResultsVM struct {
	Builds       []buildRow
	Results      int
	Offset       int64
	Limit        int64
	Q            string
	Status       string
	Stage        string
	PipelineName string
	RunnerGroup  string
	PrevOffset   int64
	NextOffset   int64
}

type searchPageData struct {
	Title       string
	CurrentPath string
	ResultsData searchResultsVM
	Pipelines   []string
}

type RunnerModel struct {
	ID        int64
	Group     string
	Host      string
	StartedAt string
	LastAlive string
	CssClass  string
}

func NewWebController(manager *engine.BuildManager, userRepo engine.UserRepo) *WebController {
	return &WebController{manager: manager, userRepo: userRepo, AuthController: controllers.AuthController{
		UserRepo: userRepo,
	}}
}

func hasPrefix(s, prefix string) bool { return strings.HasPrefix(s, prefix) }

func friendlyTimeAgo(t time.Time) string {
	dur := time.Since(t)
	if dur < 0 {
		dur = 0
	}
	switch {
	case dur < time.Minute:
		return fmt.Sprintf("%ds ago", int(dur.Seconds()))
	case dur < time.Hour:
		return fmt.Sprintf("%dm ago", int(dur.Minutes()))
	case dur < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(dur.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(dur.Hours()/24))
	}
}

func statusCssClass(lastActive time.Time) string {
	if time.Since(lastActive) > 2*time.Minute {
		return "stale"
	}
	return "active"
}

func getNextActivationString(b domain.Build) string {
	var nextAct string
	if b.Status == models.StatusFinished || b.Status == models.StatusFailed {
		nextAct = "-"
	} else if b.NextActivation.Valid {
		t := b.NextActivation.Time.Local()
		if time.Now().Before(t) {
			// future: show "in X"
			dur := time.Until(t)
			if dur < 0 {
				dur = 0
			}
			if dur < time.Minute {
				nextAct = fmt.Sprintf("in %ds", int(dur.Seconds()))
			} else if dur < time.Hour {
				nextAct = fmt.Sprintf("in %dm", int(dur.Minutes()))
			} else if dur < 24*time.Hour {
				nextAct = fmt.Sprintf("in %dh", int(dur.Hours()))
			} else {
				nextAct = fmt.Sprintf("in %dd", int(dur.Hours()/24))
			}
		} else {
			nextAct = friendlyTimeAgo(t)
		}
	} else {
		nextAct = "-"
	}
	return nextAct
}

func mapBuildRow(b domain.Build) buildRow {
	return buildRow{
		ID:             b.ID,
		ExternalID:     b.ExternalID,
		PipelineName:   b.PipelineName,
		BusinessKey:    b.BusinessKey,
		Status:         b.Status,
		Stage:          b.Stage,
		RunnerGroup:    b.RunnerGroup,
		NextActivation: getNextActivationString(b),
		Created:        b.Created.Local().Format("2006-01-02 15:04:05"),
		Modified:       b.Modified.Local().Format("2006-01-02 15:04:05"),
	}
}

func (wc *WebController) render(w http.ResponseWriter, name string, data any, files ...string) {
	tmpl, err := template.New("").Funcs(template.FuncMap{"hasPrefix": hasPrefix}).ParseFS(templatesFS, files...)
	if err != nil {
		slog.Error("Failed to parse template", "template", name, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := tmpl.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("Failed to execute template", "template", name, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handler renders the home dashboard with the build overview and queues.
func (wc *WebController) handler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	overview, err := wc.manager.Overview()
	if err != nil {
		slog.Error("Failed to load overview", "error", err)
		http.Error(w, "Failed to load", http.StatusInternalServerError)
		return
	}
	executing, err := wc.manager.TopExecuting(10)
	if err != nil {
		slog.Error("Failed to load executing builds", "error", err)
		http.Error(w, "Failed to load", http.StatusInternalServerError)
		return
	}
	next, err := wc.manager.NextToExecute(10)
	if err != nil {
		slog.Error("Failed to load upcoming builds", "error", err)
		http.Error(w, "Failed to load", http.StatusInternalServerError)
		return
	}

	executingRows := make([]buildRow, 0)
	if executing != nil {
		for _, b := range *executing {
			executingRows = append(executingRows, mapBuildRow(b))
		}
	}
	nextRows := make([]buildRow, 0)
	if next != nil {
		for _, b := range *next {
			nextRows = append(nextRows, mapBuildRow(b))
		}
	}

	data := struct {
		Title       string
		CurrentPath string
		Overview    []repository.BuildOverviewRow
		Executing   []buildRow
		Next        []buildRow
	}{
		Title:       "Dashboard",
		CurrentPath: r.URL.Path,
		Overview:    overview,
		Executing:   executingRows,
		Next:        nextRows,
	}
	wc.render(w, "home", data,
		"templates/fragments/header.html",
		"templates/fragments/nav.html",
		"templates/home.html")
}

// searchPageHandler renders the build search page with an initial result set.
func (wc *WebController) searchPageHandler(w http.ResponseWriter, r *http.Request) {
	pipelines := make([]string, 0)
	if defs, err := wc.manager.ListPipelineDefinitions(); err == nil && defs != nil {
		for _, d := range *defs {
			pipelines = append(pipelines, d.Name)
		}
	}

	data := searchPageData{
		Title:       "Builds",
		CurrentPath: r.URL.Path,
		ResultsData: wc.searchResults(r),
		Pipelines:   pipelines,
	}
	wc.render(w, "search", data,
		"templates/fragments/header.html",
		"templates/fragments/nav.html",
		"templates/search/search.html",
		"templates/search/results.html")
}

// searchResultsHandler returns only the results fragment
func (wc *WebController) searchResultsHandler(w http.ResponseWriter, r *http.Request) {
	wc.render(w, "search_results", wc.searchResults(r),
		"templates/search/results.html")
}

func (wc *WebController) searchResults(r *http.Request) searchResultsVM {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	status := r.URL.Query().Get("status")
	stage := r.URL.Query().Get("stage")
	pipelineName := r.URL.Query().Get("pipeline")
	runnerGroup := r.URL.Query().Get("runnerGroup")
	limit, _ := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)
	offset, _ := strconv.ParseInt(r.URL.Query().Get("offset"), 10, 64)
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	req := internalmodels.SearchBuildRequest{
		Status:       status,
		Stage:        stage,
		PipelineName: pipelineName,
		RunnerGroup:  runnerGroup,
		Limit:        limit,
		Offset:       offset,
	}
	// free text matches either external id or business key
	if q != "" {
		req.ExternalID = q
		req.BusinessKey = q
	}

	rows := make([]buildRow, 0)
	results, err := wc.manager.SearchBuilds(req)
	if err != nil {
		slog.Error("Failed to search builds", "error", err)
	} else if results != nil {
		for _, b := range *results {
			rows = append(rows, mapBuildRow(b))
		}
	}

	prevOffset := offset - limit
	if prevOffset < 0 {
		prevOffset = 0
	}
	nextOffset := offset + limit

	return searchResultsVM{
		Builds:       rows,
		Results:      len(rows),
		Offset:       offset,
		Limit:        limit,
		Q:            q,
		Status:       status,
		Stage:        stage,
		PipelineName: pipelineName,
		RunnerGroup:  runnerGroup,
		PrevOffset:   prevOffset,
		NextOffset:   nextOffset,
	}
}

// buildDetailsHandler renders one build with its variables and action log.
func (wc *WebController) buildDetailsHandler(w http.ResponseWriter, r *http.Request) {
	idStr := r.PathValue("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	b, err := wc.manager.BuildRepo.FindByID(id)
	if err != nil || b == nil {
		http.Error(w, "build not found", http.StatusNotFound)
		return
	}
	actions, err := wc.manager.BuildActionRepo.FindAllByBuildID(id)
	if err != nil {
		slog.Error("Failed to load build actions", "build_id", id, "error", err)
		http.Error(w, "Failed to load", http.StatusInternalServerError)
		return
	}

	buildVars := make(map[string]string)
	if b.BuildVars.Valid && b.BuildVars.String != "" {
		if err := json.Unmarshal([]byte(b.BuildVars.String), &buildVars); err != nil {
			slog.Warn("Failed to parse build vars", "build_id", id, "error", err)
		}
	}

	type actionVM struct {
		ID             int64
		Type           string
		Name           string
		Text           string
		ExecutionCount int
		DateTime       string
	}
	actionRows := make([]actionVM, 0)
	if actions != nil {
		for _, a := range *actions {
			actionRows = append(actionRows, actionVM{
				ID:             a.ID,
				Type:           a.Type,
				Name:           a.Name,
				Text:           a.Text,
				ExecutionCount: a.ExecutionCount,
				DateTime:       a.DateTime.Local().Format("2006-01-02 15:04:05"),
			})
		}
	}

	data := struct {
		Title       string
		CurrentPath string
		Build       buildRow
		Vars        map[string]string
		Actions     []actionVM
	}{
		Title:       fmt.Sprintf("Build %d", id),
		CurrentPath: r.URL.Path,
		Build:       mapBuildRow(*b),
		Vars:        buildVars,
		Actions:     actionRows,
	}
	wc.render(w, "build_details", data,
		"templates/fragments/header.html",
		"templates/fragments/nav.html",
		"templates/builds/details.html")
}

func (wc *WebController) runnersHandler(w http.ResponseWriter, r *http.Request) {
	runners, err := wc.manager.ListRunners(50)
	if err != nil {
		slog.Error("Failed to list runners", "error", err)
		http.Error(w, "Failed to load runners", http.StatusInternalServerError)
		return
	}
	rows := make([]RunnerModel, 0, len(runners))
	for _, e := range runners {
		rows = append(rows, RunnerModel{
			ID:        e.ID,
			Group:     config.GetSystemSettingString(config.ENGINE_RUNNER_GROUP),
			Host:      e.Name,
			StartedAt: e.Started.Local().Format("2006-01-02 15:04:05"),
			LastAlive: friendlyTimeAgo(e.LastActive.Local()),
			CssClass:  statusCssClass(e.LastActive.Local()),
		})
	}
	data := struct {
		Title       string
		CurrentPath string
		Runners     []RunnerModel
	}{
		Title:       "Runners",
		CurrentPath: r.URL.Path,
		Runners:     rows,
	}
	wc.render(w, "runners", data,
		"templates/fragments/header.html",
		"templates/fragments/nav.html",
		"templates/runners/runners.html")
}

// pipelinesHandler lists the registered pipeline definitions.
func (wc *WebController) pipelinesHandler(w http.ResponseWriter, r *http.Request) {
	defs, err := wc.manager.ListPipelineDefinitions()
	if err != nil {
		slog.Error("Failed to list pipeline definitions", "error", err)
		http.Error(w, "Failed to load pipelines", http.StatusInternalServerError)
		return
	}
	type defVM struct {
		Name        string
		Description string
		Updated     string
	}
	rows := make([]defVM, 0)
	if defs != nil {
		for _, d := range *defs {
			rows = append(rows, defVM{
				Name:        d.Name,
				Description: d.Description,
				Updated:     d.Updated.Local().Format("2006-01-02 15:04:05"),
			})
		}
	}
	data := struct {
		Title       string
		CurrentPath string
		Pipelines   []defVM
	}{
		Title:       "Pipelines",
		CurrentPath: r.URL.Path,
		Pipelines:   rows,
	}
	wc.render(w, "pipelines", data,
		"templates/fragments/header.html",
		"templates/fragments/nav.html",
		"templates/pipelines/pipelines.html")
}

// pipelineByNameHandler shows one pipeline with its mermaid flow chart and
// an overview of its builds per job.
func (wc *WebController) pipelineByNameHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	def, err := wc.manager.GetPipelineDefinitionByName(name)
	if err != nil || def == nil {
		http.Error(w, "pipeline not found", http.StatusNotFound)
		return
	}
	overview, err := wc.manager.PipelineOverview(name)
	if err != nil {
		slog.Error("Failed to load pipeline overview", "pipeline", name, "error", err)
		http.Error(w, "Failed to load", http.StatusInternalServerError)
		return
	}
	data := struct {
		Title       string
		CurrentPath string
		Name        string
		Description string
		FlowChart   string
		Overview    []repository.PipelineStageRow
	}{
		Title:       def.Name,
		CurrentPath: r.URL.Path,
		Name:        def.Name,
		Description: def.Description,
		FlowChart:   def.FlowChart,
		Overview:    overview,
	}
	wc.render(w, "pipeline_details", data,
		"templates/fragments/header.html",
		"templates/fragments/nav.html",
		"templates/pipelines/details.html")
}

// --- Authentication helpers and handlers ---

func (wc *WebController) renderLogin(w http.ResponseWriter, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	wc.render(w, "login", data,
		"templates/fragments/header.html",
		"templates/login.html")
}

func (wc *WebController) loginPageHandler(w http.ResponseWriter, r *http.Request) {
	wc.renderLogin(w, map[string]any{"Title": "Login"})
}

func (wc *WebController) loginSubmitHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		wc.renderLogin(w, map[string]any{"Error": "Invalid form"})
		return
	}
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	if username == "" || password == "" {
		w.WriteHeader(http.StatusUnauthorized)
		wc.renderLogin(w, map[string]any{"Error": "Username and password are required"})
		return
	}
	u, err := wc.userRepo.FindByUsername(username)
	if err != nil {
		slog.Error("FindByUsername failed", "error", err)
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}
	if u == nil {
		w.WriteHeader(http.StatusUnauthorized)
		wc.renderLogin(w, map[string]any{"Error": "Invalid username or password"})
		return
	}
	// Compare bcrypt hashed password
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		wc.renderLogin(w, map[string]any{"Error": "Invalid username or password"})
		return
	}
	// Generate session id
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		slog.Error("rand.Read failed", "error", err)
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}
	sessionID := hex.EncodeToString(buf)
	expiryHours := config.GetSystemSettingInteger(config.WEB_SESSION_EXPIRY_HOURS)
	expires := time.Now().Add(time.Duration(expiryHours) * time.Hour)
	if err := wc.userRepo.UpdateSession(u.ID, sessionID, expires); err != nil {
		slog.Error("UpdateSession failed", "error", err)
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}
	// Set cookie
	http.SetCookie(w, &http.Cookie{
		Name:     "sessionId",
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   false,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// logoutHandler clears the current user's session and redirects to the login page.
func (wc *WebController) logoutHandler(w http.ResponseWriter, r *http.Request) {
	// Get session cookie if exists
	c, err := r.Cookie("sessionId")
	if err == nil && c.Value != "" {
		// Best-effort clear in DB
		if err := wc.userRepo.ClearSessionBySessionID(c.Value); err != nil {
			slog.Warn("Failed to clear session in DB during logout", "error", err)
		}
		// Expire cookie
		http.SetCookie(w, &http.Cookie{
			Name:     "sessionId",
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			Secure:   false,
			SameSite: http.SameSiteLaxMode,
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
		})
	}
	// Always redirect to login
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
