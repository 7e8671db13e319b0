package conveyor

import (
	"context"
	"database/sql"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/conveyorci/conveyor/internal/config"
	"github.com/conveyorci/conveyor/internal/controllers"
	"github.com/conveyorci/conveyor/internal/engine"
	"github.com/conveyorci/conveyor/internal/migrations"
	"github.com/conveyorci/conveyor/internal/repository"
	"github.com/conveyorci/conveyor/internal/steps"
	"github.com/conveyorci/conveyor/internal/web"
	"github.com/conveyorci/conveyor/pkg/conveyor/core"
	"github.com/conveyorci/conveyor/pkg/conveyor/pipeline"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lmittmann/tint"

	_ "github.com/go-sql-driver/mysql"
	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// StepRegistry maps a step kind to a factory for its handler. The builtin
// "run" and "checkout" kinds are installed by Start; embedders add their own
// kinds with RegisterStepKind before calling Start.
var StepRegistry = map[string]func() core.StepHandler{}

// RegisterStepKind installs a custom step handler kind, available to
// pipeline steps through the "uses" field.
func RegisterStepKind(kind string, factory func() core.StepHandler) {
	StepRegistry[kind] = factory
}

// Start boots the build engine and HTTP server.
// Pipelines are loaded from CONVEYOR_PIPELINES_DIR and validated; a broken
// pipeline file stops startup rather than failing builds later.
// This call blocks until the HTTP server stops.
func Start(mux *http.ServeMux) error {

	databaseType := config.GetSystemSettingString(config.DATABASE_TYPE)
	if databaseType == "" || (databaseType != config.DATABASE_TYPE_POSTGRES && databaseType != config.DATABASE_TYPE_MYSQL && databaseType != config.DATABASE_TYPE_SQLLITE) {
		panic("CONVEYOR_DATABASE_TYPE must be set to one of the following values: POSTGRES, MYSQL, SQLLITE")
	}

	var db *sql.DB
	if databaseType == config.DATABASE_TYPE_POSTGRES {
		db = setupPostgresDatabase()
		defer db.Close()
	}
	if databaseType == config.DATABASE_TYPE_SQLLITE {
		db = setupSqlLiteDatabase()
		defer db.Close()
	}
	if databaseType == config.DATABASE_TYPE_MYSQL {
		db = setupMysqlDatabase()
		defer db.Close()
	}

	clock := core.NewRealClock()
	buildRepo := repository.NewBuildRepository(db, clock)
	buildActionRepo := repository.NewBuildActionRepository(db, clock)
	runnerRepo := repository.NewRunnerRepository(db)
	definitionRepo := repository.NewPipelineDefinitionRepository(db)
	userRepo := repository.NewUserRepository(db, clock)

	pipelinesDir := config.GetSystemSettingString(config.PIPELINES_DIR)
	pipelines, err := pipeline.LoadDir(pipelinesDir)
	if err != nil {
		slog.Error("Failed to load pipelines", "dir", pipelinesDir, "error", err)
		return err
	}
	slog.Info("Loaded pipelines", "dir", pipelinesDir, "count", len(pipelines))

	if _, ok := StepRegistry[pipeline.StepKindRun]; !ok {
		StepRegistry[pipeline.StepKindRun] = steps.NewRunStep
	}
	if _, ok := StepRegistry[pipeline.StepKindCheckout]; !ok {
		StepRegistry[pipeline.StepKindCheckout] = steps.NewCheckoutStep
	}

	manager := engine.NewBuildManager(buildRepo, buildActionRepo, runnerRepo, definitionRepo, pipelines, &StepRegistry, clock)

	dur, _ := time.ParseDuration(config.GetSystemSettingString(config.ENGINE_CHECK_DB_INTERVAL))
	go manager.StartEngine(context.Background(), dur)

	if mux == nil {
		mux = http.NewServeMux()
	}
	buildsController := controllers.NewBuildsController(buildRepo, buildActionRepo, manager, userRepo)
	buildsController.RegisterRoutes(mux)
	actionsController := controllers.NewActionsController(buildRepo, buildActionRepo, userRepo)
	actionsController.RegisterRoutes(mux)
	runnersController := controllers.NewRunnersController(runnerRepo, userRepo)
	runnersController.RegisterRoutes(mux)
	usersController := controllers.NewUsersController(userRepo)
	usersController.RegisterRoutes(mux)
	hooksController := controllers.NewHooksController(manager)
	hooksController.RegisterRoutes(mux)
	pipelinesController := controllers.NewPipelinesController(manager, userRepo)
	pipelinesController.RegisterRoutes(mux)
	webController := web.NewWebController(manager, userRepo)
	webController.RegisterRoutes(mux)

	addr := ":" + config.GetSystemSettingString(config.ENGINE_SERVER_WEB_PORT)
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		addr = v
	}
	slog.Info("Starting HTTP server", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("HTTP server failed", "error", err)
		return err
	}
	return nil
}

func setupPostgresDatabase() *sql.DB {
	dbURL := config.GetSystemSettingString(config.DATABASE_URL)
	if dbURL == "" {
		panic("CONVEYOR_DATABASE_URL must be set when using the POSTGRES database type")
	}
	slog.Info("Using Postgres database", "url", dbURL)
	slog.Info("Running migrations")
	if err := runMigrationsFromEmbed("postgres", dbURL); err != nil {
		slog.Error("DB migration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Opening Postgres database")
	dbPostgres, err := sql.Open("postgres", dbURL)
	if err != nil {
		slog.Error("DB connection failed", "error", err)
		os.Exit(1)
	}
	return dbPostgres
}

func setupSqlLiteDatabase() *sql.DB {
	fileName := config.GetSystemSettingString(config.DATABASE_SQLLITE_FILE_NAME)
	if fileName == "" {
		panic("DATABASE_SQLLITE_FILE_NAME must be set")
	}
	dbURL := "sqlite3://" + fileName
	slog.Info("Using SQLite database", "file", fileName)
	slog.Info("Running migrations")
	if err := runMigrationsFromEmbed("sqllite3", dbURL); err != nil {
		slog.Error("DB migration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Opening SQLite database")
	dbSqlLite, err := sql.Open("sqlite3", fileName)
	if err != nil {
		log.Fatalf("Failed to open SQLite DB: %v", err)
	}
	if err := dbSqlLite.Ping(); err != nil {
		log.Fatalf("Failed to ping SQLite DB: %v", err)
	}
	return dbSqlLite
}

func setupMysqlDatabase() *sql.DB {
	dbURL := config.GetSystemSettingString(config.DATABASE_URL)
	if dbURL == "" {
		panic("CONVEYOR_DATABASE_URL must be set when using the MYSQL database type")
	}
	// panic if url does not contain ?parseTime=true
	if !strings.Contains(dbURL, "parseTime=true") {
		panic("CONVEYOR_DATABASE_URL must contain 'parseTime=true' for MySQL")
	}
	// panic if url does not  start with mysql://
	if !strings.HasPrefix(dbURL, "mysql://") {
		panic("CONVEYOR_DATABASE_URL must start with 'mysql://' for MySQL")
	}

	slog.Info("Using MySQL database", "url", dbURL)
	slog.Info("Running migrations")
	if err := runMigrationsFromEmbed("mysql", dbURL); err != nil {
		slog.Error("DB migration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Opening MySQL database")
	//remove mysql:// prefix from url
	dbMysql, err := sql.Open("mysql", strings.Replace(dbURL, "mysql://", "", 1))
	if err != nil {
		slog.Error("DB connection failed", "error", err)
		os.Exit(1)
	}
	return dbMysql
}

func runMigrationsFromEmbed(migrationsPath string, dbURL string) error {
	sub, err := fs.Sub(migrations.FS, migrationsPath)
	if err != nil {
		return err
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func SetupLogger() {
	w := os.Stderr
	_ = slog.New(tint.NewHandler(w, nil))
	slog.SetDefault(slog.New(
		tint.NewHandler(w, &tint.Options{
			Level:      slog.LevelInfo,
			TimeFormat: time.RFC3339Nano,
		}),
	))
}
