// Package app provides the main Sagasu application
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"maunium.net/go/mautrix/event"
	_ "modernc.org/sqlite"

	"github.com/bdobrica/Sagasu/internal/sagasu/commands"
	"github.com/bdobrica/Sagasu/internal/sagasu/directory"
	"github.com/bdobrica/Sagasu/internal/sagasu/intent"
	"github.com/bdobrica/Sagasu/internal/sagasu/matrix"
	"github.com/bdobrica/Sagasu/internal/sagasu/pending"
	"github.com/bdobrica/Sagasu/internal/sagasu/query"
	"github.com/bdobrica/Sagasu/internal/sagasu/sonar"
)

// Config holds application configuration
type Config struct {
	DatabasePath string
	Matrix       matrix.Config
	Sonar        sonar.Config

	// HTTPAddr is the TCP address for the optional health/status HTTP server
	// (e.g. ":8080"). When empty the server is disabled.
	HTTPAddr string

	// KeywordsPath points to an optional YAML file overriding the built-in
	// classification keyword lists.
	KeywordsPath string

	// DirectoryTTL bounds how long a member-directory snapshot is reused.
	// Zero selects the directory package default.
	DirectoryTTL time.Duration

	// MaxPages caps any single paginated scan.  Zero means unbounded.
	MaxPages int

	// NLPAPIKey enables the LLM classification fallback.  When empty the
	// classifier runs on rules alone.
	NLPAPIKey string

	// NLPModel and NLPEndpoint override the fallback provider defaults.
	NLPModel    string
	NLPEndpoint string
}

// App is the main Sagasu application
type App struct {
	config       *Config
	db           *sql.DB
	matrix       *matrix.Client
	router       *commands.Router
	handlers     *commands.Handlers
	cache        *directory.Cache
	healthServer *HealthServer
}

// New creates a new Sagasu application
func New(config *Config) (*App, error) {
	slog.Info("opening database", "path", config.DatabasePath)
	db, err := openDB(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize Matrix client.
	// Inject the DB so the client can persist the sync token across restarts.
	matrixCfg := config.Matrix
	matrixCfg.DB = db
	slog.Info("connecting to Matrix", "homeserver", matrixCfg.Homeserver)
	matrixClient, err := matrix.New(&matrixCfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize Matrix client: %w", err)
	}

	// Keyword lists: built-in defaults unless an override file is given.
	keywords := intent.DefaultKeywords()
	if config.KeywordsPath != "" {
		keywords, err = intent.LoadKeywords(config.KeywordsPath)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to load keywords from %s: %w", config.KeywordsPath, err)
		}
		slog.Info("loaded keyword overrides", "path", config.KeywordsPath)
	}

	// Intent classifier: rules first, LLM fallback only when a key is set.
	var provider intent.Provider
	if config.NLPAPIKey != "" {
		provider = intent.NewProvider(intent.ProviderConfig{
			APIKey:  config.NLPAPIKey,
			BaseURL: config.NLPEndpoint,
			Model:   config.NLPModel,
		})
		slog.Info("NLP fallback provider ready", "model", config.NLPModel)
	} else {
		slog.Info("NLP: no API key configured; rule-based classification only")
	}
	classifier := intent.NewClassifier(provider, keywords)

	// Inventory pipeline.
	client := sonar.New(config.Sonar)
	cache := directory.NewCache(client, config.DirectoryTTL)
	resolver := directory.NewResolver(cache, config.MaxPages)
	agg := query.New(client, resolver, keywords, config.MaxPages)

	// Command router and handlers.
	router := commands.NewRouter("/asset")
	responder := &matrixResponder{client: matrixClient}
	handlers := commands.NewHandlers(classifier, agg, pending.NewStore(0), responder)
	handlers.RegisterAll(router)

	app := &App{
		config:   config,
		db:       db,
		matrix:   matrixClient,
		router:   router,
		handlers: handlers,
		cache:    cache,
	}

	if config.HTTPAddr != "" {
		app.healthServer = NewHealthServer(config.HTTPAddr, cache)
	}

	return app, nil
}

// openDB opens the SQLite database and ensures the sync-state table exists.
func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// mautrix sync tokens survive restarts through this table.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS matrix_sync_state (
			user_id TEXT NOT NULL,
			key     TEXT NOT NULL,
			value   TEXT NOT NULL,
			PRIMARY KEY (user_id, key)
		)
	`)
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Run starts the application and blocks until a shutdown signal arrives.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.healthServer != nil {
		if err := a.healthServer.Start(ctx); err != nil {
			return err
		}
	}

	if err := a.matrix.Start(ctx, a.handleMessage); err != nil {
		return fmt.Errorf("failed to start Matrix client: %w", err)
	}
	slog.Info("Sagasu is listening", "rooms", len(a.config.Matrix.AdminRooms))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig.String())

	return nil
}

// Stop releases all resources.
func (a *App) Stop() {
	if a.matrix != nil {
		a.matrix.Stop()
	}
	if a.healthServer != nil {
		a.healthServer.Stop()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// handleMessage routes an incoming room message through the command router.
func (a *App) handleMessage(ctx context.Context, evt *event.Event) {
	body := evt.Content.AsMessage().Body
	err := a.router.Route(ctx, body, evt)
	if err == nil {
		return
	}
	if errors.Is(err, commands.ErrNotACommand) {
		return
	}
	slog.Error("command failed", "room", evt.RoomID, "sender", evt.Sender, "err", err)
	if sendErr := a.matrix.SendNotice(evt.RoomID.String(), "Something went wrong handling that command."); sendErr != nil {
		slog.Warn("failed to send error notice", "room", evt.RoomID, "err", sendErr)
	}
}

// matrixResponder adapts the Matrix client to the commands.Responder surface.
type matrixResponder struct {
	client *matrix.Client
}

func (r *matrixResponder) Reply(roomID, eventID, message string) error {
	return r.client.ReplyToMessage(roomID, eventID, message)
}

func (r *matrixResponder) ReplyHTML(roomID, html, plaintext string) error {
	return r.client.SendFormattedMessage(roomID, html, plaintext)
}

func (r *matrixResponder) Notice(roomID, message string) error {
	return r.client.SendNotice(roomID, message)
}

func (r *matrixResponder) UploadCSV(roomID, filename string, data []byte) error {
	return r.client.UploadCSV(roomID, filename, data)
}

func (r *matrixResponder) Typing(roomID string, on bool) {
	if err := r.client.SetTyping(roomID, on, commands.TypingTimeout); err != nil {
		slog.Debug("failed to set typing indicator", "room", roomID, "err", err)
	}
}
