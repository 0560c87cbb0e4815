package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yhaddad/go-relay/internal/ai"
	"github.com/yhaddad/go-relay/internal/auth"
	"github.com/yhaddad/go-relay/internal/router"
	"github.com/yhaddad/go-relay/internal/store"
	"github.com/yhaddad/go-relay/pkg/config"
	"github.com/yhaddad/go-relay/pkg/state"
	"github.com/yhaddad/go-relay/pkg/state/groupdir"
	"github.com/yhaddad/go-relay/pkg/state/sessionstore"
	"github.com/yhaddad/go-relay/pkg/transport"
)

var errShutdown = errors.New("server shutting down")

type App struct {
	logger   *slog.Logger
	config   *config.Config
	sessions state.SessionStore
	groups   state.GroupDirectory
	db       *store.Database
	blobs    *store.BlobStore
	router   *router.Router
	tokens   *auth.TokenIssuer

	listener net.Listener
	http     *http.Server
	wg       sync.WaitGroup

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config) (*App, error) {
	db, err := store.NewDatabase(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	blobs, err := store.NewBlobStore(cfg.Storage.BlobDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}

	sessions := sessionstore.NewInMemoryStore(logger)
	groups := groupdir.NewInMemoryDirectory(logger)
	if err := warmDirectory(db, groups); err != nil {
		return nil, fmt.Errorf("failed to load groups: %w", err)
	}

	tokens := auth.NewTokenIssuer(cfg.Server.Auth.JWTSecret, cfg.Server.Auth.TokenTTL)

	aiUserID, err := seedUsers(db, cfg.Server.Auth.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to seed accounts: %w", err)
	}

	var completer ai.Completer
	if cfg.AI.Enabled {
		completer, err = ai.NewAnthropicCompleter(cfg.AI.APIKey, cfg.AI.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to build AI bridge: %w", err)
		}
		logger.Info("AI bridge enabled", slog.String("model", cfg.AI.Model))
	}

	eventRouter := router.New(logger, router.Options{
		Sessions:    sessions,
		Groups:      groups,
		DB:          db,
		Blobs:       blobs,
		Tokens:      tokens,
		Completer:   completer,
		Trigger:     &ai.Trigger{Keyword: cfg.AI.Keyword},
		AIUserID:    aiUserID,
		HistoryPage: cfg.History.PageSize,
	})

	app := &App{
		logger:   logger,
		config:   cfg,
		sessions: sessions,
		groups:   groups,
		db:       db,
		blobs:    blobs,
		router:   eventRouter,
		tokens:   tokens,
		ctx:      rootCtx,
	}

	if cfg.Server.WSAddress != "" {
		app.http = &http.Server{
			Addr:    cfg.Server.WSAddress,
			Handler: app.gatewayMux(),
			BaseContext: func(l net.Listener) context.Context {
				return app.ctx
			},
		}
	}

	return app, nil
}

// warmDirectory mirrors persisted groups into the in-memory directory.
func warmDirectory(db *store.Database, groups state.GroupDirectory) error {
	persisted, members, err := db.AllGroups()
	if err != nil {
		return err
	}
	for _, g := range persisted {
		memberIDs := members[g.ID]
		if len(memberIDs) == 0 {
			// A group with no members cannot authorize anyone; skip it but
			// keep the row so an admin can repair it.
			continue
		}
		if _, err := groups.Create(g.ID, g.Name, g.Private, memberIDs); err != nil {
			return err
		}
	}
	return nil
}

// seedUsers ensures the reserved ai account and an initial admin exist.
// Returns the ai account's user id.
func seedUsers(db *store.Database, adminPassword string) (int64, error) {
	aiUser, err := db.UserByName("ai")
	var aiUserID int64
	switch {
	case err == nil:
		aiUserID = aiUser.ID
	case errors.Is(err, store.ErrNotFound):
		// The ai account never logs in; give it an unguessable password.
		hash, herr := auth.HashPassword(uuid.New().String())
		if herr != nil {
			return 0, herr
		}
		aiUserID, err = db.CreateUser("ai", hash, false)
		if err != nil {
			return 0, err
		}
	default:
		return 0, err
	}

	if _, err := db.UserByName("admin"); errors.Is(err, store.ErrNotFound) {
		hash, herr := auth.HashPassword(adminPassword)
		if herr != nil {
			return 0, herr
		}
		if _, err := db.CreateUser("admin", hash, true); err != nil {
			return 0, err
		}
	} else if err != nil {
		return 0, err
	}

	return aiUserID, nil
}

func (a *App) Run() error {
	ln, err := net.Listen("tcp", a.config.Server.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.config.Server.Address, err)
	}
	a.listener = ln

	go a.acceptLoop()
	a.logger.Info("Server starting", slog.String("addr", a.config.Server.Address))

	if a.http != nil {
		go func() {
			a.logger.Info("WebSocket gateway starting", slog.String("addr", a.http.Addr))
			if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
				a.logger.Error("gateway server failed", slog.Any("error", err))
			}
		}()
	}

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) acceptLoop() {
	for {
		netConn, err := a.listener.Accept()
		if err != nil {
			select {
			case <-a.ctx.Done():
				return
			default:
			}
			a.logger.Error("accept failed", slog.Any("error", err))
			return
		}
		a.handleConn(netConn)
	}
}

// handleConn wires a fresh TCP connection into the router. The connection
// starts unauthenticated; the login handler binds its session later.
func (a *App) handleConn(netConn net.Conn) {
	if limit := a.config.Server.ConnectionLimit; limit > 0 && a.router.ConnCount() >= limit {
		a.logger.Warn("connection limit reached, refusing connection",
			slog.String("remoteAddr", netConn.RemoteAddr().String()),
			slog.Int("limit", limit),
		)
		netConn.Close()
		return
	}

	conn := transport.NewConnection(
		a.ctx,
		&a.wg,
		netConn,
		transport.ConnectionConfig{
			ReadTimeout:  a.config.Transport.ReadTimeout,
			WriteTimeout: a.config.Transport.WriteTimeout,
			SendTimeout:  a.config.Transport.SendTimeout,
			MaxFrameSize: a.config.Transport.MaxFrameSize,
		},
		a.router.HandleMessage,
		nil,
		a.logger,
	)
	a.router.RegisterConn(conn)
	conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
		a.router.DeregisterConn(id)
	})
	conn.Run()
}

// graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")

	if a.listener != nil {
		a.listener.Close()
	}
	if a.http != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.http.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("gateway shutdown failed", slog.Any("error", err))
		}
	}

	a.logger.Info("Closing all active connections...")
	a.router.CloseAll(errShutdown)

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()

	if err := a.db.Close(); err != nil {
		a.logger.Error("database close failed", slog.Any("error", err))
	}
	a.logger.Info("Server shut down gracefully.")
	return nil
}
