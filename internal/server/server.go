// Package server is the composition root: it builds the store, the outside
// collaborators, the services and the handlers, wires them to routes, and
// runs the HTTP server until it is told to stop.
//
// DEPENDENCY FLOW:
//
//	config.Config → OpenStore → repository.Store
//	              → image host, geocoder, mailer, GitHub, worker pool
//	              → services → handlers → chi routes
//
// Each layer only receives what it needs. Services see repository
// interfaces, never the concrete sqlite or mongo types, and handlers see
// services, never the store.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/skillbarter/internal/auth"
	"github.com/sakif/skillbarter/internal/config"
	"github.com/sakif/skillbarter/internal/geo"
	"github.com/sakif/skillbarter/internal/handler"
	"github.com/sakif/skillbarter/internal/imagehost"
	"github.com/sakif/skillbarter/internal/mailer"
	"github.com/sakif/skillbarter/internal/middleware"
	"github.com/sakif/skillbarter/internal/repository"
	mongoRepo "github.com/sakif/skillbarter/internal/repository/mongodb"
	sqliteRepo "github.com/sakif/skillbarter/internal/repository/sqlite"
	"github.com/sakif/skillbarter/internal/service"
	"github.com/sakif/skillbarter/internal/validation"
	"github.com/sakif/skillbarter/internal/worker"
)

// uploadsPrefix is where locally stored images are served from.
const uploadsPrefix = "/uploads"

// Server owns the router and every resource that must be released on
// shutdown: the store and the background worker pool.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	store  repository.Store
	pool   *worker.Pool
}

// OpenStore connects to the backend cfg selects. The caller closes it.
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.Store.Kind {
	case config.StoreMongo:
		db, err := mongoRepo.New(ctx, cfg.Store.MongoURI, cfg.Store.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("opening mongo store: %w", err)
		}
		return db, nil
	default:
		if dir := filepath.Dir(cfg.Store.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}
		db, err := sqliteRepo.New(cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return db, nil
	}
}

// New builds the server around an open store. The server takes ownership
// of store and closes it when Start returns or when New fails.
func New(cfg *config.Config, store repository.Store, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
		pool: worker.NewPool(worker.Config{
			Workers:     cfg.Workers.Count,
			QueueSize:   cfg.Workers.QueueSize,
			TaskTimeout: cfg.Workers.TaskTimeout,
		}, logger),
	}

	if err := s.setupRoutes(); err != nil {
		store.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// collaborators picks the outside services cfg enables, falling back to
// local stand-ins so a bare development setup still runs.
type collaborators struct {
	images imagehost.Host
	disk   *imagehost.Disk
	geo    geo.Resolver
	mail   mailer.Sender
	github *auth.GitHubProvider
}

func (s *Server) buildCollaborators() (*collaborators, error) {
	c := &collaborators{}
	cfg := s.config

	if cfg.Images.CloudName != "" {
		cld, err := imagehost.NewCloudinary(cfg.Images.CloudName, cfg.Images.APIKey, cfg.Images.APISecret, cfg.Images.Folder)
		if err != nil {
			return nil, fmt.Errorf("creating cloudinary host: %w", err)
		}
		c.images = cld
	} else {
		disk, err := imagehost.NewDisk(cfg.Images.UploadDir, uploadsPrefix)
		if err != nil {
			return nil, err
		}
		c.images, c.disk = disk, disk
		s.logger.Warn("no cloudinary account configured, storing images on disk",
			slog.String("dir", cfg.Images.UploadDir))
	}

	if cfg.Maps.APIKey != "" {
		g, err := geo.NewGoogle(cfg.Maps.APIKey)
		if err != nil {
			return nil, fmt.Errorf("creating geocoder: %w", err)
		}
		c.geo = g
	} else {
		c.geo = geo.CoordinateResolver{}
	}

	if cfg.SMTP.Host != "" {
		m, err := mailer.NewSMTP(mailer.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			SSL:      cfg.SMTP.SSL,
		})
		if err != nil {
			return nil, fmt.Errorf("creating mailer: %w", err)
		}
		c.mail = m
	} else {
		c.mail = mailer.NewLog(s.logger)
	}

	if cfg.GitHub.ClientID != "" {
		c.github = auth.NewGitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHub.CallbackURL)
	}
	return c, nil
}

// setupRoutes configures middleware and routes.
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID  assigns the id the logger prints
//  2. RealIP     reads the client address from proxy headers
//  3. Logger     logs each request with timing
//  4. Recoverer  turns a panic into a 500
//  5. Timeout    cancels the request context after RequestTimeout
func (s *Server) setupRoutes() error {
	cfg := s.config

	c, err := s.buildCollaborators()
	if err != nil {
		return err
	}
	validator, err := validation.New()
	if err != nil {
		return fmt.Errorf("loading schemas: %w", err)
	}
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenDuration)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	render, err := handler.NewRenderer(cfg.TemplateDir, c.images, s.logger)
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	// === Services ===
	hasher := auth.NewHasher()
	history := service.NewHistoryService(s.store, s.store, s.pool, s.logger)
	skills := service.NewSkillService(s.store, s.store, s.logger)
	profiles := service.NewProfileService(s.store, s.store, validator, c.geo, c.images, history, s.logger)
	portfolio := service.NewPortfolioService(s.store, s.store, s.store, c.images, s.logger)
	ratings := service.NewRatingService(s.store, s.store, validator, s.logger)
	accounts := service.NewAccountService(s.store, hasher, validator, c.geo, s.logger)
	passwords := service.NewPasswordService(s.store, hasher, validator, c.mail, s.pool, cfg.BaseURL, s.logger)

	// === Handlers ===
	cookies := handler.NewCookieIssuer(tokens, !cfg.Development())
	pageH := handler.NewPageHandler(skills, profiles, history, render, s.logger)
	profileH := handler.NewProfileHandler(profiles, cookies, s.logger)
	portfolioH := handler.NewPortfolioHandler(portfolio, s.logger)
	ratingH := handler.NewRatingHandler(ratings, s.logger)
	skillH := handler.NewSkillHandler(skills, s.logger)
	accountH := handler.NewAccountHandler(accounts, passwords, cookies, render, s.logger)

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		s.router.Use(chimiddleware.Timeout(cfg.RequestTimeout))
	}

	// === Static Files ===
	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDir))))
	if c.disk != nil {
		s.router.Handle(uploadsPrefix+"/*", http.StripPrefix(uploadsPrefix+"/", http.FileServer(http.Dir(cfg.Images.UploadDir))))
	}

	// === Public routes (session attached when present) ===
	s.router.Group(func(r chi.Router) {
		r.Use(auth.OptionalAuth(tokens))

		r.Get("/", pageH.HandleHome)
		r.Get("/category/{name}", pageH.HandleCategory)
		r.Get("/profile", pageH.HandleProfile)
		r.Get("/portfolio", portfolioH.HandleGet)
		r.Get("/api/users/{username}", pageH.HandleUserJSON)
		r.Get("/404", pageH.HandleNotFound)

		r.Get("/login", accountH.HandleLoginPage)
		r.Get("/signup", accountH.HandleSignUpPage)
		r.Post("/submitUser", accountH.HandleSignUp)
		r.Post("/validateLogin", accountH.HandleLogIn)
		r.Get("/logout", accountH.HandleLogOut)

		r.Get("/forgot", accountH.HandleForgotPage)
		r.Post("/sendResetEmail", accountH.HandleSendResetEmail)
		r.Get("/passwordReset/{token}", accountH.HandleResetPage)
		r.Post("/passwordUpdate", accountH.HandlePasswordUpdate)

		r.NotFound(pageH.HandleNotFound)
	})

	// === GitHub sign-in (when configured) ===
	if c.github != nil {
		authH := handler.NewAuthHandler(c.github, accounts, cookies, s.logger)
		s.router.Get("/auth/github/login", authH.HandleGitHubLogin)
		s.router.Get("/auth/github/callback", authH.HandleGitHubCallback)
	}

	// === Signed-in routes ===
	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))

		r.Get("/skill/{name}", pageH.HandleSkill)
		r.Get("/history/{filter}", pageH.HandleHistory)
		r.Get("/api/me", accountH.HandleMe)

		r.Post("/add-skill/{skillID}", skillH.HandleAdd)
		r.Post("/remove-skill/{skillID}", skillH.HandleRemove)
		r.Post("/editProfile/upload", profileH.HandleUpdate)
		r.Post("/editPortfolio/upload", portfolioH.HandleUpdate)
		r.Post("/submit-rating", ratingH.HandleSubmit)
	})

	return nil
}

// Start runs the HTTP server and the worker pool until SIGINT or SIGTERM.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting connections and let in-flight requests finish (30s)
//  2. Drain the worker pool so queued history writes and mails complete
//  3. Close the store
func (s *Server) Start() error {
	defer s.store.Close()

	s.pool.Start()
	defer s.pool.Stop()

	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.String("addr", s.config.Addr),
			slog.String("url", s.config.BaseURL),
			slog.String("store", s.config.Store.Kind),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
