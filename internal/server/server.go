// Package server assembles the in-memory demo backend: REST envelope API,
// refresh cookie auth and the live channel hub.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kacharaalert/internal/config"
	"github.com/kacharaalert/internal/handler"
	"github.com/kacharaalert/internal/logger"
	"github.com/kacharaalert/internal/middleware"
	"github.com/kacharaalert/internal/repository"
	"github.com/kacharaalert/internal/service"
	"github.com/kacharaalert/internal/storage"
	"github.com/kacharaalert/internal/ws"
)

// Server is one demo backend instance.
type Server struct {
	DB  *repository.DB
	Hub *ws.Hub

	handler http.Handler
	srv     *http.Server

	hubCancel context.CancelFunc
	wg        sync.WaitGroup
}

// New builds the backend on store and starts its hub. The caller must call
// Shutdown.
func New(ctx context.Context, cfg config.DemoConfig, live config.LiveConfig, store storage.Store) (*Server, error) {
	db := repository.NewDB()
	if cfg.Seed {
		if err := repository.Seed(ctx, db); err != nil {
			return nil, fmt.Errorf("seed demo data: %w", err)
		}
	}

	userRepo := repository.NewUserRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	ratingRepo := repository.NewRatingRepository(db)
	tokens := service.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, store)

	hub := ws.NewHub(msgRepo, live.MaxWSConnections, ws.Limits{
		WriteWait:      live.WriteTimeout,
		PongWait:       live.PongTimeout,
		MaxMessageSize: live.MaxMessageSize,
		SendBufferSize: live.SendBufferSize,
	})
	hubCtx, hubCancel := context.WithCancel(context.WithoutCancel(ctx))

	s := &Server{DB: db, Hub: hub, hubCancel: hubCancel}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		hub.Run(hubCtx)
	}()

	s.handler = router(cfg, routes{
		auth:     handler.NewAuthHandler(userRepo, tokens, store, cfg.CookieSecure),
		users:    handler.NewUserHandler(userRepo, store),
		invoices: handler.NewInvoiceHandler(invoiceRepo),
		messages: handler.NewMessageHandler(msgRepo, hub),
		ratings:  handler.NewRatingHandler(ratingRepo),
		ws:       handler.NewWSHandler(hub, cfg.CORSAllowedOrigins),
		tokens:   tokens,
	})
	s.srv = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s, nil
}

type routes struct {
	auth     *handler.AuthHandler
	users    *handler.UserHandler
	invoices *handler.InvoiceHandler
	messages *handler.MessageHandler
	ratings  *handler.RatingHandler
	ws       *handler.WSHandler
	tokens   *service.TokenService
}

func allowedOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func router(cfg config.DemoConfig, h routes) http.Handler {
	limiter := middleware.NewRateLimiter()

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	// Compressing the upgrade response would hide http.Hijacker from the upgrader.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(limiter.ByIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/api/v1/users/{id}/profile-image", h.users.ProfileImage)

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(limiter.Auth).Post("/login", h.auth.Login)
		r.With(limiter.Auth).Post("/refresh", h.auth.Refresh)
		r.Post("/logout", h.auth.Logout)
		r.With(middleware.BearerAuth(h.tokens), middleware.RequireAdmin).Post("/user", h.auth.CreateUser)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerAuth(h.tokens))
		r.Use(limiter.ByUser)

		r.Get("/ws", h.ws.ServeWS)

		r.Get("/api/v1/users/me", h.users.GetProfile)
		r.Patch("/api/v1/users/me", h.users.UpdateProfile)
		r.Post("/api/v1/users/me/profile-image", h.users.UploadProfileImage)

		r.Get("/api/v1/invoices", h.invoices.ListOwn)
		r.Post("/api/v1/invoices/{id}/pay", h.invoices.Pay)

		r.Get("/api/v1/messages/contacts", h.messages.Contacts)
		r.Get("/api/v1/messages/{contactId}", h.messages.History)
		r.Post("/api/v1/messages/{contactId}", h.messages.Send)
		r.Patch("/api/v1/messages/{contactId}/{messageId}", h.messages.Edit)
		r.Delete("/api/v1/messages/{contactId}/{messageId}", h.messages.Delete)

		r.Get("/api/v1/service-ratings/summary", h.ratings.Summary)
		r.Post("/api/v1/service-ratings", h.ratings.Submit)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Get("/api/v1/admin/users", h.users.ListUsers)
			r.Get("/api/v1/admin/users/{id}", h.users.GetUser)
			r.Patch("/api/v1/admin/users/{id}/status", h.users.UpdateStatus)
			r.Delete("/api/v1/admin/users/{id}", h.users.DeleteUser)

			r.Get("/api/v1/invoices/all", h.invoices.ListAll)
			r.Post("/api/v1/invoices", h.invoices.Create)
			r.Patch("/api/v1/invoices/{id}/amount", h.invoices.UpdateAmount)
			r.Patch("/api/v1/invoices/{id}/late-fee", h.invoices.UpdateLateFee)
			r.Delete("/api/v1/invoices/{id}", h.invoices.Delete)
		})
	})
	return r
}

// Handler returns the root handler; tests mount it on httptest.
func (s *Server) Handler() http.Handler { return s.handler }

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	logger.Infof("demo backend listening on %s", ln.Addr())
	err := s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Start listens on addr in the background and returns the base URL.
func (s *Server) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen %s: %w", addr, err)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Serve(ln); err != nil {
			logger.Errorf("demo backend: %v", err)
		}
	}()
	return "http://" + ln.Addr().String(), nil
}

// Shutdown stops accepting requests, closes live connections and waits for
// the background goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	s.hubCancel()
	s.wg.Wait()
	return err
}
