package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/planline/planline/internal/ai"
	"github.com/planline/planline/internal/auth"
	"github.com/planline/planline/internal/config"
	"github.com/planline/planline/internal/domain"
	apperrors "github.com/planline/planline/internal/errors"
	"github.com/planline/planline/internal/limiter"
	"github.com/planline/planline/internal/logger"
	"github.com/planline/planline/internal/realtime"
	"github.com/planline/planline/internal/storage"
	"github.com/planline/planline/internal/workers"
	"go.uber.org/zap"
)

// Deps carries everything the HTTP layer needs. All fields are required
// except Summarizer, which may be disabled.
type Deps struct {
	Config        *config.Config
	Users         *storage.UserStore
	Projects      *storage.ProjectStore
	Sprints       *storage.SprintStore
	Items         *storage.ItemStore
	Docs          *storage.CollabDocStore
	Notifications *storage.NotificationStore
	Logs          *storage.AuditStore
	Auth          *auth.Service
	Broadcaster   domain.Broadcaster
	Recorder      *workers.Recorder
	Summarizer    *ai.Summarizer
	Realtime      *realtime.Server
	Health        http.HandlerFunc
}

// Server is the REST and websocket front.
type Server struct {
	httpSrv *http.Server
	log     *zap.Logger
}

// handlers groups the route implementations around shared dependencies.
type handlers struct {
	deps Deps
	log  *zap.Logger
}

// NewServer builds the router and the underlying http.Server. The websocket
// endpoint sits outside the metrics middleware so the hijacked connection is
// not wrapped.
func NewServer(ctx context.Context, deps Deps) *Server {
	log := logger.New("web")
	h := &handlers{deps: deps, log: log}

	r := chi.NewRouter()
	r.Use(apperrors.RecoveryMiddleware)

	// Realtime and probes sit outside the metrics group so the hijacked
	// websocket response writer stays unwrapped. The upgrade itself still
	// requires a token, which websocket clients pass as ?token=.
	r.Method(http.MethodGet, "/ws", deps.Auth.Middleware(deps.Realtime.Handler(ctx)))
	if deps.Health != nil {
		r.Get("/health", deps.Health)
	}

	r.Group(func(r chi.Router) {
		r.Use(securityHeaders)
		r.Use(requestMetrics)

		r.Route("/api/v1", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(rateLimitByIP(limiter.New(limiter.DefaultLoginLimit)))
				r.Method(http.MethodPost, "/auth/register", apperrors.WrapHandler(h.register))
				r.Method(http.MethodPost, "/auth/login", apperrors.WrapHandler(h.login))
				r.Method(http.MethodPost, "/auth/refresh", apperrors.WrapHandler(h.refreshToken))
			})

			r.Group(func(r chi.Router) {
				r.Use(deps.Auth.Middleware)

				r.Method(http.MethodGet, "/me", apperrors.WrapHandler(h.currentUser))
				r.Method(http.MethodPatch, "/me", apperrors.WrapHandler(h.updateCurrentUser))
				r.Method(http.MethodPost, "/auth/logout", apperrors.WrapHandler(h.logout))

				r.Method(http.MethodGet, "/projects", apperrors.WrapHandler(h.listProjects))
				r.Method(http.MethodPost, "/projects", apperrors.WrapHandler(h.createProject))
				r.Route("/projects/{projectID}", func(r chi.Router) {
					r.Use(h.requireMembership)

					r.Method(http.MethodGet, "/", apperrors.WrapHandler(h.getProject))
					r.Method(http.MethodPatch, "/", apperrors.WrapHandler(h.updateProject))
					r.Method(http.MethodPut, "/members", apperrors.WrapHandler(h.upsertMember))
					r.Method(http.MethodDelete, "/members/{userID}", apperrors.WrapHandler(h.removeMember))
					r.Method(http.MethodGet, "/members", apperrors.WrapHandler(h.listMembers))

					r.Method(http.MethodGet, "/sprints", apperrors.WrapHandler(h.listSprints))
					r.Method(http.MethodPost, "/sprints", apperrors.WrapHandler(h.createSprint))
					r.Method(http.MethodPatch, "/sprints/{sprintID}", apperrors.WrapHandler(h.updateSprint))
					r.Method(http.MethodPost, "/sprints/{sprintID}/activate", apperrors.WrapHandler(h.activateSprint))
					r.Method(http.MethodPost, "/sprints/{sprintID}/complete", apperrors.WrapHandler(h.completeSprint))
					r.Method(http.MethodDelete, "/sprints/{sprintID}", apperrors.WrapHandler(h.deleteSprint))

					r.Method(http.MethodGet, "/items", apperrors.WrapHandler(h.listItems))
					r.Method(http.MethodPost, "/items", apperrors.WrapHandler(h.createItem))
					r.Method(http.MethodGet, "/items/{itemID}", apperrors.WrapHandler(h.getItem))
					r.Method(http.MethodPatch, "/items/{itemID}", apperrors.WrapHandler(h.updateItem))
					r.Method(http.MethodDelete, "/items/{itemID}", apperrors.WrapHandler(h.deleteItem))
					r.Method(http.MethodPost, "/items/{itemID}/comments", apperrors.WrapHandler(h.addComment))
					r.Method(http.MethodDelete, "/items/{itemID}/comments/{commentID}", apperrors.WrapHandler(h.removeComment))
					r.Method(http.MethodPost, "/items/{itemID}/relations", apperrors.WrapHandler(h.addRelation))
					r.Method(http.MethodDelete, "/items/{itemID}/relations", apperrors.WrapHandler(h.removeRelation))
					r.Method(http.MethodPut, "/items/{itemID}/hours", apperrors.WrapHandler(h.setHoursLeft))
					r.Method(http.MethodPost, "/items/{itemID}/summary", apperrors.WrapHandler(h.summarizeItem))

					r.Method(http.MethodGet, "/docs", apperrors.WrapHandler(h.listDocs))
					r.Method(http.MethodPost, "/docs", apperrors.WrapHandler(h.createDoc))
					r.Method(http.MethodGet, "/docs/{docID}", apperrors.WrapHandler(h.getDoc))
					r.Method(http.MethodPatch, "/docs/{docID}", apperrors.WrapHandler(h.updateDoc))
					r.Method(http.MethodDelete, "/docs/{docID}", apperrors.WrapHandler(h.deleteDoc))
					r.Method(http.MethodPost, "/docs/{docID}/summary", apperrors.WrapHandler(h.summarizeDoc))

					r.Method(http.MethodGet, "/logs", apperrors.WrapHandler(h.listLogs))
				})

				r.Method(http.MethodGet, "/notifications", apperrors.WrapHandler(h.listNotifications))
				r.Method(http.MethodPost, "/notifications/read-all", apperrors.WrapHandler(h.markAllNotificationsRead))
				r.Method(http.MethodPost, "/notifications/{notificationID}/read", apperrors.WrapHandler(h.markNotificationRead))
			})
		})
	})

	cfg := deps.Config.Server
	return &Server{
		httpSrv: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
		log: log,
	}
}

// Start blocks serving requests until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.log.Info("http server listening", zap.String("addr", s.httpSrv.Addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
