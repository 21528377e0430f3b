package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/bpires/listd/internal/docstore"
	"github.com/bpires/listd/internal/handler"
	"github.com/bpires/listd/internal/middleware"
	"github.com/bpires/listd/internal/share"
	"github.com/bpires/listd/internal/store"
	ws "github.com/bpires/listd/internal/websocket"
)

// Config holds server construction options.
type Config struct {
	AuthSecret  string
	ShareSecret string
}

type Server struct {
	db          *sql.DB
	docs        *docstore.Store
	hub         *ws.Hub
	userH       *handler.UserHandler
	listH       *handler.ListHandler
	shareH      *handler.ShareHandler
	listStore   *store.ListStore
	userStore   *store.UserStore
	rateLimiter *middleware.RateLimiter
	cfg         Config
	logger      *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	docs := docstore.New(db, logger.With("component", "docstore"))
	// Mirror the mobile clients' keep-synced hint on the two top-level trees.
	docs.KeepSynced("shopping_lists", true)
	docs.KeepSynced("users", true)

	listStore := store.NewListStore(docs, logger.With("component", "list_store"))
	userStore := store.NewUserStore(docs, logger.With("component", "user_store"))
	codec := share.NewCodec(cfg.ShareSecret)
	hub := ws.NewHub(docs, logger.With("component", "websocket"))

	return &Server{
		db:          db,
		docs:        docs,
		hub:         hub,
		userH:       handler.NewUserHandler(userStore, logger.With("component", "user")),
		listH:       handler.NewListHandler(listStore, logger.With("component", "list")),
		shareH:      handler.NewShareHandler(listStore, userStore, codec, logger.With("component", "share")),
		listStore:   listStore,
		userStore:   userStore,
		rateLimiter: middleware.NewRateLimiter(),
		cfg:         cfg,
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Everything else requires an identity-provider token.
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth([]byte(s.cfg.AuthSecret))
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":        "ok",
		"clients":       s.hub.ClientCount(),
		"subscriptions": s.docs.WatcherCount(""),
	})
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Session
	mux.HandleFunc("POST /api/session", s.rateLimitedHandler(s.userH.StartSession))
	mux.HandleFunc("GET /api/me", s.userH.Me)

	// Lists
	mux.HandleFunc("POST /api/lists", s.listH.Create)
	mux.HandleFunc("GET /api/lists/{list_id}", s.listH.Get)
	mux.HandleFunc("PUT /api/lists/{list_id}", s.listH.Rename)

	// Categories
	mux.HandleFunc("POST /api/lists/{list_id}/categories", s.listH.AddCategory)
	mux.HandleFunc("PUT /api/lists/{list_id}/categories/{category_id}", s.listH.RenameCategory)
	mux.HandleFunc("DELETE /api/lists/{list_id}/categories/{category_id}", s.listH.DeleteCategory)

	// Items
	mux.HandleFunc("POST /api/lists/{list_id}/categories/{category_id}/items", s.listH.AddItem)
	mux.HandleFunc("PUT /api/lists/{list_id}/categories/{category_id}/items/{item_id}", s.listH.UpdateItem)
	mux.HandleFunc("DELETE /api/lists/{list_id}/categories/{category_id}/items/{item_id}", s.listH.DeleteItem)
	mux.HandleFunc("POST /api/lists/{list_id}/categories/{category_id}/items/{item_id}/move", s.listH.MoveItem)

	// Sharing
	mux.HandleFunc("GET /api/lists/{list_id}/code", s.shareH.Code)
	mux.HandleFunc("POST /api/import", s.rateLimitedHandler(s.shareH.Import))
	mux.HandleFunc("DELETE /api/lists/{list_id}/membership", s.shareH.Leave)

	// Live subscriptions
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 30, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}
