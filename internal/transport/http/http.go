package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/emmy19999/bingham-bites/api"
	"github.com/emmy19999/bingham-bites/internal/service/apperrors"
	"github.com/emmy19999/bingham-bites/internal/service/models/destination"
	"github.com/emmy19999/bingham-bites/internal/service/models/order"
	"github.com/emmy19999/bingham-bites/internal/service/models/user"
	"github.com/emmy19999/bingham-bites/internal/service/services/statussvc"
	"github.com/emmy19999/bingham-bites/internal/service/session"
	createorder "github.com/emmy19999/bingham-bites/internal/transport/http/create_order"
	getorder "github.com/emmy19999/bingham-bites/internal/transport/http/get_order"
	"github.com/emmy19999/bingham-bites/internal/transport/http/httpx"
	listdestinations "github.com/emmy19999/bingham-bites/internal/transport/http/list_destinations"
	listorders "github.com/emmy19999/bingham-bites/internal/transport/http/list_orders"
	"github.com/emmy19999/bingham-bites/internal/transport/http/login"
	managecart "github.com/emmy19999/bingham-bites/internal/transport/http/manage_cart"
	updatestatus "github.com/emmy19999/bingham-bites/internal/transport/http/update_status"
	"github.com/emmy19999/bingham-bites/pkg/http/middleware/trace"
	"github.com/emmy19999/bingham-bites/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

type sessionManager interface {
	Open(ctx context.Context, u user.User) (*session.Session, error)
	Get(userID uuid.UUID) (*session.Session, bool)
	Close(userID uuid.UUID) bool
}

type destinationService interface {
	List(ctx context.Context) ([]destination.Destination, error)
}

type statusService interface {
	UpdateStatus(ctx context.Context, req statussvc.UpdateStatusRequest) (order.Order, error)
	ListOrders(ctx context.Context, filter *order.QueryOrdersModel) ([]order.Order, error)
}

type HTTPTransport struct {
	server       *http.Server
	router       *chi.Mux
	sessions     sessionManager
	destinations destinationService
	statuses     statusService
}

func NewHTTPTransport(
	sessions sessionManager,
	destinations destinationService,
	statuses statusService,
) *HTTPTransport {
	router := newRouter()
	server := newServer(router)
	return &HTTPTransport{
		server:       server,
		router:       router,
		sessions:     sessions,
		destinations: destinations,
		statuses:     statuses,
	}
}

func (h *HTTPTransport) Run() error {
	slog.Info("Starting HTTP server", "address", h.server.Addr)
	return h.server.ListenAndServe()
}

func (h *HTTPTransport) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (h *HTTPTransport) Handler() http.Handler {
	return h.router
}

// RegisterRoutes registers the routes for the HTTPTransport.
func (h *HTTPTransport) RegisterRoutes() {
	h.router.Get("/swagger/doc.json", serveOpenAPI)
	h.router.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	h.router.Route("/api", func(r chi.Router) {
		r.Use(h.authenticate)

		r.Post("/session", h.login)
		r.Delete("/session", h.logout)
		r.Get("/destinations", h.listDestinations)

		r.Group(func(r chi.Router) {
			r.Use(h.requireSession)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", managecart.GetCart)
				r.Delete("/", managecart.ClearCart)
				r.Post("/items", managecart.AddItem)
				r.Patch("/items/{itemID}", managecart.UpdateItem)
				r.Delete("/items/{itemID}", managecart.RemoveItem)
			})

			r.Get("/checkout/quote", createorder.Quote)
			r.Post("/checkout", createorder.CreateOrder)

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", listorders.ListOrders)
				r.Get("/current", getorder.CurrentOrder)
				r.Get("/{orderID}", getorder.GetOrder)
				r.Get("/{orderID}/history", getorder.History)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireOrderManager)

			r.Get("/orders", h.listAllOrders)
			r.Patch("/orders/{orderID}/status", h.updateStatus)
		})
	})
}

func (h *HTTPTransport) login(w http.ResponseWriter, r *http.Request) {
	login.Login(w, r, h.sessions)
}

func (h *HTTPTransport) logout(w http.ResponseWriter, r *http.Request) {
	login.Logout(w, r, h.sessions)
}

func (h *HTTPTransport) listDestinations(w http.ResponseWriter, r *http.Request) {
	listdestinations.ListDestinations(w, r, h.destinations)
}

func (h *HTTPTransport) listAllOrders(w http.ResponseWriter, r *http.Request) {
	listorders.ListAllOrders(w, r, h.statuses)
}

func (h *HTTPTransport) updateStatus(w http.ResponseWriter, r *http.Request) {
	updatestatus.UpdateStatus(w, r, h.statuses)
}

// authenticate resolves the caller from the gateway headers.
func (h *HTTPTransport) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := httpx.UserFromRequest(r)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(httpx.WithUser(r.Context(), u)))
	})
}

// requireSession attaches the caller's open session; routes behind it answer
// 401 until POST /api/session has been called.
func (h *HTTPTransport) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, _ := httpx.UserFrom(r.Context())

		s, ok := h.sessions.Get(u.ID)
		if !ok {
			httpx.WriteError(w, r, apperrors.ErrAuthenticationRequired)
			return
		}

		next.ServeHTTP(w, r.WithContext(httpx.WithSession(r.Context(), s)))
	})
}

func requireOrderManager(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, _ := httpx.UserFrom(r.Context())
		if !u.Role.CanManageOrders() {
			httpx.WriteError(w, r, apperrors.ErrForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func serveOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(api.OpenAPI); err != nil {
		slog.Error("Error sending OpenAPI document", "error", err)
	}
}

func newRouter() *chi.Mux {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(trace.NewTraceMiddleware)
	router.Use(logger.NewLoggerMiddleware(slog.Default()))

	allowedOrigins := viper.GetStringSlice("server.http.cors.allowed_origins")
	allowedMethods := viper.GetStringSlice("server.http.cors.allowed_methods")
	allowedHeaders := viper.GetStringSlice("server.http.cors.allowed_headers")
	exposedHeaders := viper.GetStringSlice("server.http.cors.exposed_headers")
	allowCredentials := viper.GetBool("server.http.cors.allow_credentials")
	maxAge := viper.GetInt("server.http.cors.max_age")

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   allowedMethods,
		AllowedHeaders:   allowedHeaders,
		ExposedHeaders:   exposedHeaders,
		AllowCredentials: allowCredentials,
		MaxAge:           maxAge,
	})

	router.Use(c.Handler)

	return router
}

func newServer(router http.Handler) *http.Server {
	return &http.Server{
		Addr:              "0.0.0.0:" + viper.GetString("server.http.port"),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
