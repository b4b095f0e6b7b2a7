package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// maxRequestBody bounds POST /cubes bodies.
const maxRequestBody = 1 << 20

// NewRouter creates and configures the HTTP router with all routes and
// middleware. A nil metrics handler disables /metrics.
func NewRouter(h *Handlers, metrics http.Handler, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestIDResponse)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(Recovery(logger))
	r.Use(middleware.Compress(5))
	r.Use(ContentTypeJSON)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length"},
		ExposedHeaders:   []string{"Location", "X-Request-ID", HeaderChunkShape, HeaderChunkOffset, HeaderDataType},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Get("/", h.LandingPage)

	r.Get("/products", h.Products)
	r.Get("/products/{productId}", h.Product)

	r.Route("/cubes", func(r chi.Router) {
		r.With(MaxBodySize(maxRequestBody)).Post("/", h.CreateCube)
		r.Route("/{cubeId}", func(r chi.Router) {
			r.Get("/", h.GetCube)
			r.Delete("/", h.DeleteCube)
			r.Get("/variables/{variable}/chunks/{t}/{y}/{x}", h.Chunk)
			r.Get("/variables/{variable}/slices/{t}", h.Slice)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteNotFound(w, "endpoint not found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "method not allowed")
	})

	return r
}
