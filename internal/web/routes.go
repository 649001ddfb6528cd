package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-annotator/internal/web/handlers"
	"github.com/kozaktomas/face-annotator/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	moviesHandler := handlers.NewMoviesHandler(s.resolver)
	clustersHandler := handlers.NewClustersHandler(s.resolver)
	actorsHandler := handlers.NewActorsHandler(s.resolver)

	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Username(s.config.Annotation.DefaultUser))

		// Movies
		r.Get("/movies", moviesHandler.List)
		r.Get("/movies/{movieID}", moviesHandler.Get)

		// Actors
		r.Get("/actors/{movieID}/counts", actorsHandler.Counts)

		// Clusters
		r.Get("/faces/clusters/{movieID}/{clusterID}", clustersHandler.Get)
		r.Post("/faces/clusters/{movieID}/{clusterID}", clustersHandler.Save)
	})
}
