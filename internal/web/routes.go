package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/mamage/photo-similarity/internal/web/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRoutes() {
	similarityHandler := handlers.NewSimilarityHandler(s.service, s.jobManager)
	statsHandler := handlers.NewStatsHandler(s.store)

	s.router.Get("/api/v1/health", handlers.HealthCheck)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1/similarity", func(r chi.Router) {
		r.Get("/groups", similarityHandler.Groups)
		r.Get("/groups/simple", similarityHandler.SimpleGroups)
		r.Get("/pairs", similarityHandler.Pairs)
		r.Post("/query", similarityHandler.Query)
		r.Get("/stats", statsHandler.Get)

		// Grouping jobs (large projects)
		r.Get("/groups/jobs", similarityHandler.ListJobs)
		r.Post("/groups/jobs", similarityHandler.StartGroupsJob)
		r.Get("/groups/jobs/{jobId}", similarityHandler.JobStatus)
		r.Get("/groups/jobs/{jobId}/events", similarityHandler.JobEvents)
		r.Delete("/groups/jobs/{jobId}", similarityHandler.CancelJob)
	})
}
