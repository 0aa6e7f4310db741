package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRouter(apiHandler *APIHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", apiHandler.HandleHealth)
	r.Get("/ws", apiHandler.HandleWebSocket)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/plants", apiHandler.HandleListPlants)
		r.Put("/plants/{location}/capacity", apiHandler.HandleSetCapacity)
		r.Get("/devices", apiHandler.HandleListDevices)
		r.Get("/devices/{id}/evaluation", apiHandler.HandleDeviceEvaluation)
		r.Get("/devices/{id}/dosage", apiHandler.HandleDeviceDosage)
		r.Post("/evaluate", apiHandler.HandleEvaluate)
		r.Get("/reports/{format}", apiHandler.HandleReport)
	})

	return r
}
