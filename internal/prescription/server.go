package prescription

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/bashmentarium/prescriptions/pkg/database"
)

// Server hosts the prescription HTTP API
type Server struct {
	service *Service
	db      *database.DB
	server  *http.Server
}

// NewServer creates a new HTTP server around the prescription service
func NewServer(service *Service, db *database.DB) *Server {
	return &Server{
		service: service,
		db:      db,
	}
}

// Start starts the HTTP server. It blocks until the server exits.
func (s *Server) Start(addr string) error {
	router := mux.NewRouter()
	s.service.SetupRoutes(router)

	router.HandleFunc("/health", s.healthCheckHandler).Methods("GET")
	if s.service.metrics != nil {
		router.Handle("/metrics", s.service.metrics.Handler()).Methods("GET")
		router.Use(s.service.metrics.HTTPMiddleware)
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.service.logger.WithField("addr", addr).Info("Starting prescription service")
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server
func (s *Server) Stop() error {
	if s.server != nil {
		s.service.logger.Info("Stopping prescription service")
		return s.server.Close()
	}
	return nil
}

// healthCheckHandler reports service and database health
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"service":   "prescriptions",
		"timestamp": time.Now().UTC(),
	}

	if s.db != nil {
		if err := s.db.Health(); err != nil {
			response["status"] = "degraded"
			response["database"] = err.Error()
			s.service.writeJSONResponse(w, http.StatusServiceUnavailable, response)
			return
		}
		response["database"] = "ok"
	}

	s.service.writeJSONResponse(w, http.StatusOK, response)
}
