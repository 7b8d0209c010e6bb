package prescription

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/bashmentarium/prescriptions/pkg/types"
)

// SetupRoutes configures HTTP routes for the prescription API
func (s *Service) SetupRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/v1").Subrouter()

	// Parsing routes
	api.HandleFunc("/parse/text", s.parseTextHandler).Methods("POST")
	api.HandleFunc("/parse/image", s.parseImageHandler).Methods("POST")

	// Prescription routes
	api.HandleFunc("/prescriptions", s.createPrescriptionHandler).Methods("POST")
	api.HandleFunc("/prescriptions", s.getPrescriptionsHandler).Methods("GET")
	api.HandleFunc("/prescriptions/{id}", s.getPrescriptionHandler).Methods("GET")
	api.HandleFunc("/prescriptions/{id}", s.updatePrescriptionHandler).Methods("PUT")
	api.HandleFunc("/prescriptions/{id}", s.purgePrescriptionHandler).Methods("DELETE")
	api.HandleFunc("/prescriptions/{id}/archive", s.archivePrescriptionHandler).Methods("POST")
	api.HandleFunc("/prescriptions/{id}/stats", s.getStatsHandler).Methods("GET")
	api.HandleFunc("/prescriptions/{id}/events", s.getPrescriptionEventsHandler).Methods("GET")

	// Event routes
	api.HandleFunc("/events", s.getEventsHandler).Methods("GET")
	api.HandleFunc("/events/upcoming", s.getUpcomingEventsHandler).Methods("GET")
	api.HandleFunc("/events/completed", s.getCompletedEventsHandler).Methods("GET")
	api.HandleFunc("/events/{id}", s.getEventHandler).Methods("GET")
	api.HandleFunc("/events/{id}/complete", s.completeEventHandler).Methods("POST")
	api.HandleFunc("/events/{id}/incomplete", s.incompleteEventHandler).Methods("POST")
	api.HandleFunc("/events/{id}/notes", s.updateNotesHandler).Methods("PUT")

	// Settings routes
	api.HandleFunc("/settings", s.getSettingsHandler).Methods("GET")
	api.HandleFunc("/settings", s.saveSettingsHandler).Methods("PUT")

	s.logger.Info("Prescription service routes configured")
}

// parseTextHandler handles free-text prescription parsing
func (s *Service) parseTextHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	raw, err := s.ParseText(r.Context(), req.Text)
	if err != nil {
		s.writeErrorResponse(w, statusFor(err), "Failed to parse prescription text", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, raw)
}

// parseImageHandler handles prescription photo parsing
func (s *Service) parseImageHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Image    string `json:"image"`
		MimeType string `json:"mime_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	image, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid image encoding", err)
		return
	}
	if req.MimeType == "" {
		req.MimeType = "image/jpeg"
	}

	raw, err := s.ParseImage(r.Context(), image, req.MimeType)
	if err != nil {
		s.writeErrorResponse(w, statusFor(err), "Failed to parse prescription image", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, raw)
}

// createPrescriptionHandler approves a parser result into a prescription
func (s *Service) createPrescriptionHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title        string                 `json:"title"`
		StartDate    time.Time              `json:"start_date"`
		Prescription *types.RawPrescription `json:"prescription"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := s.CreateFromRaw(r.Context(), req.Prescription, req.Title, req.StartDate)
	if err != nil {
		s.writeErrorResponse(w, statusFor(err), "Failed to create prescription", err)
		return
	}

	s.writeJSONResponse(w, http.StatusCreated, p)
}

// getPrescriptionsHandler lists prescriptions
func (s *Service) getPrescriptionsHandler(w http.ResponseWriter, r *http.Request) {
	activeOnly := false
	if v := r.URL.Query().Get("active"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			activeOnly = parsed
		}
	}

	prescriptions, err := s.GetPrescriptions(r.Context(), activeOnly)
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to list prescriptions", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, prescriptions)
}

// getPrescriptionHandler retrieves a single prescription
func (s *Service) getPrescriptionHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	p, err := s.GetPrescription(r.Context(), id)
	if err != nil {
		s.writeErrorResponse(w, statusFor(err), "Failed to get prescription", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, p)
}

// updatePrescriptionHandler edits a prescription and recalculates its events
func (s *Service) updatePrescriptionHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var p types.Prescription
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	p.ID = id

	preservePast := true
	if v := r.URL.Query().Get("preserve_past"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			preservePast = parsed
		}
	}

	if err := s.UpdateAndRecalculate(r.Context(), &p, preservePast); err != nil {
		s.writeErrorResponse(w, statusFor(err), "Failed to update prescription", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, &p)
}

// archivePrescriptionHandler deactivates a prescription
func (s *Service) archivePrescriptionHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.Archive(r.Context(), id); err != nil {
		s.writeErrorResponse(w, statusFor(err), "Failed to archive prescription", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "archived"})
}

// purgePrescriptionHandler permanently deletes a prescription
func (s *Service) purgePrescriptionHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.Purge(r.Context(), id); err != nil {
		s.writeErrorResponse(w, statusFor(err), "Failed to purge prescription", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "purged"})
}

// getStatsHandler returns adherence counts for a prescription
func (s *Service) getStatsHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	stats, err := s.GetStats(r.Context(), id)
	if err != nil {
		s.writeErrorResponse(w, statusFor(err), "Failed to get prescription stats", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, stats)
}

// getEventsHandler queries medication events with filters
func (s *Service) getEventsHandler(w http.ResponseWriter, r *http.Request) {
	filters := s.parseEventFilters(r)

	events, err := s.GetEvents(r.Context(), filters)
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to query events", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, events)
}

// getPrescriptionEventsHandler lists all events of one prescription
func (s *Service) getPrescriptionEventsHandler(w http.ResponseWriter, r *http.Request) {
	filters := s.parseEventFilters(r)
	filters.PrescriptionID = mux.Vars(r)["id"]

	events, err := s.GetEvents(r.Context(), filters)
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to query events", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, events)
}

// getUpcomingEventsHandler lists incomplete events from now onward
func (s *Service) getUpcomingEventsHandler(w http.ResponseWriter, r *http.Request) {
	filters := s.parseEventFilters(r)
	notCompleted := false
	filters.Completed = &notCompleted
	if filters.From.IsZero() {
		filters.From = time.Now()
	}

	events, err := s.GetEvents(r.Context(), filters)
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to query upcoming events", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, events)
}

// getCompletedEventsHandler lists confirmed intakes
func (s *Service) getCompletedEventsHandler(w http.ResponseWriter, r *http.Request) {
	filters := s.parseEventFilters(r)
	completed := true
	filters.Completed = &completed

	events, err := s.GetEvents(r.Context(), filters)
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to query completed events", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, events)
}

// getEventHandler retrieves a single event
func (s *Service) getEventHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	ev, err := s.GetEvent(r.Context(), id)
	if err != nil {
		s.writeErrorResponse(w, statusFor(err), "Failed to get event", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, ev)
}

// completeEventHandler confirms an intake
func (s *Service) completeEventHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.ConfirmIntake(r.Context(), id); err != nil {
		s.writeErrorResponse(w, statusFor(err), "Failed to complete event", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "completed"})
}

// incompleteEventHandler reverts an intake confirmation
func (s *Service) incompleteEventHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.MarkIncomplete(r.Context(), id); err != nil {
		s.writeErrorResponse(w, statusFor(err), "Failed to mark event incomplete", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "incomplete"})
}

// updateNotesHandler replaces the notes on an event
func (s *Service) updateNotesHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req struct {
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := s.UpdateEventNotes(r.Context(), id, req.Notes); err != nil {
		s.writeErrorResponse(w, statusFor(err), "Failed to update event notes", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "updated"})
}

// getSettingsHandler returns the user's scheduling preferences
func (s *Service) getSettingsHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := s.GetSettings(r.Context())
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to get settings", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, settings)
}

// saveSettingsHandler stores the user's scheduling preferences
func (s *Service) saveSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var settings types.UserSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := s.SaveSettings(r.Context(), settings); err != nil {
		s.writeErrorResponse(w, statusFor(err), "Failed to save settings", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, settings)
}

// parseEventFilters extracts event query filters from the request
func (s *Service) parseEventFilters(r *http.Request) *types.EventFilters {
	filters := &types.EventFilters{}
	query := r.URL.Query()

	filters.PrescriptionID = query.Get("prescription_id")

	if v := query.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.From = t
		}
	}
	if v := query.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.To = t
		}
	}
	if v := query.Get("completed"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			filters.Completed = &parsed
		}
	}
	if v := query.Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			filters.Limit = parsed
		}
	}
	if v := query.Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			filters.Offset = parsed
		}
	}

	return filters
}

// statusFor maps structured errors to HTTP status codes
func statusFor(err error) int {
	de, ok := err.(*types.DoseError)
	if !ok {
		return http.StatusInternalServerError
	}
	switch de.Type {
	case types.ErrorTypeValidation:
		return http.StatusBadRequest
	case types.ErrorTypeNotFound:
		return http.StatusNotFound
	case types.ErrorTypeParse:
		return http.StatusUnprocessableEntity
	case types.ErrorTypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeJSONResponse writes a JSON response
func (s *Service) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (s *Service) writeErrorResponse(w http.ResponseWriter, statusCode int, message string, err error) {
	s.logger.WithError(err).Error(message)

	response := map[string]interface{}{
		"error":  message,
		"status": statusCode,
	}
	if err != nil {
		response["details"] = err.Error()
	}

	s.writeJSONResponse(w, statusCode, response)
}
