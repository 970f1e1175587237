package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/medly/go-clinic/internal/views"
)

// PatientHandler serves patient-facing read queries.
type PatientHandler struct {
	views  *views.Store
	logger *zap.Logger
}

// NewPatientHandler creates a new handler
func NewPatientHandler(viewStore *views.Store, logger *zap.Logger) *PatientHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PatientHandler{views: viewStore, logger: logger}
}

// Routes returns the handler routes
func (h *PatientHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{patientId}/appointments", h.Appointments)
	return r
}

// Appointments handles GET /patients/{patientId}/appointments
func (h *PatientHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	rows, err := h.views.FindByPatient(r.Context(), chi.URLParam(r, "patientId"))
	if err != nil {
		h.logger.Error("patient appointments query failed", zap.Error(err))
		jsonError(w, "failed to load appointments", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"appointments": rows})
}
