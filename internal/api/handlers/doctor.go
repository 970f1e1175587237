package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/medly/go-clinic/internal/domain/doctor"
	"github.com/medly/go-clinic/internal/views"
)

// DoctorHandler handles doctor directory endpoints
type DoctorHandler struct {
	doctors *doctor.Repository
	views   *views.Store
	logger  *zap.Logger
}

// NewDoctorHandler creates a new handler
func NewDoctorHandler(doctors *doctor.Repository, viewStore *views.Store, logger *zap.Logger) *DoctorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DoctorHandler{doctors: doctors, views: viewStore, logger: logger}
}

// Routes returns the handler routes
func (h *DoctorHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{id}", h.Create)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/schedules", h.Schedules)
	r.Get("/specialty/{specialty}", h.FindBySpecialty)
	return r
}

// CreateDoctorRequest is the request body for registering a doctor
type CreateDoctorRequest struct {
	FirstName   string          `json:"first_name"`
	LastName    string          `json:"last_name"`
	Specialties []string        `json:"specialties"`
	Description string          `json:"description"`
	Contact     *doctor.Contact `json:"contact,omitempty"`
}

// Create handles POST /doctors/{id}
func (h *DoctorHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req CreateDoctorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.FirstName == "" || req.LastName == "" {
		jsonError(w, "first_name and last_name are required", http.StatusBadRequest)
		return
	}

	d := &doctor.Doctor{
		ID:          id,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Specialties: req.Specialties,
		Description: req.Description,
		Contact:     req.Contact,
	}
	if err := h.doctors.Create(ctx, d); err != nil {
		jsonError(w, err.Error(), doctorStatusFor(err))
		return
	}

	h.logger.Info("doctor registered", zap.String("doctor_id", id))
	w.WriteHeader(http.StatusCreated)
}

// Get handles GET /doctors/{id}
func (h *DoctorHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.doctors.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, err.Error(), doctorStatusFor(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(d)
}

// Schedules handles GET /doctors/{id}/schedules
func (h *DoctorHandler) Schedules(w http.ResponseWriter, r *http.Request) {
	rows, err := h.views.SchedulesByDoctor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, "failed to load schedules", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"schedules": rows})
}

// FindBySpecialty handles GET /doctors/specialty/{specialty}
func (h *DoctorHandler) FindBySpecialty(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.doctors.FindBySpecialty(r.Context(), chi.URLParam(r, "specialty"))
	if err != nil {
		jsonError(w, "failed to search doctors", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"doctors": doctors})
}

func doctorStatusFor(err error) int {
	switch err {
	case doctor.ErrNotFound:
		return http.StatusNotFound
	case doctor.ErrAlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
