// Package handlers provides HTTP handlers for the clinic API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/medly/go-clinic/internal/api/middleware"
	"github.com/medly/go-clinic/internal/domain/appointment"
	"github.com/medly/go-clinic/internal/domain/schedule"
	"github.com/medly/go-clinic/internal/saga"
)

// sagaRunTimeout bounds a saga run detached from the originating request.
const sagaRunTimeout = 5 * time.Minute

// AppointmentHandler handles appointment endpoints
type AppointmentHandler struct {
	appointments *appointment.Service
	create       *saga.CreateSaga
	reschedule   *saga.RescheduleSaga
	logger       *zap.Logger
	now          func() time.Time
}

// NewAppointmentHandler creates a new handler
func NewAppointmentHandler(appointments *appointment.Service, create *saga.CreateSaga, reschedule *saga.RescheduleSaga, logger *zap.Logger) *AppointmentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AppointmentHandler{
		appointments: appointments,
		create:       create,
		reschedule:   reschedule,
		logger:       logger,
		now:          time.Now,
	}
}

// Routes returns the handler routes
func (h *AppointmentHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Put("/{id}", h.Reschedule)
	r.Put("/{id}/notes", h.AddNotes)
	r.Post("/{id}/prescriptions", h.AddPrescription)
	r.Put("/{id}/complete", h.Complete)
	r.Put("/{id}/cancel", h.Cancel)
	r.Put("/{id}/missed", h.Missed)
	r.Get("/{id}", h.Get)
	return r
}

// CreateRequest is the request body for booking an appointment
type CreateRequest struct {
	DoctorID  string `json:"doctor_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	Issue     string `json:"issue"`
	PatientID string `json:"patient_id"`
}

// CreateResponse is the response for booking an appointment
type CreateResponse struct {
	ID string `json:"id"`
}

// Create handles POST /appointments
func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("appointment-handler")
	ctx, span := tracer.Start(ctx, "create_appointment")
	defer span.End()

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.DoctorID == "" || req.PatientID == "" {
		jsonError(w, "doctor_id and patient_id are required", http.StatusBadRequest)
		return
	}

	dateTime, err := h.parseDateTime(req.Date, req.StartTime)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if dateTime.Before(startOfDay(h.now())) {
		jsonError(w, "cannot schedule an appointment for past dates", http.StatusBadRequest)
		return
	}

	appointmentID := uuid.New().String()
	span.SetAttributes(attribute.String("appointment_id", appointmentID))

	cmd := saga.CreateCommand{
		DateTime:  dateTime,
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
		Issue:     req.Issue,
	}
	if err := h.create.Start(ctx, appointmentID, cmd); err != nil {
		h.logger.Error("start create saga failed", zap.Error(err))
		jsonError(w, "failed to start booking", statusFor(err))
		return
	}

	go h.runSaga("create", appointmentID, h.create.Execute)

	h.logger.Info("booking started",
		zap.String("appointment_id", appointmentID),
		zap.String("doctor_id", req.DoctorID),
		zap.String("request_id", middleware.GetRequestID(ctx)))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateResponse{ID: appointmentID})
}

// RescheduleRequest is the request body for rescheduling
type RescheduleRequest struct {
	DoctorID  string `json:"doctor_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
}

// Reschedule handles PUT /appointments/{id}
func (h *AppointmentHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	dateTime, err := h.parseDateTime(req.Date, req.StartTime)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if dateTime.Before(startOfDay(h.now())) {
		jsonError(w, "cannot reschedule to past dates", http.StatusBadRequest)
		return
	}

	if err := h.reschedule.Start(ctx, id, dateTime, req.DoctorID); err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}

	go h.runSaga("reschedule", id, h.reschedule.Execute)

	w.WriteHeader(http.StatusAccepted)
}

// AddNotesRequest carries doctor notes
type AddNotesRequest struct {
	Notes string `json:"notes"`
}

// AddNotes handles PUT /appointments/{id}/notes
func (h *AppointmentHandler) AddNotes(w http.ResponseWriter, r *http.Request) {
	var req AddNotesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.command(w, r, func(ctx context.Context, id string) error {
		return h.appointments.AddNotes(ctx, id, req.Notes)
	})
}

// AddPrescriptionRequest carries one prescription line
type AddPrescriptionRequest struct {
	Prescription string `json:"prescription"`
}

// AddPrescription handles POST /appointments/{id}/prescriptions
func (h *AppointmentHandler) AddPrescription(w http.ResponseWriter, r *http.Request) {
	var req AddPrescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.command(w, r, func(ctx context.Context, id string) error {
		return h.appointments.AddPrescription(ctx, id, req.Prescription)
	})
}

// Complete handles PUT /appointments/{id}/complete
func (h *AppointmentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.appointments.Complete)
}

// Cancel handles PUT /appointments/{id}/cancel
func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.appointments.Cancel)
}

// Missed handles PUT /appointments/{id}/missed
func (h *AppointmentHandler) Missed(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.appointments.MarkMissed)
}

// Get handles GET /appointments/{id}
func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	appt, err := h.appointments.Get(ctx, id)
	if err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(appt)
}

func (h *AppointmentHandler) command(w http.ResponseWriter, r *http.Request, cmd func(ctx context.Context, id string) error) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if err := cmd(ctx, id); err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// runSaga drives a started saga to a terminal state, detached from the
// request that accepted it.
func (h *AppointmentHandler) runSaga(kind, id string, execute func(context.Context, string) error) {
	ctx, cancel := context.WithTimeout(context.Background(), sagaRunTimeout)
	defer cancel()
	if err := execute(ctx, id); err != nil {
		h.logger.Error("saga execution failed",
			zap.String("kind", kind),
			zap.String("id", id),
			zap.Error(err))
	}
}

func (h *AppointmentHandler) parseDateTime(date, startTime string) (time.Time, error) {
	day, err := time.ParseInLocation(schedule.DateLayout, date, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", date)
	}
	start, err := schedule.ParseTimeOfDay(startTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start_time %q, want HH:MM", startTime)
	}
	return start.On(day), nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, appointment.ErrNotFound),
		errors.Is(err, schedule.ErrNotFound),
		errors.Is(err, saga.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, appointment.ErrAlreadyExists),
		errors.Is(err, schedule.ErrAlreadyExists),
		errors.Is(err, saga.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, appointment.ErrInvalidTransition),
		errors.Is(err, schedule.ErrNotActive):
		return http.StatusConflict
	case errors.Is(err, schedule.ErrInvalidSlot),
		errors.Is(err, schedule.ErrSlotNotFound):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
