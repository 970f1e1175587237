package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/medly/go-clinic/internal/domain/schedule"
	"github.com/medly/go-clinic/internal/saga"
)

// doctorIDHeader carries the acting doctor's id on schedule endpoints.
const doctorIDHeader = "doctorId"

// ScheduleHandler handles schedule endpoints
type ScheduleHandler struct {
	schedules *schedule.Service
	cascade   *saga.CascadeSaga
	logger    *zap.Logger
	now       func() time.Time
}

// NewScheduleHandler creates a new handler
func NewScheduleHandler(schedules *schedule.Service, cascade *saga.CascadeSaga, logger *zap.Logger) *ScheduleHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleHandler{
		schedules: schedules,
		cascade:   cascade,
		logger:    logger,
		now:       time.Now,
	}
}

// Routes returns the handler routes
func (h *ScheduleHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Put("/{day}", h.Create)
	r.Delete("/{day}", h.Delete)
	r.Get("/{day}", h.Get)
	return r
}

// WorkingHoursRequest is the working-hours payload
type WorkingHoursRequest struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// CreateScheduleRequest is the request body for opening a schedule day
type CreateScheduleRequest struct {
	WorkingHours WorkingHoursRequest `json:"working_hours"`
}

// Create handles PUT /schedules/{day}
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doctorID := r.Header.Get(doctorIDHeader)
	if doctorID == "" {
		jsonError(w, "missing doctorId header", http.StatusBadRequest)
		return
	}

	day := chi.URLParam(r, "day")
	date, err := time.ParseInLocation(schedule.DateLayout, day, time.Local)
	if err != nil {
		jsonError(w, "invalid day, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	if date.Before(startOfDay(h.now())) {
		jsonError(w, "cannot schedule for past dates", http.StatusBadRequest)
		return
	}

	var req CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	start, err := schedule.ParseTimeOfDay(req.WorkingHours.StartTime)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	end, err := schedule.ParseTimeOfDay(req.WorkingHours.EndTime)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	workingHours, err := schedule.NewWorkingHours(start, end)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := schedule.ID{DoctorID: doctorID, Date: day}
	if err := h.schedules.Create(ctx, id, workingHours); err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}

	h.logger.Info("schedule created",
		zap.String("doctor_id", doctorID),
		zap.String("date", day))
	w.WriteHeader(http.StatusCreated)
}

// Delete handles DELETE /schedules/{day}. It starts the cascade that blocks
// the day, relocates or cancels its appointments, and soft-deletes the record.
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doctorID := r.Header.Get(doctorIDHeader)
	if doctorID == "" {
		jsonError(w, "missing doctorId header", http.StatusBadRequest)
		return
	}

	day := chi.URLParam(r, "day")
	if _, err := time.Parse(schedule.DateLayout, day); err != nil {
		jsonError(w, "invalid day, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	id := schedule.ID{DoctorID: doctorID, Date: day}
	if err := h.cascade.Start(ctx, id); err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sagaRunTimeout)
		defer cancel()
		if err := h.cascade.Execute(ctx, id); err != nil {
			h.logger.Error("delete-schedule cascade failed",
				zap.String("schedule_id", id.String()),
				zap.Error(err))
		}
	}()

	w.WriteHeader(http.StatusAccepted)
}

// Get handles GET /schedules/{day}
func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doctorID := r.Header.Get(doctorIDHeader)
	if doctorID == "" {
		jsonError(w, "missing doctorId header", http.StatusBadRequest)
		return
	}

	id := schedule.ID{DoctorID: doctorID, Date: chi.URLParam(r, "day")}
	sched, err := h.schedules.Get(ctx, id)
	if err != nil {
		jsonError(w, err.Error(), statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sched)
}
