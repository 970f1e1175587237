package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/medly/go-clinic/internal/domain/appointment"
	"github.com/medly/go-clinic/internal/domain/schedule"
	"github.com/medly/go-clinic/internal/infrastructure/memory"
	"github.com/medly/go-clinic/internal/saga"
)

type stubClassifier struct{ label string }

func (c stubClassifier) Classify(ctx context.Context, issue string) (string, error) {
	return c.label, nil
}

type testAPI struct {
	router chi.Router
	appts  *appointment.Service
	scheds *schedule.Service
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	appts := appointment.NewService(memory.NewAppointmentStore(), nil)
	scheds := schedule.NewService(memory.NewScheduleStore(), nil)
	sagas := memory.NewSagaStore()
	doctors := memory.NewDoctorDirectory()

	create := saga.NewCreateSaga(sagas, appts, scheds, saga.Config{}, nil, nil)
	reschedule := saga.NewRescheduleSaga(sagas, appts, scheds, saga.Config{}, nil, nil)
	cascade := saga.NewCascadeSaga(sagas, appts, scheds, doctors,
		stubClassifier{label: "low"}, stubClassifier{label: "cardiology"},
		reschedule, saga.Config{}, nil, nil)

	r := chi.NewRouter()
	r.Mount("/appointments", NewAppointmentHandler(appts, create, reschedule, nil).Routes())
	r.Mount("/schedules", NewScheduleHandler(scheds, cascade, nil).Routes())
	return &testAPI{router: r, appts: appts, scheds: scheds}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) addSchedule(t *testing.T, doctorID, day string) {
	t.Helper()
	rec := a.do(t, http.MethodPut, "/schedules/"+day,
		CreateScheduleRequest{WorkingHours: WorkingHoursRequest{StartTime: "10:00", EndTime: "16:00"}},
		map[string]string{doctorIDHeader: doctorID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestCreateAppointmentEndToEnd(t *testing.T) {
	api := newTestAPI(t)
	api.addSchedule(t, "doc-1", "2032-01-20")

	rec := api.do(t, http.MethodPost, "/appointments", CreateRequest{
		DoctorID:  "doc-1",
		Date:      "2032-01-20",
		StartTime: "11:00",
		Issue:     "persistent cough",
		PatientID: "pat-1",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp CreateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.ID)

	// The saga runs detached from the request; wait for it to confirm.
	require.Eventually(t, func() bool {
		appt, err := api.appts.Get(context.Background(), resp.ID)
		return err == nil && appt.Status == appointment.StatusScheduled
	}, 2*time.Second, 10*time.Millisecond)

	get := api.do(t, http.MethodGet, "/appointments/"+resp.ID, nil, nil)
	require.Equal(t, http.StatusOK, get.Code)
	var appt appointment.Appointment
	require.NoError(t, json.NewDecoder(get.Body).Decode(&appt))
	require.Equal(t, "doc-1", appt.DoctorID)
	require.Equal(t, appointment.StatusScheduled, appt.Status)
}

func TestCreateAppointmentValidation(t *testing.T) {
	api := newTestAPI(t)

	cases := []struct {
		name string
		req  CreateRequest
	}{
		{"missing ids", CreateRequest{Date: "2032-01-20", StartTime: "11:00"}},
		{"bad date", CreateRequest{DoctorID: "doc-1", PatientID: "pat-1", Date: "Jan 20", StartTime: "11:00"}},
		{"bad time", CreateRequest{DoctorID: "doc-1", PatientID: "pat-1", Date: "2032-01-20", StartTime: "eleven"}},
		{"past date", CreateRequest{DoctorID: "doc-1", PatientID: "pat-1", Date: "2020-01-20", StartTime: "11:00"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/appointments", tc.req, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestGetAppointmentNotFound(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/appointments/ghost", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCompleteTransitions(t *testing.T) {
	ctx := context.Background()
	api := newTestAPI(t)
	require.NoError(t, api.appts.Create(ctx, "a1", time.Date(2032, 1, 20, 11, 0, 0, 0, time.UTC), "doc-1", "pat-1", "cough"))
	require.NoError(t, api.appts.MarkScheduled(ctx, "a1"))

	rec := api.do(t, http.MethodPut, "/appointments/a1/complete", nil, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodPut, "/appointments/a1/complete", nil, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestScheduleLifecycleEndpoints(t *testing.T) {
	api := newTestAPI(t)
	headers := map[string]string{doctorIDHeader: "doc-1"}

	rec := api.do(t, http.MethodPut, "/schedules/2032-01-20",
		CreateScheduleRequest{WorkingHours: WorkingHoursRequest{StartTime: "10:00", EndTime: "16:00"}}, headers)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodPut, "/schedules/2032-01-20",
		CreateScheduleRequest{WorkingHours: WorkingHoursRequest{StartTime: "10:00", EndTime: "16:00"}}, headers)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodGet, "/schedules/2032-01-20", nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	var sched schedule.Schedule
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sched))
	require.Equal(t, schedule.StatusActive, sched.Status)

	rec = api.do(t, http.MethodDelete, "/schedules/2032-01-20", nil, headers)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		s, err := api.scheds.Get(context.Background(), schedule.ID{DoctorID: "doc-1", Date: "2032-01-20"})
		return err == nil && s.Status == schedule.StatusDeleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduleRequiresDoctorHeader(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/schedules/2032-01-20", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
