package appointment

import (
	"errors"
	"testing"
	"time"
)

var testDateTime = time.Date(2032, 1, 20, 10, 0, 0, 0, time.UTC)

func createdAggregate(t *testing.T) *Aggregate {
	t.Helper()
	agg := NewAggregate("appt-1")
	if err := agg.Create(testDateTime, "doc-1", "pat-1", "persistent cough"); err != nil {
		t.Fatalf("create: %v", err)
	}
	return agg
}

func TestCreateSetsPending(t *testing.T) {
	agg := createdAggregate(t)

	snap := agg.Snapshot()
	if snap == nil {
		t.Fatal("snapshot is nil after create")
	}
	if snap.Status != StatusPending {
		t.Fatalf("status = %s, want PENDING", snap.Status)
	}
	if snap.DoctorID != "doc-1" || snap.PatientID != "pat-1" || !snap.DateTime.Equal(testDateTime) {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if len(agg.Changes()) != 1 {
		t.Fatalf("uncommitted events = %d, want 1", len(agg.Changes()))
	}
}

func TestCreateTwiceRejected(t *testing.T) {
	agg := createdAggregate(t)

	if err := agg.Create(testDateTime, "doc-1", "pat-1", "cough"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestSnapshotNilWhenUncreated(t *testing.T) {
	agg := NewAggregate("appt-1")
	if agg.Snapshot() != nil {
		t.Fatal("snapshot of an uncreated aggregate should be nil")
	}
	if err := agg.MarkScheduled(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := agg.Cancel(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestHappyPathLifecycle(t *testing.T) {
	agg := createdAggregate(t)

	if err := agg.MarkScheduled(); err != nil {
		t.Fatalf("mark scheduled: %v", err)
	}
	if agg.Status() != StatusScheduled {
		t.Fatalf("status = %s, want SCHEDULED", agg.Status())
	}
	if err := agg.Complete(); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if agg.Status() != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", agg.Status())
	}
	if !agg.Status().Terminal() {
		t.Fatal("COMPLETED should be terminal")
	}
}

func TestCompleteRequiresScheduled(t *testing.T) {
	agg := createdAggregate(t)

	if err := agg.Complete(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete from PENDING err = %v, want ErrInvalidTransition", err)
	}
	if agg.Status() != StatusPending {
		t.Fatalf("status changed to %s on rejected transition", agg.Status())
	}
}

func TestCancelFromPending(t *testing.T) {
	agg := createdAggregate(t)

	if err := agg.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if agg.Status() != StatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", agg.Status())
	}
}

func TestRescheduleKeepsStatus(t *testing.T) {
	agg := createdAggregate(t)
	if err := agg.MarkScheduled(); err != nil {
		t.Fatalf("mark scheduled: %v", err)
	}

	newTime := testDateTime.AddDate(0, 0, 2)
	if err := agg.Reschedule(newTime, "doc-2"); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	snap := agg.Snapshot()
	if snap.Status != StatusScheduled {
		t.Fatalf("status = %s, want SCHEDULED", snap.Status)
	}
	if snap.DoctorID != "doc-2" || !snap.DateTime.Equal(newTime) {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestRescheduleRejectedWhenTerminal(t *testing.T) {
	agg := createdAggregate(t)
	if err := agg.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if err := agg.Reschedule(testDateTime.AddDate(0, 0, 1), "doc-2"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestNotesAndPrescriptions(t *testing.T) {
	agg := createdAggregate(t)

	if err := agg.AddNotes("follow up in two weeks"); err != nil {
		t.Fatalf("add notes: %v", err)
	}
	if err := agg.AddNotes("follow up in one week"); err != nil {
		t.Fatalf("replace notes: %v", err)
	}
	if err := agg.AddPrescription("amoxicillin 500mg"); err != nil {
		t.Fatalf("add prescription: %v", err)
	}
	if err := agg.AddPrescription("ibuprofen 200mg"); err != nil {
		t.Fatalf("add prescription: %v", err)
	}

	snap := agg.Snapshot()
	if snap.Notes != "follow up in one week" {
		t.Fatalf("notes = %q", snap.Notes)
	}
	if len(snap.Prescriptions) != 2 || snap.Prescriptions[0] != "amoxicillin 500mg" {
		t.Fatalf("prescriptions = %v", snap.Prescriptions)
	}
}

func TestLoadFromHistoryReplay(t *testing.T) {
	agg := createdAggregate(t)
	if err := agg.MarkScheduled(); err != nil {
		t.Fatalf("mark scheduled: %v", err)
	}
	if err := agg.AddPrescription("amoxicillin 500mg"); err != nil {
		t.Fatalf("add prescription: %v", err)
	}
	if err := agg.MarkMissed(); err != nil {
		t.Fatalf("mark missed: %v", err)
	}

	replayed := NewAggregate(agg.ID())
	replayed.LoadFromHistory(agg.Changes())

	if replayed.Version() != agg.Version() {
		t.Fatalf("version = %d, want %d", replayed.Version(), agg.Version())
	}
	want := agg.Snapshot()
	got := replayed.Snapshot()
	if got == nil {
		t.Fatal("replayed snapshot is nil")
	}
	if got.Status != want.Status || got.DoctorID != want.DoctorID || len(got.Prescriptions) != len(want.Prescriptions) {
		t.Fatalf("replayed snapshot %+v, want %+v", got, want)
	}
	if len(replayed.Changes()) != 0 {
		t.Fatal("replay must not produce new uncommitted events")
	}
}
