// Package lifecycle owns the attendance state machine: event start/end by
// the assigned volunteer, time-windowed student check-in, and the derived
// absence marking. Every transition is one transaction against the store;
// there is no cached lifecycle state and no background expiry.
package lifecycle

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"eventtrack/internal/geo"
	"eventtrack/internal/metrics"
	"eventtrack/internal/queue"
)

// Attendance statuses for a student row.
const (
	StatusPending = "pending"
	StatusPresent = "present"
	StatusAbsent  = "absent"
)

// Event is the lifecycle view of an event row.
type Event struct {
	ID          int64
	VolunteerID *int64
	IsStarted   bool
	IsCompleted bool
}

// Session is a volunteer attendance row; EndTime nil means the session is open.
type Session struct {
	ID             int64
	VolunteerID    int64
	EventID        int64
	StartTime      time.Time
	EndTime        *time.Time
	StartLatitude  float64
	StartLongitude float64
}

// Record is a student attendance row for one event.
type Record struct {
	ID        int64
	StudentID int64
	EventID   int64
	Status    string
	StartTime *time.Time
	EndTime   *time.Time
}

// Student is the lifecycle view of a student: its volunteer assignment.
type Student struct {
	ID          int64
	VolunteerID *int64
}

// Tx is the set of reads and writes a transition may perform. All of it
// runs inside one store transaction; the ForUpdate reads take row locks so
// concurrent transitions on the same key serialize.
type Tx interface {
	EventForUpdate(ctx context.Context, eventID int64) (*Event, error)
	SetEventStarted(ctx context.Context, eventID int64) error
	SetEventCompleted(ctx context.Context, eventID int64) error
	Student(ctx context.Context, studentID int64) (*Student, error)

	InsertSession(ctx context.Context, volunteerID, eventID int64, start time.Time, lat, lng float64) error
	OpenSession(ctx context.Context, volunteerID, eventID int64, lock bool) (*Session, error)
	CloseSession(ctx context.Context, volunteerID, eventID int64, end time.Time, lat, lng float64) error
	SeedPending(ctx context.Context, eventID, volunteerID int64, lat, lng float64, at time.Time) (int64, error)

	PendingForUpdate(ctx context.Context, studentID, eventID int64) (*Record, error)
	PresentForUpdate(ctx context.Context, studentID, eventID int64) (*Record, error)
	MarkPresent(ctx context.Context, studentID, eventID int64, at time.Time, lat, lng float64) error
	MarkAbsent(ctx context.Context, studentID, eventID int64) error
	MarkAllAbsent(ctx context.Context, eventID int64) (int64, error)
	CloseRecord(ctx context.Context, studentID, eventID int64, end time.Time, lat, lng float64) error
}

// Store runs a function inside a transaction. fn returning nil commits.
type Store interface {
	Transact(ctx context.Context, fn func(tx Tx) error) error
}

// Publisher receives audit messages for committed transitions.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Engine applies lifecycle transitions. The window is how long after the
// volunteer opens a session students may still check in.
type Engine struct {
	store  Store
	window time.Duration
	audit  Publisher
	now    func() time.Time
}

// NewEngine creates an engine. audit may be nil to disable the trail.
func NewEngine(store Store, window time.Duration, audit Publisher) *Engine {
	if window <= 0 {
		window = time.Hour
	}
	return &Engine{store: store, window: window, audit: audit, now: time.Now}
}

// StartResult reports a started event.
type StartResult struct {
	StartTime     time.Time `json:"start_time"`
	SeededPending int64     `json:"seeded_pending"`
}

// EndResult reports a completed event.
type EndResult struct {
	EndTime         time.Time `json:"end_time"`
	DurationMinutes float64   `json:"duration_minutes"`
	MarkedAbsent    int64     `json:"marked_absent"`
}

// CheckInResult reports a student marked present. DistanceMeters is how
// far the student checked in from where the volunteer opened the session;
// informational only, nothing gates on it.
type CheckInResult struct {
	StartTime      time.Time `json:"start_time"`
	DistanceMeters float64   `json:"distance_from_session_m"`
}

// CheckOutResult reports a closed student record.
type CheckOutResult struct {
	EndTime         time.Time `json:"end_time"`
	DurationMinutes float64   `json:"duration_minutes"`
}

// StartEvent transitions an event from not-started to started: marks the
// event, opens the volunteer's session, and seeds one pending attendance
// row per supervised student that does not already have one. Only the
// assigned volunteer may start, and only once.
func (e *Engine) StartEvent(ctx context.Context, volunteerID, eventID int64, lat, lng float64) (StartResult, error) {
	if volunteerID <= 0 || eventID <= 0 {
		return StartResult{}, newError(CodeValidation, "volunteer and event are required")
	}

	var res StartResult
	err := e.store.Transact(ctx, func(tx Tx) error {
		ev, err := tx.EventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if ev == nil || ev.VolunteerID == nil || *ev.VolunteerID != volunteerID {
			return newError(CodeNotFound, "event not found or not assigned to you")
		}
		if ev.IsCompleted {
			return newError(CodeCompleted, "event is already completed and cannot be modified")
		}
		if ev.IsStarted {
			return newError(CodeAlreadyStarted, "event already started")
		}

		now := e.now().UTC()
		if err := tx.SetEventStarted(ctx, eventID); err != nil {
			return err
		}
		if err := tx.InsertSession(ctx, volunteerID, eventID, now, lat, lng); err != nil {
			return err
		}
		seeded, err := tx.SeedPending(ctx, eventID, volunteerID, lat, lng, now)
		if err != nil {
			return err
		}
		res = StartResult{StartTime: now, SeededPending: seeded}
		return nil
	})
	if err != nil {
		return StartResult{}, err
	}

	metrics.EventsStarted.Inc()
	e.publish(ctx, "event_started", "volunteer", volunteerID, eventID, res.StartTime)
	return res, nil
}

// EndEvent transitions a started event to completed: closes the open
// session, marks every remaining pending row absent, and freezes the
// event. This is irreversible.
func (e *Engine) EndEvent(ctx context.Context, volunteerID, eventID int64, lat, lng float64) (EndResult, error) {
	if volunteerID <= 0 || eventID <= 0 {
		return EndResult{}, newError(CodeValidation, "volunteer and event are required")
	}

	var res EndResult
	err := e.store.Transact(ctx, func(tx Tx) error {
		ev, err := tx.EventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if ev == nil || ev.VolunteerID == nil || *ev.VolunteerID != volunteerID {
			return newError(CodeNotFound, "event not found or not assigned to you")
		}
		if ev.IsCompleted {
			return newError(CodeCompleted, "event is already completed and cannot be modified")
		}
		if !ev.IsStarted {
			return newError(CodeNotStarted, "event not started yet")
		}

		sess, err := tx.OpenSession(ctx, volunteerID, eventID, true)
		if err != nil {
			return err
		}
		if sess == nil {
			return newError(CodeNoActiveSession, "active attendance not found")
		}

		now := e.now().UTC()
		dur := now.Sub(sess.StartTime).Minutes()
		if dur < 0 {
			dur = 0
		}
		if err := tx.CloseSession(ctx, volunteerID, eventID, now, lat, lng); err != nil {
			return err
		}
		absent, err := tx.MarkAllAbsent(ctx, eventID)
		if err != nil {
			return err
		}
		if err := tx.SetEventCompleted(ctx, eventID); err != nil {
			return err
		}
		res = EndResult{EndTime: now, DurationMinutes: dur, MarkedAbsent: absent}
		return nil
	})
	if err != nil {
		return EndResult{}, err
	}

	metrics.EventsCompleted.Inc()
	metrics.MarkedAbsent.Add(float64(res.MarkedAbsent))
	e.publish(ctx, "event_completed", "volunteer", volunteerID, eventID, res.EndTime)
	return res, nil
}

// CheckInStudent moves the student's pending row to present, provided the
// event is running and the volunteer's session opened no more than the
// window ago. Past the window the row is marked absent and the call fails
// with WindowExpired; the absence sticks even though the call failed.
func (e *Engine) CheckInStudent(ctx context.Context, studentID, eventID int64, lat, lng float64) (CheckInResult, error) {
	if studentID <= 0 || eventID <= 0 {
		return CheckInResult{}, newError(CodeValidation, "student and event are required")
	}

	var res CheckInResult
	var expired bool
	err := e.store.Transact(ctx, func(tx Tx) error {
		st, err := tx.Student(ctx, studentID)
		if err != nil {
			return err
		}
		if st == nil {
			return newError(CodeNotFound, "student not found")
		}
		ev, err := tx.EventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if ev == nil || ev.VolunteerID == nil || st.VolunteerID == nil || *ev.VolunteerID != *st.VolunteerID {
			return newError(CodeNotFound, "event not found or not linked to your volunteer")
		}
		if ev.IsCompleted {
			return newError(CodeCompleted, "event is completed and cannot be modified")
		}
		if !ev.IsStarted {
			return newError(CodeNotStarted, "event has not started yet")
		}

		rec, err := tx.PendingForUpdate(ctx, studentID, eventID)
		if err != nil {
			return err
		}
		if rec == nil {
			return newError(CodeNoPendingRecord, "no pending attendance record found for this event")
		}

		now := e.now().UTC()
		sess, err := tx.OpenSession(ctx, *ev.VolunteerID, eventID, false)
		if err != nil {
			return err
		}
		// The deadline is shared: measured from the volunteer's session
		// start, not the student's request. Elapsed of exactly the window
		// still passes.
		if sess != nil && now.Sub(sess.StartTime) > e.window {
			if err := tx.MarkAbsent(ctx, studentID, eventID); err != nil {
				return err
			}
			expired = true
			return nil // commit the absence mark, then report failure
		}

		if err := tx.MarkPresent(ctx, studentID, eventID, now, lat, lng); err != nil {
			return err
		}
		res = CheckInResult{StartTime: now}
		if sess != nil {
			res.DistanceMeters = geo.Distance(sess.StartLatitude, sess.StartLongitude, lat, lng)
		}
		return nil
	})
	if err != nil {
		return CheckInResult{}, err
	}
	if expired {
		metrics.WindowExpired.Inc()
		metrics.MarkedAbsent.Inc()
		e.publish(ctx, "checkin_expired", "student", studentID, eventID, e.now().UTC())
		return CheckInResult{}, newError(CodeWindowExpired, "attendance window has expired; marked as absent")
	}

	metrics.CheckIns.Inc()
	e.publish(ctx, "student_present", "student", studentID, eventID, res.StartTime)
	return res, nil
}

// CheckOutStudent closes the student's present row. The status stays
// present; only the end time and location are recorded.
func (e *Engine) CheckOutStudent(ctx context.Context, studentID, eventID int64, lat, lng float64) (CheckOutResult, error) {
	if studentID <= 0 || eventID <= 0 {
		return CheckOutResult{}, newError(CodeValidation, "student and event are required")
	}

	var res CheckOutResult
	err := e.store.Transact(ctx, func(tx Tx) error {
		st, err := tx.Student(ctx, studentID)
		if err != nil {
			return err
		}
		if st == nil {
			return newError(CodeNotFound, "student not found")
		}
		ev, err := tx.EventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if ev == nil || ev.VolunteerID == nil || st.VolunteerID == nil || *ev.VolunteerID != *st.VolunteerID {
			return newError(CodeNotFound, "event not found or not linked to your volunteer")
		}
		if ev.IsCompleted {
			return newError(CodeCompleted, "event is completed and cannot be modified")
		}

		rec, err := tx.PresentForUpdate(ctx, studentID, eventID)
		if err != nil {
			return err
		}
		if rec == nil {
			return newError(CodeNoActiveRecord, "no active attendance record found for this event")
		}

		now := e.now().UTC()
		dur := 0.0
		if rec.StartTime != nil {
			dur = now.Sub(*rec.StartTime).Minutes()
			if dur < 0 {
				dur = 0
			}
		}
		if err := tx.CloseRecord(ctx, studentID, eventID, now, lat, lng); err != nil {
			return err
		}
		res = CheckOutResult{EndTime: now, DurationMinutes: dur}
		return nil
	})
	if err != nil {
		return CheckOutResult{}, err
	}

	metrics.CheckOuts.Inc()
	e.publish(ctx, "student_checkout", "student", studentID, eventID, res.EndTime)
	return res, nil
}

// auditEvent is the queue payload for one committed transition.
type auditEvent struct {
	ID      string    `json:"id"`
	Kind    string    `json:"kind"`
	Role    string    `json:"role"`
	ActorID int64     `json:"actor_id"`
	EventID int64     `json:"event_id"`
	At      time.Time `json:"at"`
}

func (e *Engine) publish(ctx context.Context, kind, role string, actorID, eventID int64, at time.Time) {
	if e.audit == nil {
		return
	}
	body, err := json.Marshal(auditEvent{
		ID:      uuid.NewString(),
		Kind:    kind,
		Role:    role,
		ActorID: actorID,
		EventID: eventID,
		At:      at,
	})
	if err != nil {
		return
	}
	if err := e.audit.Publish(ctx, queue.Message{Type: "lifecycle", Body: body}); err != nil {
		log.Printf("audit publish failed: %v", err)
	}
}
