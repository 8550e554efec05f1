package lifecycle

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventtrack/internal/queue"
)

// fakeStore keeps lifecycle state in maps. Transact holds one lock for
// the whole callback, which is the serialization the engine asks of the
// real store.
type fakeStore struct {
	mu       sync.Mutex
	events   map[int64]*Event
	students map[int64]*Student
	sessions []*Session
	records  map[recordKey]*Record
	nextID   int64
}

type recordKey struct{ student, event int64 }

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:   map[int64]*Event{},
		students: map[int64]*Student{},
		records:  map[recordKey]*Record{},
		nextID:   1,
	}
}

func (f *fakeStore) Transact(ctx context.Context, fn func(tx Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(f)
}

func (f *fakeStore) EventForUpdate(ctx context.Context, eventID int64) (*Event, error) {
	ev, ok := f.events[eventID]
	if !ok {
		return nil, nil
	}
	cp := *ev
	return &cp, nil
}

func (f *fakeStore) SetEventStarted(ctx context.Context, eventID int64) error {
	f.events[eventID].IsStarted = true
	return nil
}

func (f *fakeStore) SetEventCompleted(ctx context.Context, eventID int64) error {
	f.events[eventID].IsCompleted = true
	return nil
}

func (f *fakeStore) Student(ctx context.Context, studentID int64) (*Student, error) {
	st, ok := f.students[studentID]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (f *fakeStore) InsertSession(ctx context.Context, volunteerID, eventID int64, start time.Time, lat, lng float64) error {
	f.sessions = append(f.sessions, &Session{
		ID:             f.nextID,
		VolunteerID:    volunteerID,
		EventID:        eventID,
		StartTime:      start,
		StartLatitude:  lat,
		StartLongitude: lng,
	})
	f.nextID++
	return nil
}

func (f *fakeStore) OpenSession(ctx context.Context, volunteerID, eventID int64, lock bool) (*Session, error) {
	for _, s := range f.sessions {
		if s.VolunteerID == volunteerID && s.EventID == eventID && s.EndTime == nil {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CloseSession(ctx context.Context, volunteerID, eventID int64, end time.Time, lat, lng float64) error {
	for _, s := range f.sessions {
		if s.VolunteerID == volunteerID && s.EventID == eventID && s.EndTime == nil {
			e := end
			s.EndTime = &e
		}
	}
	return nil
}

func (f *fakeStore) SeedPending(ctx context.Context, eventID, volunteerID int64, lat, lng float64, at time.Time) (int64, error) {
	var seeded int64
	for id, st := range f.students {
		if st.VolunteerID == nil || *st.VolunteerID != volunteerID {
			continue
		}
		key := recordKey{student: id, event: eventID}
		if _, exists := f.records[key]; exists {
			continue
		}
		t := at
		f.records[key] = &Record{
			ID:        f.nextID,
			StudentID: id,
			EventID:   eventID,
			Status:    StatusPending,
			StartTime: &t,
		}
		f.nextID++
		seeded++
	}
	return seeded, nil
}

func (f *fakeStore) PendingForUpdate(ctx context.Context, studentID, eventID int64) (*Record, error) {
	rec, ok := f.records[recordKey{student: studentID, event: eventID}]
	if !ok || rec.Status != StatusPending {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeStore) PresentForUpdate(ctx context.Context, studentID, eventID int64) (*Record, error) {
	rec, ok := f.records[recordKey{student: studentID, event: eventID}]
	if !ok || rec.Status != StatusPresent || rec.EndTime != nil {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeStore) MarkPresent(ctx context.Context, studentID, eventID int64, at time.Time, lat, lng float64) error {
	rec := f.records[recordKey{student: studentID, event: eventID}]
	if rec != nil && rec.Status == StatusPending {
		t := at
		rec.Status = StatusPresent
		rec.StartTime = &t
	}
	return nil
}

func (f *fakeStore) MarkAbsent(ctx context.Context, studentID, eventID int64) error {
	rec := f.records[recordKey{student: studentID, event: eventID}]
	if rec != nil && rec.Status == StatusPending {
		rec.Status = StatusAbsent
	}
	return nil
}

func (f *fakeStore) MarkAllAbsent(ctx context.Context, eventID int64) (int64, error) {
	var n int64
	for _, rec := range f.records {
		if rec.EventID == eventID && rec.Status == StatusPending {
			rec.Status = StatusAbsent
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CloseRecord(ctx context.Context, studentID, eventID int64, end time.Time, lat, lng float64) error {
	rec := f.records[recordKey{student: studentID, event: eventID}]
	if rec != nil && rec.Status == StatusPresent && rec.EndTime == nil {
		t := end
		rec.EndTime = &t
	}
	return nil
}

// capturingPublisher records audit messages for assertions.
type capturingPublisher struct {
	mu   sync.Mutex
	msgs []queue.Message
}

func (p *capturingPublisher) Publish(ctx context.Context, msg queue.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *capturingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, m := range p.msgs {
		var evt auditEvent
		if err := json.Unmarshal(m.Body, &evt); err == nil {
			out = append(out, evt.Kind)
		}
	}
	return out
}

type fixture struct {
	store  *fakeStore
	engine *Engine
	audit  *capturingPublisher
	now    time.Time
}

const (
	volA     = int64(1)
	volB     = int64(2)
	studentA = int64(10)
	studentB = int64(11)
	studentC = int64(20) // supervised by volB
	eventA   = int64(100)
	eventB   = int64(200)
	eventNoV = int64(300)
)

func ptr(v int64) *int64 { return &v }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs := newFakeStore()
	fs.events[eventA] = &Event{ID: eventA, VolunteerID: ptr(volA)}
	fs.events[eventB] = &Event{ID: eventB, VolunteerID: ptr(volB)}
	fs.events[eventNoV] = &Event{ID: eventNoV}
	fs.students[studentA] = &Student{ID: studentA, VolunteerID: ptr(volA)}
	fs.students[studentB] = &Student{ID: studentB, VolunteerID: ptr(volA)}
	fs.students[studentC] = &Student{ID: studentC, VolunteerID: ptr(volB)}

	audit := &capturingPublisher{}
	eng := NewEngine(fs, time.Hour, audit)
	fx := &fixture{store: fs, engine: eng, audit: audit, now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
	eng.now = func() time.Time { return fx.now }
	return fx
}

func (fx *fixture) advance(d time.Duration) { fx.now = fx.now.Add(d) }

func code(t *testing.T, err error) Code {
	t.Helper()
	de, ok := AsError(err)
	require.True(t, ok, "expected lifecycle error, got %v", err)
	return de.Code
}

func TestStartEvent(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	res, err := fx.engine.StartEvent(ctx, volA, eventA, 12.97, 77.59)
	require.NoError(t, err)
	assert.Equal(t, fx.now, res.StartTime)
	assert.EqualValues(t, 2, res.SeededPending, "one pending row per supervised student")

	ev := fx.store.events[eventA]
	assert.True(t, ev.IsStarted)
	assert.False(t, ev.IsCompleted)

	sess, err := fx.store.OpenSession(ctx, volA, eventA, false)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, fx.now, sess.StartTime)

	assert.Equal(t, StatusPending, fx.store.records[recordKey{studentA, eventA}].Status)
	assert.Equal(t, StatusPending, fx.store.records[recordKey{studentB, eventA}].Status)
	assert.Nil(t, fx.store.records[recordKey{studentC, eventA}], "other volunteer's students are not seeded")

	assert.Equal(t, []string{"event_started"}, fx.audit.kinds())
}

func TestStartEventTwice(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	_, err := fx.engine.StartEvent(ctx, volA, eventA, 0, 0)
	require.NoError(t, err)

	_, err = fx.engine.StartEvent(ctx, volA, eventA, 0, 0)
	assert.Equal(t, CodeAlreadyStarted, code(t, err))

	var open int
	for _, s := range fx.store.sessions {
		if s.EventID == eventA && s.EndTime == nil {
			open++
		}
	}
	assert.Equal(t, 1, open, "no duplicate open session")
}

func TestStartEventAuthorization(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	tests := []struct {
		name        string
		volunteerID int64
		eventID     int64
		want        Code
	}{
		{"unknown event", volA, 999, CodeNotFound},
		{"not assigned to caller", volA, eventB, CodeNotFound},
		{"event without volunteer", volA, eventNoV, CodeNotFound},
		{"zero event id", volA, 0, CodeValidation},
		{"zero volunteer id", 0, eventA, CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.engine.StartEvent(ctx, tt.volunteerID, tt.eventID, 0, 0)
			assert.Equal(t, tt.want, code(t, err))
		})
	}
}

func TestSeedPendingIsIdempotent(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	_, err := fx.engine.StartEvent(ctx, volA, eventA, 0, 0)
	require.NoError(t, err)

	seeded, err := fx.store.SeedPending(ctx, eventA, volA, 0, 0, fx.now)
	require.NoError(t, err)
	assert.EqualValues(t, 0, seeded, "re-seeding changes no rows")
}

func TestEndEvent(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	_, err := fx.engine.StartEvent(ctx, volA, eventA, 0, 0)
	require.NoError(t, err)

	fx.advance(45 * time.Minute)
	res, err := fx.engine.EndEvent(ctx, volA, eventA, 0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 45.0, res.DurationMinutes, 0.001)
	assert.EqualValues(t, 2, res.MarkedAbsent)

	ev := fx.store.events[eventA]
	assert.True(t, ev.IsStarted)
	assert.True(t, ev.IsCompleted)

	for key, rec := range fx.store.records {
		if key.event == eventA {
			assert.Equal(t, StatusAbsent, rec.Status, "no pending rows survive a completed event")
		}
	}

	sess, err := fx.store.OpenSession(ctx, volA, eventA, false)
	require.NoError(t, err)
	assert.Nil(t, sess, "session is closed")
}

func TestEndEventStateConflicts(t *testing.T) {
	ctx := context.Background()

	t.Run("not started", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.engine.EndEvent(ctx, volA, eventA, 0, 0)
		assert.Equal(t, CodeNotStarted, code(t, err))
	})

	t.Run("already completed", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.engine.StartEvent(ctx, volA, eventA, 0, 0)
		require.NoError(t, err)
		_, err = fx.engine.EndEvent(ctx, volA, eventA, 0, 0)
		require.NoError(t, err)

		_, err = fx.engine.EndEvent(ctx, volA, eventA, 0, 0)
		assert.Equal(t, CodeCompleted, code(t, err))
	})

	t.Run("started but no open session", func(t *testing.T) {
		fx := newFixture(t)
		fx.store.events[eventA].IsStarted = true
		_, err := fx.engine.EndEvent(ctx, volA, eventA, 0, 0)
		assert.Equal(t, CodeNoActiveSession, code(t, err))
	})
}

func TestCheckInWithinWindow(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	_, err := fx.engine.StartEvent(ctx, volA, eventA, 0, 0)
	require.NoError(t, err)

	fx.advance(10 * time.Minute)
	res, err := fx.engine.CheckInStudent(ctx, studentA, eventA, 12.97, 77.59)
	require.NoError(t, err)
	assert.Equal(t, fx.now, res.StartTime)
	assert.Greater(t, res.DistanceMeters, 0.0, "checked in away from the session origin")

	rec := fx.store.records[recordKey{studentA, eventA}]
	assert.Equal(t, StatusPresent, rec.Status)
	require.NotNil(t, rec.StartTime)
	assert.Equal(t, fx.now, *rec.StartTime)
}

func TestCheckInAtExactWindowBoundary(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	_, err := fx.engine.StartEvent(ctx, volA, eventA, 0, 0)
	require.NoError(t, err)

	// Elapsed of exactly the window still passes; only strictly greater
	// expires.
	fx.advance(60 * time.Minute)
	_, err = fx.engine.CheckInStudent(ctx, studentA, eventA, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusPresent, fx.store.records[recordKey{studentA, eventA}].Status)
}

func TestCheckInAfterWindowMarksAbsent(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	_, err := fx.engine.StartEvent(ctx, volA, eventA, 0, 0)
	require.NoError(t, err)

	fx.advance(90 * time.Minute)
	_, err = fx.engine.CheckInStudent(ctx, studentA, eventA, 0, 0)
	assert.Equal(t, CodeWindowExpired, code(t, err))

	// The absence side effect sticks even though the call failed.
	assert.Equal(t, StatusAbsent, fx.store.records[recordKey{studentA, eventA}].Status)

	// Once absent the row is never rescuable.
	_, err = fx.engine.CheckInStudent(ctx, studentA, eventA, 0, 0)
	assert.Equal(t, CodeNoPendingRecord, code(t, err))
}

func TestCheckInStateConflicts(t *testing.T) {
	ctx := context.Background()

	t.Run("event not started", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.engine.CheckInStudent(ctx, studentA, eventA, 0, 0)
		assert.Equal(t, CodeNotStarted, code(t, err))
	})

	t.Run("event completed", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.engine.StartEvent(ctx, volA, eventA, 0, 0)
		require.NoError(t, err)
		_, err = fx.engine.EndEvent(ctx, volA, eventA, 0, 0)
		require.NoError(t, err)

		_, err = fx.engine.CheckInStudent(ctx, studentA, eventA, 0, 0)
		assert.Equal(t, CodeCompleted, code(t, err))
	})

	t.Run("event of another volunteer", func(t *testing.T) {
		fx := newFixture(t)
		fx.store.events[eventB].IsStarted = true
		_, err := fx.engine.CheckInStudent(ctx, studentA, eventB, 0, 0)
		assert.Equal(t, CodeNotFound, code(t, err))
	})

	t.Run("unknown student", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.engine.CheckInStudent(ctx, 999, eventA, 0, 0)
		assert.Equal(t, CodeNotFound, code(t, err))
	})

	t.Run("no pending record", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.engine.StartEvent(ctx, volA, eventA, 0, 0)
		require.NoError(t, err)
		_, err = fx.engine.CheckInStudent(ctx, studentA, eventA, 0, 0)
		require.NoError(t, err)

		// Already present, so no pending row remains.
		_, err = fx.engine.CheckInStudent(ctx, studentA, eventA, 0, 0)
		assert.Equal(t, CodeNoPendingRecord, code(t, err))
	})
}

func TestCheckOut(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	_, err := fx.engine.StartEvent(ctx, volA, eventA, 0, 0)
	require.NoError(t, err)
	fx.advance(5 * time.Minute)
	_, err = fx.engine.CheckInStudent(ctx, studentA, eventA, 0, 0)
	require.NoError(t, err)

	fx.advance(30 * time.Minute)
	res, err := fx.engine.CheckOutStudent(ctx, studentA, eventA, 0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 30.0, res.DurationMinutes, 0.001)

	rec := fx.store.records[recordKey{studentA, eventA}]
	assert.Equal(t, StatusPresent, rec.Status, "check-out keeps the row present")
	require.NotNil(t, rec.EndTime)
	assert.Equal(t, fx.now, *rec.EndTime)

	// The record is closed now.
	_, err = fx.engine.CheckOutStudent(ctx, studentA, eventA, 0, 0)
	assert.Equal(t, CodeNoActiveRecord, code(t, err))
}

func TestCheckOutWithoutCheckIn(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	_, err := fx.engine.StartEvent(ctx, volA, eventA, 0, 0)
	require.NoError(t, err)

	_, err = fx.engine.CheckOutStudent(ctx, studentA, eventA, 0, 0)
	assert.Equal(t, CodeNoActiveRecord, code(t, err))
}

// TestFullLifecycle walks the whole scenario: start at T0, student A checks
// in at T0+10m, student B tries at T0+90m, the volunteer ends at T0+120m.
func TestFullLifecycle(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	_, err := fx.engine.StartEvent(ctx, volA, eventA, 12.97, 77.59)
	require.NoError(t, err)

	fx.advance(10 * time.Minute)
	_, err = fx.engine.CheckInStudent(ctx, studentA, eventA, 12.97, 77.59)
	require.NoError(t, err)

	fx.advance(80 * time.Minute) // T0+90m
	_, err = fx.engine.CheckInStudent(ctx, studentB, eventA, 12.97, 77.59)
	assert.Equal(t, CodeWindowExpired, code(t, err))
	assert.Equal(t, StatusAbsent, fx.store.records[recordKey{studentB, eventA}].Status)

	fx.advance(30 * time.Minute) // T0+120m
	res, err := fx.engine.EndEvent(ctx, volA, eventA, 12.97, 77.59)
	require.NoError(t, err)
	assert.InDelta(t, 120.0, res.DurationMinutes, 0.001)
	assert.EqualValues(t, 0, res.MarkedAbsent, "no pending rows were left")

	ev := fx.store.events[eventA]
	assert.True(t, ev.IsStarted)
	assert.True(t, ev.IsCompleted)

	recA := fx.store.records[recordKey{studentA, eventA}]
	assert.Equal(t, StatusPresent, recA.Status, "A stays present, never checked out")
	assert.Nil(t, recA.EndTime)

	for key, rec := range fx.store.records {
		if key.event == eventA {
			assert.NotEqual(t, StatusPending, rec.Status, "completed event has no pending rows")
		}
	}

	assert.Equal(t,
		[]string{"event_started", "student_present", "checkin_expired", "event_completed"},
		fx.audit.kinds())
}

func TestDurationIsNonNegative(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	_, err := fx.engine.StartEvent(ctx, volA, eventA, 0, 0)
	require.NoError(t, err)

	// Clock skew: end before start. Duration clamps at zero.
	fx.advance(-time.Minute)
	res, err := fx.engine.EndEvent(ctx, volA, eventA, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.DurationMinutes)
}

func TestCompletedImpliesStarted(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	_, err := fx.engine.StartEvent(ctx, volA, eventA, 0, 0)
	require.NoError(t, err)
	_, err = fx.engine.EndEvent(ctx, volA, eventA, 0, 0)
	require.NoError(t, err)

	for _, ev := range fx.store.events {
		if ev.IsCompleted {
			assert.True(t, ev.IsStarted)
		}
	}
}
