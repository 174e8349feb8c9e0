package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"biztrack/internal/api"
	"biztrack/internal/core"
	"biztrack/internal/events"
	"biztrack/internal/log"
	"biztrack/internal/metrics"
	"biztrack/internal/session"
)

// Writer creates and replaces records of one collection.
type Writer[T any] interface {
	Create(ctx context.Context, rec T, token string) (T, error)
	Update(ctx context.Context, rec T, token string) (T, error)
}

// Finder looks a record up among the user's stored records.
type Finder[T any] interface {
	Find(ctx context.Context, userID, token, id string) (T, error)
}

// SessionSource supplies the signed-in user.
type SessionSource interface {
	Current(ctx context.Context) (session.Session, error)
}

// Invalidator forgets cached lookup tables of a user.
type Invalidator interface {
	Invalidate(userID string)
}

type validatable interface {
	api.Record
	Validate() error
}

// LedgerService validates and saves records, then announces the change.
type LedgerService struct {
	receipts   Writer[core.Receipt]
	jobs       Writer[core.Job]
	tripLogs   Writer[core.TripLog]
	clients    Writer[core.Client]
	categories Writer[core.Category]
	vehicles   Writer[core.Vehicle]

	sessions    SessionSource
	publisher   events.Publisher
	invalidator Invalidator
	logger      *log.Logger
	metrics     *metrics.Metrics
	newID       func() string
}

type LedgerOption func(*LedgerService)

func WithInvalidator(i Invalidator) LedgerOption {
	return func(s *LedgerService) { s.invalidator = i }
}

func WithLedgerLogger(l *log.Logger) LedgerOption {
	return func(s *LedgerService) {
		if l != nil {
			s.logger = l.WithComponent(log.ComponentLedger)
		}
	}
}

func WithLedgerMetrics(m *metrics.Metrics) LedgerOption {
	return func(s *LedgerService) { s.metrics = m }
}

func NewLedgerService(b *api.Backend, sessions SessionSource, publisher events.Publisher, opts ...LedgerOption) *LedgerService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	s := &LedgerService{
		receipts:   b.Receipts,
		jobs:       b.Jobs,
		tripLogs:   b.TripLogs,
		clients:    b.Clients,
		categories: b.Categories,
		vehicles:   b.Vehicles,
		sessions:   sessions,
		publisher:  publisher,
		logger:     log.Discard().WithComponent(log.ComponentLedger),
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LedgerService) SaveReceipt(ctx context.Context, r core.Receipt) (core.Receipt, error) {
	return save(ctx, s, "receipts", s.receipts, r, func(r core.Receipt, id string) core.Receipt {
		r.ID = id
		return r
	})
}

// SaveJob also stamps the job with the signed-in user when it has no owner.
func (s *LedgerService) SaveJob(ctx context.Context, j core.Job) (core.Job, error) {
	if j.UserID == "" {
		if sess, err := s.sessions.Current(ctx); err == nil {
			j.UserID = sess.UserID
		}
	}
	return save(ctx, s, "jobs", s.jobs, j, func(j core.Job, id string) core.Job {
		j.ID = id
		return j
	})
}

func (s *LedgerService) SaveTripLog(ctx context.Context, t core.TripLog) (core.TripLog, error) {
	return save(ctx, s, "triplogs", s.tripLogs, t, func(t core.TripLog, id string) core.TripLog {
		t.ID = id
		return t
	})
}

func (s *LedgerService) SaveClient(ctx context.Context, c core.Client) (core.Client, error) {
	return save(ctx, s, "clients", s.clients, c, func(c core.Client, id string) core.Client {
		c.ID = id
		return c
	})
}

func (s *LedgerService) SaveCategory(ctx context.Context, c core.Category) (core.Category, error) {
	return save(ctx, s, "categories", s.categories, c, func(c core.Category, id string) core.Category {
		c.ID = id
		return c
	})
}

func (s *LedgerService) SaveVehicle(ctx context.Context, v core.Vehicle) (core.Vehicle, error) {
	return save(ctx, s, "vehicles", s.vehicles, v, func(v core.Vehicle, id string) core.Vehicle {
		v.ID = id
		return v
	})
}

// previous looks up the stored record when w can search. A failed lookup
// only costs the event its change list.
func previous[T any](ctx context.Context, s *LedgerService, w Writer[T], sess session.Session, id string) *T {
	f, ok := w.(Finder[T])
	if !ok {
		return nil
	}
	rec, err := f.Find(ctx, sess.UserID, sess.Token, id)
	if err != nil {
		s.logger.DebugContext(ctx, "Previous version unavailable",
			log.NewFields().WithOperation(log.OpRead).WithRecord("", id).WithError(err).ToSlice()...)
		return nil
	}
	return &rec
}

// save creates rec when it has no id yet and replaces it otherwise.
func save[T validatable](ctx context.Context, s *LedgerService, entity string, w Writer[T], rec T, withID func(T, string) T) (T, error) {
	if err := rec.Validate(); err != nil {
		return rec, fmt.Errorf("save %s: %w", entity, err)
	}
	sess, err := s.sessions.Current(ctx)
	if err != nil {
		return rec, fmt.Errorf("save %s: %w", entity, err)
	}

	op := log.OpUpdate
	var (
		saved T
		prev  *T
	)
	if rec.RecordID() == "" {
		op = log.OpCreate
		rec = withID(rec, s.newID())
		saved, err = w.Create(ctx, rec, sess.Token)
	} else {
		prev = previous(ctx, s, w, sess, rec.RecordID())
		saved, err = w.Update(ctx, rec, sess.Token)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "Save failed",
			log.NewFields().WithOperation(op).WithRecord(entity, rec.RecordID()).WithError(err).ToSlice()...)
		return rec, fmt.Errorf("save %s: %w", entity, err)
	}

	s.logger.InfoContext(ctx, "Record saved",
		log.NewFields().WithOperation(op).WithRecord(entity, saved.RecordID()).ToSlice()...)

	switch entity {
	case "clients", "categories", "vehicles":
		if s.invalidator != nil {
			s.invalidator.Invalidate(sess.UserID)
		}
	}

	// the record is saved; a lost event is only logged
	msg := events.NewRecordChanged(entity, saved.RecordID(), op, sess.UserID)
	if prev != nil {
		msg.Changes = changedFields(*prev, saved)
	}
	err = s.publisher.PublishRecordChanged(ctx, msg)
	s.metrics.EventPublished(entity, err)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish record change",
			log.NewFields().WithOperation(log.OpPublish).WithRecord(entity, saved.RecordID()).WithError(err).ToSlice()...)
	}
	return saved, nil
}
