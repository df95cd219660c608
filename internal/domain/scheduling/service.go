package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/cache"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/events"
)

const (
	DefaultSlotDuration = time.Hour

	readAttempts = 3
	readBackoff  = 50 * time.Millisecond
	eventTimeout = 5 * time.Second
)

// Event types published after a successful write.
const (
	EventAppointmentCreated     = "appointment.created"
	EventAppointmentRescheduled = "appointment.rescheduled"
	EventAppointmentCancelled   = "appointment.cancelled"
	EventAppointmentCompleted   = "appointment.completed"
	EventAvailabilityReplaced   = "availability.replaced"
)

type Service struct {
	windows      AvailabilityRepository
	appointments AppointmentRepository
	directory    Directory
	tx           TxRunner
	cache        cache.Cache
	events       events.Publisher
	logger       zerolog.Logger
	slotDuration time.Duration
	location     *time.Location
	now          func() time.Time
}

type Option func(*Service)

func WithCache(c cache.Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l.With().Str("component", "scheduling").Logger() }
}

func WithSlotDuration(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.slotDuration = d
		}
	}
}

// WithLocation sets the clinic time zone used for calendar dates.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(windows AvailabilityRepository, appointments AppointmentRepository, directory Directory, tx TxRunner, opts ...Option) *Service {
	s := &Service{
		windows:      windows,
		appointments: appointments,
		directory:    directory,
		tx:           tx,
		cache:        cache.Nop{},
		events:       events.Nop{},
		logger:       zerolog.Nop(),
		slotDuration: DefaultSlotDuration,
		location:     time.UTC,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location is the clinic time zone.
func (s *Service) Location() *time.Location { return s.location }

// read retries fn while it fails with a transient storage error. Only used
// for queries; writes are never replayed.
func (s *Service) read(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= readAttempts; attempt++ {
		if err = fn(); err == nil || !db.IsTransient(err) {
			return err
		}
		if attempt == readAttempts {
			break
		}
		s.logger.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("transient read failure, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readBackoff * time.Duration(attempt)):
		}
	}
	return err
}

// inTx runs fn in a transaction. Failures from the transaction itself, such
// as an unreachable database at begin or commit, come back as ErrStorage;
// errors already classified by fn and context expiry pass through.
func (s *Service) inTx(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := s.tx.InTx(ctx, fn)
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return storageError(op, err)
}

// committed runs the post-commit side effects of a write: cached
// availability is dropped and an event is published. Neither can fail the
// caller's request.
func (s *Service) committed(ctx context.Context, eventType string, payload interface{}) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventTimeout)
	defer cancel()

	s.cache.Purge(ctx)
	if err := s.events.Publish(ctx, events.New(eventType, payload, s.now())); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("publish event")
	}
}
