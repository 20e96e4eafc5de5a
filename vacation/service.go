package vacation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/warp/vacation-engine/generic"
)

// =============================================================================
// SERVICE - Entry point for every ledger and workflow operation
// =============================================================================

// Service composes the store with the external collaborators. It holds no
// background goroutines; each call is one transaction.
type Service struct {
	store     Store
	hierarchy OrgHierarchyResolver
	holidays  generic.HolidayCalendar
	users     UserDirectory
	timeTypes TimeTypes
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithHierarchy(h OrgHierarchyResolver) Option {
	return func(s *Service) { s.hierarchy = h }
}

func WithHolidays(h generic.HolidayCalendar) Option {
	return func(s *Service) { s.holidays = h }
}

func WithUsers(u UserDirectory) Option {
	return func(s *Service) { s.users = u }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithTimeTypes overrides entries of the default multiplier table.
func WithTimeTypes(tt TimeTypes) Option {
	return func(s *Service) { s.timeTypes = s.timeTypes.Merge(tt) }
}

// WithClock replaces time.Now. Tests use it to pin "now".
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		holidays:  generic.NoHolidays{},
		timeTypes: DefaultTimeTypes(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TimeTypes returns the active multiplier table.
func (s *Service) TimeTypes() TimeTypes { return s.timeTypes }

// inTx runs fn in one transaction. Consistency violations are logged here so
// that no caller can swallow them silently.
func (s *Service) inTx(ctx context.Context, op string, fn func(tx Tx) error) error {
	err := s.store.WithTx(ctx, fn)
	if err != nil && errors.Is(err, generic.ErrConsistency) {
		s.logger.ErrorContext(ctx, "invariant violated, transaction rolled back",
			slog.String("op", op), slog.Any("error", err))
	}
	return err
}

// user resolves a user through the directory. Without a directory every
// non-blank id is accepted with standard work hours.
func (s *Service) user(ctx context.Context, id UserID) (User, error) {
	if id == "" {
		return User{}, generic.Invalid("user_id", "must not be blank")
	}
	if s.users == nil {
		return User{ID: id, WorkHours: generic.StandardWorkHours}, nil
	}
	ok, err := s.users.Exists(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !ok {
		return User{}, generic.NotFound("user", id)
	}
	return s.users.Get(ctx, id)
}

func (s *Service) candidateApprovers(ctx context.Context, id UserID) ([]ApproverCandidate, error) {
	if s.hierarchy == nil {
		return nil, nil
	}
	return s.hierarchy.CandidateApprovers(ctx, id)
}
