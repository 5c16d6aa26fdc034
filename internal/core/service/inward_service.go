package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/jobcard-erp/internal/core/domain"
	"github.com/rl1809/jobcard-erp/internal/port"
)

var ErrDuplicateRequest = errors.New("duplicate request")

type Options struct {
	// OpTimeout bounds every store round trip of one call; zero disables it
	OpTimeout time.Duration
	// RejectNonPositiveQty makes zero and negative line quantities a validation error
	RejectNonPositiveQty bool
}

type InwardService struct {
	repo  port.InwardRepository
	cache port.CacheRepository
	opts  Options
	log   logrus.FieldLogger
}

// NewInwardService wires the aggregate manager. cache may be nil, which turns
// off idempotency keys.
func NewInwardService(repo port.InwardRepository, cache port.CacheRepository, opts Options, log logrus.FieldLogger) *InwardService {
	return &InwardService{
		repo:  repo,
		cache: cache,
		opts:  opts,
		log:   log.WithField("module", "inward"),
	}
}

func (s *InwardService) Create(ctx context.Context, idempotencyKey string, in domain.InwardInput) (int64, error) {
	const op = "inward.create"

	if err := s.validate(op, in); err != nil {
		return 0, err
	}

	ctx, cancel := withTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	claimed, err := s.claim(ctx, op, idempotencyKey)
	if err != nil {
		return 0, err
	}

	id, err := s.repo.CreateInward(ctx, in)
	if err != nil {
		if claimed {
			// let the client retry with the same key
			s.release(idempotencyKey)
		}
		return 0, domain.Storage(op, err)
	}

	s.log.WithFields(logrus.Fields{"inward_id": id, "lines": len(in.Lines)}).Info("inward created")
	return id, nil
}

func (s *InwardService) Update(ctx context.Context, id int64, in domain.InwardInput) error {
	const op = "inward.update"

	if id <= 0 {
		return domain.Validation(op, "invalid inward id %d", id)
	}
	if err := s.validate(op, in); err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	found, err := s.repo.UpdateInward(ctx, id, in)
	if err != nil {
		return domain.Storage(op, err)
	}
	if !found {
		return domain.NotFound(op, "inward %d not found", id)
	}

	s.log.WithFields(logrus.Fields{"inward_id": id, "lines": len(in.Lines)}).Info("inward updated")
	return nil
}

func (s *InwardService) Delete(ctx context.Context, ids []int64) error {
	const op = "inward.delete"

	if len(ids) == 0 {
		return domain.Validation(op, "ids must not be empty")
	}
	for _, id := range ids {
		if id <= 0 {
			return domain.Validation(op, "invalid inward id %d", id)
		}
	}

	ctx, cancel := withTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	if err := s.repo.DeleteInwards(ctx, ids); err != nil {
		return domain.Storage(op, err)
	}

	s.log.WithField("ids", ids).Info("inwards deleted")
	return nil
}

func (s *InwardService) List(ctx context.Context) ([]domain.Inward, error) {
	ctx, cancel := withTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	inwards, err := s.repo.ListInwards(ctx)
	if err != nil {
		return nil, domain.Storage("inward.list", err)
	}
	return inwards, nil
}

func (s *InwardService) Get(ctx context.Context, id int64) (*domain.Inward, error) {
	const op = "inward.get"

	if id <= 0 {
		return nil, domain.Validation(op, "invalid inward id %d", id)
	}

	ctx, cancel := withTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	inw, err := s.repo.GetInward(ctx, id)
	if err != nil {
		return nil, domain.Storage(op, err)
	}
	if inw == nil {
		return nil, domain.NotFound(op, "inward %d not found", id)
	}
	return inw, nil
}

func (s *InwardService) validate(op string, in domain.InwardInput) error {
	if in.Date.IsZero() {
		return domain.Validation(op, "inward_date is required")
	}
	if in.CustomerID <= 0 {
		return domain.Validation(op, "customer_id is required")
	}
	for i, line := range in.Lines {
		if line.PartID <= 0 {
			return domain.Validation(op, "parts[%d]: part_id is required", i)
		}
		if s.opts.RejectNonPositiveQty && !line.Qty.IsPositive() {
			return domain.Validation(op, "parts[%d]: qty must be greater than 0", i)
		}
		if !domain.QtyFits(line.Qty) {
			return domain.Validation(op, "parts[%d]: qty must have at most %d decimal places and fewer than 12 integer digits", i, domain.QtyScale)
		}
	}
	return nil
}

func (s *InwardService) claim(ctx context.Context, op, key string) (bool, error) {
	if key == "" || s.cache == nil {
		return false, nil
	}

	ok, err := s.cache.SetIdempotency(ctx, idempotencyKey(key))
	if err != nil {
		return false, domain.Storage(op, fmt.Errorf("idempotency check failed: %w", err))
	}
	if !ok {
		return false, domain.Conflict(op, ErrDuplicateRequest)
	}
	return true, nil
}

func (s *InwardService) release(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := s.cache.ClearIdempotency(ctx, idempotencyKey(key)); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("failed to release idempotency key")
	}
}

func idempotencyKey(key string) string {
	return "inward:" + key
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
