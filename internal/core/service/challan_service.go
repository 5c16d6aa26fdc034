package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/jobcard-erp/internal/core/domain"
	"github.com/rl1809/jobcard-erp/internal/port"
)

const (
	grnLockKey     = "lock:grn"
	defaultLockTTL = 5 * time.Second
)

type ChallanOptions struct {
	Options
	// LockTTL bounds how long one allocation may hold the distributed lock
	LockTTL time.Duration
	// MaxRetries is the number of extra allocation attempts after a sequence conflict
	MaxRetries int
}

type ChallanService struct {
	repo   port.ChallanRepository
	locker port.Locker
	opts   ChallanOptions
	log    logrus.FieldLogger
}

// NewChallanService wires GRN allocation. locker may be nil; the unique index
// and retry loop still keep numbers distinct without it.
func NewChallanService(repo port.ChallanRepository, locker port.Locker, opts ChallanOptions, log logrus.FieldLogger) *ChallanService {
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &ChallanService{
		repo:   repo,
		locker: locker,
		opts:   opts,
		log:    log.WithField("module", "inward_lc_challan"),
	}
}

// Create stores c under the next GRN number. Any GRN number on c is ignored.
func (s *ChallanService) Create(ctx context.Context, c domain.Challan) (domain.Challan, error) {
	const op = "challan.create"

	if err := s.validate(op, c); err != nil {
		return domain.Challan{}, err
	}
	c.ID = 0
	c.GRNNo = ""

	ctx, cancel := withTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	release := s.lock(ctx)
	defer release()

	var lastErr error
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		created, err := s.repo.CreateChallanWithNextGRN(ctx, c)
		if err == nil {
			s.log.WithFields(logrus.Fields{"id": created.ID, "grn_no": created.GRNNo}).Info("challan created")
			return created, nil
		}
		if errors.Is(err, domain.ErrGRNExhausted) {
			return domain.Challan{}, domain.Conflict(op, err)
		}
		if !errors.Is(err, domain.ErrSequenceConflict) || ctx.Err() != nil {
			return domain.Challan{}, domain.Storage(op, err)
		}

		lastErr = err
		s.log.WithError(err).WithField("attempt", attempt+1).Warn("grn allocation conflict, retrying")
	}

	return domain.Challan{}, domain.Storage(op, lastErr)
}

func (s *ChallanService) NextGRN(ctx context.Context) (string, error) {
	ctx, cancel := withTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	next, err := s.repo.NextGRN(ctx)
	if err != nil {
		return "", domain.Storage("challan.next_grn", err)
	}
	return next, nil
}

func (s *ChallanService) List(ctx context.Context) ([]domain.Challan, error) {
	ctx, cancel := withTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	challans, err := s.repo.ListChallans(ctx)
	if err != nil {
		return nil, domain.Storage("challan.list", err)
	}
	return challans, nil
}

func (s *ChallanService) Get(ctx context.Context, id int64) (*domain.Challan, error) {
	const op = "challan.get"

	if id <= 0 {
		return nil, domain.Validation(op, "invalid challan id %d", id)
	}

	ctx, cancel := withTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	c, err := s.repo.GetChallan(ctx, id)
	if err != nil {
		return nil, domain.Storage(op, err)
	}
	if c == nil {
		return nil, domain.NotFound(op, "challan %d not found", id)
	}
	return c, nil
}

// Update rewrites the record, including its GRN number exactly as supplied.
func (s *ChallanService) Update(ctx context.Context, id int64, c domain.Challan) (domain.Challan, error) {
	const op = "challan.update"

	if id <= 0 {
		return domain.Challan{}, domain.Validation(op, "invalid challan id %d", id)
	}
	if c.GRNNo == "" {
		return domain.Challan{}, domain.Validation(op, "grn_no is required")
	}
	if !domain.ValidGRN(c.GRNNo) {
		return domain.Challan{}, domain.Validation(op, "grn_no must be 1 to %d digits", domain.MaxGRNDigits)
	}
	if err := s.validate(op, c); err != nil {
		return domain.Challan{}, err
	}
	c.ID = id

	ctx, cancel := withTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	found, err := s.repo.UpdateChallan(ctx, c)
	if errors.Is(err, domain.ErrDuplicateGRN) {
		return domain.Challan{}, domain.Conflict(op, err)
	}
	if err != nil {
		return domain.Challan{}, domain.Storage(op, err)
	}
	if !found {
		return domain.Challan{}, domain.NotFound(op, "challan %d not found", id)
	}
	return c, nil
}

func (s *ChallanService) Delete(ctx context.Context, id int64) error {
	const op = "challan.delete"

	if id <= 0 {
		return domain.Validation(op, "invalid challan id %d", id)
	}

	ctx, cancel := withTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	found, err := s.repo.DeleteChallan(ctx, id)
	if err != nil {
		return domain.Storage(op, err)
	}
	if !found {
		return domain.NotFound(op, "challan %d not found", id)
	}
	return nil
}

func (s *ChallanService) validate(op string, c domain.Challan) error {
	if c.GRNDate.IsZero() {
		return domain.Validation(op, "grn_date is required")
	}
	if c.SupplierID <= 0 {
		return domain.Validation(op, "supplier_id is required")
	}
	if c.ItemID <= 0 {
		return domain.Validation(op, "item_id is required")
	}
	if c.Qty.IsZero() {
		return domain.Validation(op, "qty is required")
	}
	if s.opts.RejectNonPositiveQty && !c.Qty.IsPositive() {
		return domain.Validation(op, "qty must be greater than 0")
	}
	if !domain.QtyFits(c.Qty) {
		return domain.Validation(op, "qty must have at most %d decimal places and fewer than 12 integer digits", domain.QtyScale)
	}
	return nil
}

// lock takes the allocation lock when a locker is configured. Failing to get
// it is not fatal: the store transaction and unique index still serialize.
func (s *ChallanService) lock(ctx context.Context) func() {
	noop := func() {}
	if s.locker == nil {
		return noop
	}

	release, err := s.locker.Obtain(ctx, grnLockKey, s.opts.LockTTL)
	if err != nil {
		if errors.Is(err, port.ErrLockNotObtained) {
			s.log.Warn("could not obtain grn lock; proceeding without it")
		} else {
			s.log.WithError(err).Warn("error obtaining grn lock; proceeding without it")
		}
		return noop
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := release(ctx); err != nil {
			s.log.WithError(err).Warn("failed to release grn lock")
		}
	}
}
