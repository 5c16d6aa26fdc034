package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/jobcard-erp/internal/core/domain"
	"github.com/rl1809/jobcard-erp/internal/port"
)

var errForeignKey = errors.New("foreign key constraint fails")

type fakePart struct {
	name string
	code string
}

type fakeLine struct {
	id       int64
	inwardID int64
	partID   int64
	qty      decimal.Decimal
}

// fakeStore emulates the relational store: foreign keys, per-call
// transactions and the unique grn_no index.
type fakeStore struct {
	mu sync.Mutex

	customers map[int64]string
	parts     map[int64]fakePart

	inwards      map[int64]domain.InwardInput
	lines        []fakeLine
	nextInwardID int64
	nextLineID   int64

	challans      map[int64]domain.Challan
	nextChallanID int64

	// conflicts makes the next n allocations fail with ErrSequenceConflict
	conflicts int
	// failWith makes every call fail
	failWith error
	// delay is waited, or cut short by ctx, before each write commits
	delay time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		customers: map[int64]string{1: "Acme Forge", 2: "Bharat Gears"},
		parts: map[int64]fakePart{
			10: {name: "Crank Shaft", code: "CS-10"},
			11: {name: "Gear Blank", code: "GB-11"},
			12: {name: "Bush", code: "BU-12"},
		},
		inwards:  make(map[int64]domain.InwardInput),
		challans: make(map[int64]domain.Challan),
	}
}

// wait stands in for a slow round trip that honors cancellation.
func (f *fakeStore) wait(ctx context.Context) error {
	if f.delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(f.delay):
		return nil
	}
}

func (f *fakeStore) CreateInward(ctx context.Context, in domain.InwardInput) (int64, error) {
	if err := f.wait(ctx); err != nil {
		return 0, fmt.Errorf("insert inward: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != nil {
		return 0, f.failWith
	}
	if _, ok := f.customers[in.CustomerID]; !ok {
		return 0, fmt.Errorf("insert inward: %w (customer %d)", errForeignKey, in.CustomerID)
	}

	id := f.nextInwardID + 1
	staged, err := f.stageLines(id, in.Lines)
	if err != nil {
		return 0, err
	}

	f.nextInwardID = id
	f.inwards[id] = in
	f.commitLines(staged)
	return id, nil
}

func (f *fakeStore) UpdateInward(ctx context.Context, id int64, in domain.InwardInput) (bool, error) {
	if err := f.wait(ctx); err != nil {
		return false, fmt.Errorf("update inward: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != nil {
		return false, f.failWith
	}
	if _, ok := f.inwards[id]; !ok {
		return false, nil
	}
	if _, ok := f.customers[in.CustomerID]; !ok {
		return false, fmt.Errorf("update inward: %w (customer %d)", errForeignKey, in.CustomerID)
	}

	staged, err := f.stageLines(id, in.Lines)
	if err != nil {
		return false, err
	}

	f.inwards[id] = in
	kept := f.lines[:0]
	for _, l := range f.lines {
		if l.inwardID != id {
			kept = append(kept, l)
		}
	}
	f.lines = kept
	f.commitLines(staged)
	return true, nil
}

func (f *fakeStore) stageLines(inwardID int64, lines []domain.LineInput) ([]fakeLine, error) {
	staged := make([]fakeLine, 0, len(lines))
	for i, l := range lines {
		if _, ok := f.parts[l.PartID]; !ok {
			return nil, fmt.Errorf("insert inward part %d (part %d): %w", i, l.PartID, errForeignKey)
		}
		staged = append(staged, fakeLine{inwardID: inwardID, partID: l.PartID, qty: l.Qty})
	}
	return staged, nil
}

func (f *fakeStore) commitLines(staged []fakeLine) {
	for _, l := range staged {
		f.nextLineID++
		l.id = f.nextLineID
		f.lines = append(f.lines, l)
	}
}

func (f *fakeStore) DeleteInwards(ctx context.Context, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != nil {
		return f.failWith
	}
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := f.lines[:0]
	for _, l := range f.lines {
		if !drop[l.inwardID] {
			kept = append(kept, l)
		}
	}
	f.lines = kept
	for id := range drop {
		delete(f.inwards, id)
	}
	return nil
}

func (f *fakeStore) ListInwards(ctx context.Context) ([]domain.Inward, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != nil {
		return nil, f.failWith
	}
	ids := make([]int64, 0, len(f.inwards))
	for id := range f.inwards {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	out := make([]domain.Inward, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.inward(id))
	}
	return out, nil
}

func (f *fakeStore) GetInward(ctx context.Context, id int64) (*domain.Inward, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != nil {
		return nil, f.failWith
	}
	if _, ok := f.inwards[id]; !ok {
		return nil, nil
	}
	inw := f.inward(id)
	return &inw, nil
}

func (f *fakeStore) inward(id int64) domain.Inward {
	in := f.inwards[id]
	inw := domain.Inward{
		ID:           id,
		Date:         in.Date,
		CustomerID:   in.CustomerID,
		CustomerName: f.customers[in.CustomerID],
		Parts:        []domain.InwardLine{},
	}
	for _, l := range f.lines {
		if l.inwardID != id {
			continue
		}
		p := f.parts[l.partID]
		inw.Parts = append(inw.Parts, domain.InwardLine{
			ID:       l.id,
			PartID:   l.partID,
			PartName: p.name,
			PartCode: p.code,
			Qty:      l.qty,
		})
	}
	return inw
}

func (f *fakeStore) lineCount(inwardID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, l := range f.lines {
		if l.inwardID == inwardID {
			n++
		}
	}
	return n
}

func (f *fakeStore) maxGRN() uint64 {
	var max uint64
	for _, c := range f.challans {
		if !domain.ValidGRN(c.GRNNo) {
			continue
		}
		var n uint64
		if _, err := fmt.Sscanf(c.GRNNo, "%d", &n); err == nil && n > max {
			max = n
		}
	}
	return max
}

func (f *fakeStore) grnTaken(grn string, except int64) bool {
	for id, c := range f.challans {
		if id != except && c.GRNNo == grn {
			return true
		}
	}
	return false
}

func (f *fakeStore) CreateChallanWithNextGRN(ctx context.Context, c domain.Challan) (domain.Challan, error) {
	f.mu.Lock()
	if f.failWith != nil {
		f.mu.Unlock()
		return domain.Challan{}, f.failWith
	}
	if f.conflicts > 0 {
		f.conflicts--
		f.mu.Unlock()
		return domain.Challan{}, fmt.Errorf("%w: duplicate entry", domain.ErrSequenceConflict)
	}
	next, err := domain.NextGRN(f.maxGRN())
	f.mu.Unlock()
	if err != nil {
		return domain.Challan{}, err
	}
	c.GRNNo = next

	// the gap between read and insert is where unserialized allocators collide
	if err := f.wait(ctx); err != nil {
		return domain.Challan{}, fmt.Errorf("insert challan: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.grnTaken(c.GRNNo, 0) {
		return domain.Challan{}, fmt.Errorf("%w: duplicate entry %s", domain.ErrSequenceConflict, c.GRNNo)
	}
	f.nextChallanID++
	c.ID = f.nextChallanID
	f.challans[c.ID] = c
	return c, nil
}

func (f *fakeStore) NextGRN(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != nil {
		return "", f.failWith
	}
	return domain.NextGRN(f.maxGRN())
}

func (f *fakeStore) ListChallans(ctx context.Context) ([]domain.Challan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != nil {
		return nil, f.failWith
	}
	out := make([]domain.Challan, 0, len(f.challans))
	for _, c := range f.challans {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		var a, b uint64
		fmt.Sscanf(out[i].GRNNo, "%d", &a)
		fmt.Sscanf(out[j].GRNNo, "%d", &b)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f *fakeStore) GetChallan(ctx context.Context, id int64) (*domain.Challan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != nil {
		return nil, f.failWith
	}
	c, ok := f.challans[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeStore) UpdateChallan(ctx context.Context, c domain.Challan) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != nil {
		return false, f.failWith
	}
	if _, ok := f.challans[c.ID]; !ok {
		return false, nil
	}
	if f.grnTaken(c.GRNNo, c.ID) {
		return false, fmt.Errorf("%w: %s", domain.ErrDuplicateGRN, c.GRNNo)
	}
	f.challans[c.ID] = c
	return true, nil
}

func (f *fakeStore) DeleteChallan(ctx context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != nil {
		return false, f.failWith
	}
	if _, ok := f.challans[id]; !ok {
		return false, nil
	}
	delete(f.challans, id)
	return true, nil
}

// Mock CacheRepository
type mockCacheRepo struct {
	idempotencySet map[string]bool
	err            error
	mu             sync.Mutex
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{idempotencySet: make(map[string]bool)}
}

func (m *mockCacheRepo) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return false, m.err
	}
	if m.idempotencySet[key] {
		return false, nil
	}
	m.idempotencySet[key] = true
	return true, nil
}

func (m *mockCacheRepo) ClearIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.idempotencySet, key)
	return nil
}

// mutexLocker serializes holders in-process.
type mutexLocker struct {
	mu       sync.Mutex
	obtained int
	fail     error
}

func (l *mutexLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if l.fail != nil {
		return nil, l.fail
	}
	l.mu.Lock()
	l.obtained++
	return func(context.Context) error {
		l.mu.Unlock()
		return nil
	}, nil
}

var _ port.InwardRepository = (*fakeStore)(nil)
var _ port.ChallanRepository = (*fakeStore)(nil)
var _ port.CacheRepository = (*mockCacheRepo)(nil)
var _ port.Locker = (*mutexLocker)(nil)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
