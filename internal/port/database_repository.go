package port

import (
	"context"

	"github.com/rl1809/jobcard-erp/internal/core/domain"
)

type InwardRepository interface {
	// CreateInward inserts the header and every line in one transaction and returns the new id
	CreateInward(ctx context.Context, in domain.InwardInput) (int64, error)

	// UpdateInward rewrites the header and replaces all lines; returns found=false if id does not exist
	UpdateInward(ctx context.Context, id int64, in domain.InwardInput) (found bool, err error)

	// DeleteInwards removes the given inwards and their lines; missing ids are ignored
	DeleteInwards(ctx context.Context, ids []int64) error

	// ListInwards returns every inward with its lines, newest first
	ListInwards(ctx context.Context) ([]domain.Inward, error)

	// GetInward returns nil if id does not exist
	GetInward(ctx context.Context, id int64) (*domain.Inward, error)
}

type ChallanRepository interface {
	// CreateChallanWithNextGRN allocates the next GRN number and inserts the record in one transaction.
	// Returns domain.ErrSequenceConflict if the allocation raced with another writer.
	CreateChallanWithNextGRN(ctx context.Context, c domain.Challan) (domain.Challan, error)

	// NextGRN previews the number the next create would receive
	NextGRN(ctx context.Context) (string, error)

	ListChallans(ctx context.Context) ([]domain.Challan, error)

	// GetChallan returns nil if id does not exist
	GetChallan(ctx context.Context, id int64) (*domain.Challan, error)

	// UpdateChallan stores c verbatim including its GRN number.
	// Returns domain.ErrDuplicateGRN if another record holds c.GRNNo.
	UpdateChallan(ctx context.Context, c domain.Challan) (found bool, err error)

	DeleteChallan(ctx context.Context, id int64) (found bool, err error)
}
