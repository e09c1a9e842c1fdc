package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionFilter has AND semantics across fields, OR semantics within each field slice
type SessionFilter struct {
	IDs       []uuid.UUID
	OwnerIDs  []string
	OrderRefs []string
	Stages    []CheckoutStage
	CreatedAt *TimeRange
	UpdatedAt *TimeRange
}

func (f SessionFilter) Validate() error {
	if len(f.IDs) == 0 && len(f.OwnerIDs) == 0 && len(f.OrderRefs) == 0 && len(f.Stages) == 0 && f.CreatedAt == nil && f.UpdatedAt == nil {
		return errors.New("all fields are empty")
	}

	for _, stage := range f.Stages {
		if _, err := ToCheckoutStage(string(stage)); err != nil {
			return fmt.Errorf("stage[%s]: %w", stage, err)
		}
	}

	if f.CreatedAt != nil {
		if err := f.CreatedAt.Validate(); err != nil {
			return fmt.Errorf("createdAt: %w", err)
		}
	}

	if f.UpdatedAt != nil {
		if err := f.UpdatedAt.Validate(); err != nil {
			return fmt.Errorf("updatedAt: %w", err)
		}
	}

	return nil
}

// TimeRange matches timestamps from After through Before, both inclusive; a
// nil bound leaves that side open.
type TimeRange struct {
	Before *time.Time
	After  *time.Time
}

func (t TimeRange) Validate() error {
	if t.Before == nil && t.After == nil {
		return errors.New("range has no bounds")
	}

	if t.Before != nil && t.After != nil && t.After.After(*t.Before) {
		return fmt.Errorf("after[%s] is later than before[%s]",
			t.After.Format(time.RFC3339), t.Before.Format(time.RFC3339))
	}

	return nil
}
