package permit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nasmusic-ai/permit-pro/internal/application/port"
	"github.com/nasmusic-ai/permit-pro/internal/application/workflow"
	"github.com/nasmusic-ai/permit-pro/internal/domain/entity"
)

// FormatPermitNumber renders BP-<year>-<6 digit sequence>
func FormatPermitNumber(year int, seq int64) string {
	return fmt.Sprintf("BP-%d-%06d", year, seq)
}

// Issuer derives permits from applications
type Issuer struct {
	permits   port.PermitRepository
	sequences port.SequenceAllocator
}

// NewIssuer creates a permit issuer
func NewIssuer(permits port.PermitRepository, sequences port.SequenceAllocator) *Issuer {
	return &Issuer{
		permits:   permits,
		sequences: sequences,
	}
}

// Issue implements workflow.PermitIssuer. An application that already has a
// permit gets the same record back without a new number.
func (i *Issuer) Issue(ctx context.Context, app *entity.Application, now time.Time) (*entity.Permit, error) {
	existing, err := i.permits.GetByApplicationID(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	seq, err := i.sequences.Next(ctx, entity.SequencePermits)
	if err != nil {
		return nil, err
	}

	permit := &entity.Permit{
		ID:              uuid.NewString(),
		ApplicationID:   app.ID,
		PermitNumber:    FormatPermitNumber(now.Year(), seq),
		BusinessName:    app.BusinessInfo.BusinessName,
		OwnerName:       app.OwnerInfo.FullName(),
		BusinessAddress: app.BusinessInfo.BusinessAddress,
		IssueDate:       now,
		ExpiryDate:      entity.PermitExpiry(now),
		IsActive:        true,
	}

	if err := i.permits.Create(ctx, permit); err != nil {
		return nil, err
	}

	return permit, nil
}

var _ workflow.PermitIssuer = (*Issuer)(nil)
