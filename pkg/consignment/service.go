package consignment

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/events"
	"github.com/cuemby/agora/pkg/jobs"
	"github.com/cuemby/agora/pkg/log"
	"github.com/cuemby/agora/pkg/storage"
	"github.com/cuemby/agora/pkg/tenant"
	"github.com/cuemby/agora/pkg/types"
)

// JobKindPayoutStatement renders and uploads the CSV statement for one
// payout batch.
const JobKindPayoutStatement = "consignment.payout_statement"

// StatementJob is the payload for JobKindPayoutStatement.
type StatementJob struct {
	BatchID string `json:"batch_id"`
}

// Service owns consignors, their intake items and payout batches.
type Service struct {
	guard  *storage.Guard
	queue  *jobs.Queue
	broker *events.Broker
	logger zerolog.Logger
	now    func() time.Time
}

// NewService wires the consignment service over the tenant-scoped guard.
func NewService(guard *storage.Guard, q *jobs.Queue, broker *events.Broker) *Service {
	return &Service{
		guard:  guard,
		queue:  q,
		broker: broker,
		logger: log.WithComponent("consignment"),
		now:    time.Now,
	}
}

// ConsignorInput carries the writable consignor fields. CommissionRate is
// decimal text ("15.126") so normalization owns the rounding.
type ConsignorInput struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	CommissionRate string `json:"commission_rate"`
}

// CreateConsignor registers a seller with a normalized commission rate.
func (s *Service) CreateConsignor(ctx context.Context, in ConsignorInput) (*types.Consignor, error) {
	if in.Name == "" {
		return nil, errdefs.Validationf("consignor name is required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, errdefs.Validationf("consignor email %q is invalid", in.Email)
	}
	rate, err := ParseRate(in.CommissionRate)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	c := &types.Consignor{
		ID:             uuid.New().String(),
		Name:           in.Name,
		Email:          in.Email,
		CommissionRate: rate,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.guard.CreateConsignor(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// GetConsignor returns one consignor by id.
func (s *Service) GetConsignor(ctx context.Context, id string) (*types.Consignor, error) {
	return s.guard.GetConsignor(ctx, id)
}

// ListConsignors returns the tenant's consignors.
func (s *Service) ListConsignors(ctx context.Context) ([]*types.Consignor, error) {
	return s.guard.ListConsignors(ctx)
}

// UpdateConsignor applies the writable fields; the rate is re-normalized.
func (s *Service) UpdateConsignor(ctx context.Context, id string, in ConsignorInput, active bool) (*types.Consignor, error) {
	c, err := s.guard.GetConsignor(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != "" {
		c.Name = in.Name
	}
	if in.Email != "" {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			return nil, errdefs.Validationf("consignor email %q is invalid", in.Email)
		}
		c.Email = in.Email
	}
	if in.CommissionRate != "" {
		rate, err := ParseRate(in.CommissionRate)
		if err != nil {
			return nil, err
		}
		c.CommissionRate = rate
	}
	c.Active = active
	c.UpdatedAt = s.now().UTC()
	if err := s.guard.UpdateConsignor(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// IntakeInput describes one item entering consignment. An empty rate
// inherits the consignor's.
type IntakeInput struct {
	ConsignorID    string `json:"consignor_id"`
	Description    string `json:"description"`
	CommissionRate string `json:"commission_rate,omitempty"`
}

// IntakeItem records an item received from a consignor.
func (s *Service) IntakeItem(ctx context.Context, in IntakeInput) (*types.ConsignmentItem, error) {
	if in.Description == "" {
		return nil, errdefs.Validationf("item description is required")
	}
	c, err := s.guard.GetConsignor(ctx, in.ConsignorID)
	if err != nil {
		return nil, err
	}
	if !c.Active {
		return nil, errdefs.Validationf("consignor %s is inactive", c.ID)
	}

	rate := c.CommissionRate
	if in.CommissionRate != "" {
		rate, err = ParseRate(in.CommissionRate)
		if err != nil {
			return nil, err
		}
	}

	item := &types.ConsignmentItem{
		ID:             uuid.New().String(),
		ConsignorID:    c.ID,
		Description:    in.Description,
		CommissionRate: rate,
		Status:         types.ConsignmentItemStatusIntake,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.guard.CreateConsignmentItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// GetItem returns one consignment item.
func (s *Service) GetItem(ctx context.Context, id string) (*types.ConsignmentItem, error) {
	return s.guard.GetConsignmentItem(ctx, id)
}

// ListItemsByConsignor returns a consignor's items.
func (s *Service) ListItemsByConsignor(ctx context.Context, consignorID string) ([]*types.ConsignmentItem, error) {
	return s.guard.ListConsignmentItemsByConsignor(ctx, consignorID)
}

// MarkListed moves an intake item onto the sales floor.
func (s *Service) MarkListed(ctx context.Context, itemID string) (*types.ConsignmentItem, error) {
	item, err := s.guard.GetConsignmentItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Status != types.ConsignmentItemStatusIntake {
		return nil, errdefs.Conflictf("item %s is %s, only intake items can be listed", item.ID, item.Status)
	}
	item.Status = types.ConsignmentItemStatusListed
	if err := s.guard.UpdateConsignmentItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// MarkSold ties a listed item to the order that sold it. The sale amount is
// the captured order line price, recorded here so payout math never reaches
// for a placeholder.
func (s *Service) MarkSold(ctx context.Context, itemID, orderID string, salePriceCents int64) (*types.ConsignmentItem, error) {
	if salePriceCents <= 0 {
		return nil, errdefs.Validationf("sale price must be positive, got %d", salePriceCents)
	}
	if _, err := s.guard.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	item, err := s.guard.GetConsignmentItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Status != types.ConsignmentItemStatusListed {
		return nil, errdefs.Conflictf("item %s is %s, only listed items can be sold", item.ID, item.Status)
	}
	item.Status = types.ConsignmentItemStatusSold
	item.SoldOrderID = orderID
	item.SalePriceCents = salePriceCents
	item.SoldAt = s.now().UTC()
	if err := s.guard.UpdateConsignmentItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// CreatePayoutBatch gathers a consignor's unpaid sold items over a period
// into a pending batch. Only items whose sale order reached Completed are
// eligible; amounts come from those committed rows. A statement job is
// enqueued for the batch.
func (s *Service) CreatePayoutBatch(ctx context.Context, consignorID string, periodStart, periodEnd time.Time) (*types.PayoutBatch, error) {
	if !periodEnd.After(periodStart) {
		return nil, errdefs.Validationf("payout period end must be after start")
	}
	consignor, err := s.guard.GetConsignor(ctx, consignorID)
	if err != nil {
		return nil, err
	}

	items, err := s.guard.ListConsignmentItemsByConsignor(ctx, consignor.ID)
	if err != nil {
		return nil, err
	}

	batch := &types.PayoutBatch{
		ID:          uuid.New().String(),
		ConsignorID: consignor.ID,
		PeriodStart: periodStart.UTC(),
		PeriodEnd:   periodEnd.UTC(),
		Status:      types.PayoutBatchStatusPending,
		CreatedAt:   s.now().UTC(),
	}

	for _, item := range items {
		if item.Status != types.ConsignmentItemStatusSold || item.PayoutBatchID != "" {
			continue
		}
		if item.SoldAt.Before(periodStart) || !item.SoldAt.Before(periodEnd) {
			continue
		}
		order, err := s.guard.GetOrder(ctx, item.SoldOrderID)
		if err != nil {
			return nil, err
		}
		if order.Status != types.OrderStatusCompleted {
			continue
		}
		batch.ItemIDs = append(batch.ItemIDs, item.ID)
		batch.TotalCents += payoutCents(item.SalePriceCents, item.CommissionRate)
	}

	if len(batch.ItemIDs) == 0 {
		return nil, errdefs.NotFoundf("no payable items for consignor %s in period", consignor.ID)
	}

	if err := s.guard.CreatePayoutBatch(ctx, batch); err != nil {
		return nil, err
	}
	for _, id := range batch.ItemIDs {
		item, err := s.guard.GetConsignmentItem(ctx, id)
		if err != nil {
			return nil, err
		}
		item.PayoutBatchID = batch.ID
		if err := s.guard.UpdateConsignmentItem(ctx, item); err != nil {
			return nil, err
		}
	}

	bound, _ := tenant.Current(ctx)
	if _, err := jobs.Submit(s.queue, bound.Tenant.ID, JobKindPayoutStatement,
		StatementJob{BatchID: batch.ID}, jobs.PriorityLow); err != nil {
		// The batch stands; statements can be regenerated.
		s.logger.Warn().Err(err).Str("batch_id", batch.ID).Msg("statement job not enqueued")
	}
	return batch, nil
}

// GetPayoutBatch returns one batch.
func (s *Service) GetPayoutBatch(ctx context.Context, id string) (*types.PayoutBatch, error) {
	return s.guard.GetPayoutBatch(ctx, id)
}

// ListPayoutBatches returns the tenant's batches.
func (s *Service) ListPayoutBatches(ctx context.Context) ([]*types.PayoutBatch, error) {
	return s.guard.ListPayoutBatches(ctx)
}

// CompletePayout records that the consignor was paid: the batch closes and
// every item in it moves to paid.
func (s *Service) CompletePayout(ctx context.Context, batchID string) (*types.PayoutBatch, error) {
	batch, err := s.guard.GetPayoutBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != types.PayoutBatchStatusPending {
		return nil, errdefs.Conflictf("payout batch %s is %s, only pending batches complete", batch.ID, batch.Status)
	}

	for _, id := range batch.ItemIDs {
		item, err := s.guard.GetConsignmentItem(ctx, id)
		if err != nil {
			return nil, err
		}
		item.Status = types.ConsignmentItemStatusPaid
		if err := s.guard.UpdateConsignmentItem(ctx, item); err != nil {
			return nil, err
		}
	}

	batch.Status = types.PayoutBatchStatusCompleted
	batch.CompletedAt = s.now().UTC()
	if err := s.guard.UpdatePayoutBatch(ctx, batch); err != nil {
		return nil, err
	}

	if s.broker != nil {
		s.broker.Publish(&events.Event{
			Type:     events.EventPayoutCompleted,
			TenantID: batch.TenantID,
			Message:  "payout completed",
			Metadata: map[string]string{"batch_id": batch.ID, "consignor_id": batch.ConsignorID},
		})
	}
	return batch, nil
}
