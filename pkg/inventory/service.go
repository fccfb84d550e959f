package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/agora/pkg/audit"
	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/events"
	"github.com/cuemby/agora/pkg/jobs"
	"github.com/cuemby/agora/pkg/log"
	"github.com/cuemby/agora/pkg/storage"
	"github.com/cuemby/agora/pkg/tenant"
	"github.com/cuemby/agora/pkg/types"
)

// JobKindBarcodeLabels is enqueued once per created transfer so the label
// printer worker can produce labels for every line.
const JobKindBarcodeLabels = "inventory.barcode_labels"

// BarcodeLabelJob is the payload for JobKindBarcodeLabels.
type BarcodeLabelJob struct {
	TransferID string               `json:"transfer_id"`
	Lines      []types.TransferLine `json:"lines"`
}

// Service owns stock levels, reservations, transfers and manual adjustments.
// All quantity arithmetic happens inside MutateStockLevel so a level is only
// ever changed under the store's write transaction.
type Service struct {
	guard  *storage.Guard
	queue  *jobs.Queue
	audit  audit.Sink
	broker *events.Broker
	logger zerolog.Logger
	now    func() time.Time
}

// NewService wires the inventory service over the tenant-scoped guard.
func NewService(guard *storage.Guard, q *jobs.Queue, sink audit.Sink, broker *events.Broker) *Service {
	if sink == nil {
		sink = audit.Nop{}
	}
	return &Service{
		guard:  guard,
		queue:  q,
		audit:  sink,
		broker: broker,
		logger: log.WithComponent("inventory"),
		now:    time.Now,
	}
}

// Reserve places a hold of qty units of a variant at a location on behalf of
// ref (an order or transfer id). The hold raises Reserved without touching
// OnHand; it fails when fewer than qty units are available.
func (s *Service) Reserve(ctx context.Context, variantID, locationID string, qty int, ref, refKind string, ttl time.Duration) (*types.Reservation, error) {
	if qty <= 0 {
		return nil, errdefs.Validationf("reservation qty must be positive, got %d", qty)
	}
	if ref == "" || refKind == "" {
		return nil, errdefs.Validationf("reservation ref and ref_kind are required")
	}

	_, err := s.guard.MutateStockLevel(ctx, variantID, locationID, func(lvl *types.StockLevel) error {
		if lvl.Available() < qty {
			return errdefs.Conflictf("insufficient stock for variant %s at %s: available %d, requested %d",
				variantID, locationID, lvl.Available(), qty)
		}
		lvl.Reserved += qty
		return nil
	})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	r := &types.Reservation{
		ID:         uuid.New().String(),
		VariantID:  variantID,
		LocationID: locationID,
		Qty:        qty,
		Ref:        ref,
		RefKind:    refKind,
		Status:     types.ReservationStatusHeld,
		CreatedAt:  now,
	}
	if ttl > 0 {
		r.ExpiresAt = now.Add(ttl)
	}
	if err := s.guard.CreateReservation(ctx, r); err != nil {
		// The hold was already applied; withdraw it so the level is not
		// left inflated by a row that never landed.
		s.unreserve(ctx, variantID, locationID, qty)
		return nil, err
	}
	return r, nil
}

// CommitRef resolves every held reservation of ref by removing the stock:
// OnHand and Reserved both drop by the held quantity.
func (s *Service) CommitRef(ctx context.Context, ref string) error {
	return s.resolveRef(ctx, ref, types.ReservationStatusCommitted)
}

// ReleaseRef withdraws every held reservation of ref, returning the held
// quantity to the available pool.
func (s *Service) ReleaseRef(ctx context.Context, ref string) error {
	return s.resolveRef(ctx, ref, types.ReservationStatusReleased)
}

// Release resolves one hold back to the available pool. The reconciler uses
// this for holds whose TTL lapsed without the owning saga resolving them.
func (s *Service) Release(ctx context.Context, r *types.Reservation) error {
	if r.Status != types.ReservationStatusHeld {
		return nil
	}
	return s.resolve(ctx, r, types.ReservationStatusReleased)
}

func (s *Service) resolveRef(ctx context.Context, ref string, to types.ReservationStatus) error {
	held, err := s.guard.ListReservationsByRef(ctx, ref)
	if err != nil {
		return err
	}
	for _, r := range held {
		if r.Status != types.ReservationStatusHeld {
			continue
		}
		if err := s.resolve(ctx, r, to); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) resolve(ctx context.Context, r *types.Reservation, to types.ReservationStatus) error {
	_, err := s.guard.MutateStockLevel(ctx, r.VariantID, r.LocationID, func(lvl *types.StockLevel) error {
		lvl.Reserved -= r.Qty
		if to == types.ReservationStatusCommitted {
			lvl.OnHand -= r.Qty
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.Status = to
	return s.guard.UpdateReservation(ctx, r)
}

// unreserve undoes a hold without a reservation row. Used only to back out a
// partially applied Reserve or CreateTransfer.
func (s *Service) unreserve(ctx context.Context, variantID, locationID string, qty int) {
	if _, err := s.guard.MutateStockLevel(ctx, variantID, locationID, func(lvl *types.StockLevel) error {
		lvl.Reserved -= qty
		return nil
	}); err != nil {
		s.logger.Error().Err(err).
			Str("variant_id", variantID).
			Str("location_id", locationID).
			Int("qty", qty).
			Msg("failed to withdraw hold during rollback")
	}
}

// TransferLineInput is one requested variant/quantity pair.
type TransferLineInput struct {
	VariantID string `json:"variant_id"`
	Qty       int    `json:"qty"`
}

// CreateTransfer opens a stock movement between two locations. Each line is
// held at the source immediately; the destination level is created at zero
// so receivers see the row before stock arrives. A barcode label job is
// enqueued for the picking floor.
func (s *Service) CreateTransfer(ctx context.Context, sourceID, destID string, lines []TransferLineInput) (*types.Transfer, error) {
	if sourceID == destID {
		return nil, errdefs.Validationf("transfer source and destination must differ")
	}
	if len(lines) == 0 {
		return nil, errdefs.Validationf("transfer requires at least one line")
	}

	source, err := s.activeLocation(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	dest, err := s.activeLocation(ctx, destID)
	if err != nil {
		return nil, err
	}

	transferID := uuid.New().String()
	t := &types.Transfer{
		ID:               transferID,
		SourceLocationID: source.ID,
		DestLocationID:   dest.ID,
		Status:           types.TransferStatusPending,
		CreatedAt:        s.now().UTC(),
	}

	for _, in := range lines {
		if in.Qty <= 0 {
			s.rollbackLines(ctx, source.ID, t.Lines)
			return nil, errdefs.Validationf("transfer line qty must be positive, got %d", in.Qty)
		}
		v, err := s.guard.GetVariant(ctx, in.VariantID)
		if err != nil {
			s.rollbackLines(ctx, source.ID, t.Lines)
			return nil, err
		}
		if v.Status != types.VariantStatusActive {
			s.rollbackLines(ctx, source.ID, t.Lines)
			return nil, errdefs.Validationf("variant %s is %s, only active variants transfer", v.ID, v.Status)
		}
		r, err := s.Reserve(ctx, v.ID, source.ID, in.Qty, transferID, "transfer", 0)
		if err != nil {
			s.rollbackLines(ctx, source.ID, t.Lines)
			return nil, err
		}
		t.Lines = append(t.Lines, types.TransferLine{
			VariantID:     v.ID,
			Qty:           in.Qty,
			ReservationID: r.ID,
		})
		// Touch the destination so its level row exists at zero.
		if _, err := s.guard.MutateStockLevel(ctx, v.ID, dest.ID, func(*types.StockLevel) error { return nil }); err != nil {
			s.rollbackLines(ctx, source.ID, t.Lines)
			return nil, err
		}
	}

	if err := s.guard.CreateTransfer(ctx, t); err != nil {
		s.rollbackLines(ctx, source.ID, t.Lines)
		return nil, err
	}

	bound, _ := tenant.Current(ctx)
	if _, err := jobs.Submit(s.queue, bound.Tenant.ID, JobKindBarcodeLabels,
		BarcodeLabelJob{TransferID: t.ID, Lines: t.Lines}, jobs.PriorityDefault); err != nil {
		// The transfer stands; labels can be reprinted on demand.
		s.logger.Warn().Err(err).Str("transfer_id", t.ID).Msg("barcode label job not enqueued")
	}

	return t, nil
}

// rollbackLines releases the holds taken at the source for lines already
// processed, and voids their reservation rows.
func (s *Service) rollbackLines(ctx context.Context, sourceID string, lines []types.TransferLine) {
	for _, l := range lines {
		s.unreserve(ctx, l.VariantID, sourceID, l.Qty)
		if r, err := s.guard.GetReservation(ctx, l.ReservationID); err == nil {
			r.Status = types.ReservationStatusReleased
			if err := s.guard.UpdateReservation(ctx, r); err != nil {
				s.logger.Error().Err(err).Str("reservation_id", r.ID).Msg("failed to void reservation during rollback")
			}
		}
	}
}

// GetTransfer returns one transfer by id.
func (s *Service) GetTransfer(ctx context.Context, id string) (*types.Transfer, error) {
	return s.guard.GetTransfer(ctx, id)
}

// ListTransfers returns the tenant's transfers.
func (s *Service) ListTransfers(ctx context.Context) ([]*types.Transfer, error) {
	return s.guard.ListTransfers(ctx)
}

// ReceiveTransfer commits every line: stock leaves the source (OnHand and
// Reserved both drop) and lands at the destination. Only pending transfers
// can be received.
func (s *Service) ReceiveTransfer(ctx context.Context, id string) (*types.Transfer, error) {
	t, err := s.guard.GetTransfer(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != types.TransferStatusPending {
		return nil, errdefs.Conflictf("transfer %s is %s, only pending transfers can be received", t.ID, t.Status)
	}

	if err := s.CommitRef(ctx, t.ID); err != nil {
		return nil, err
	}
	for _, l := range t.Lines {
		if _, err := s.guard.MutateStockLevel(ctx, l.VariantID, t.DestLocationID, func(lvl *types.StockLevel) error {
			lvl.OnHand += l.Qty
			return nil
		}); err != nil {
			return nil, err
		}
	}

	t.Status = types.TransferStatusReceived
	t.ReceivedAt = s.now().UTC()
	if err := s.guard.UpdateTransfer(ctx, t); err != nil {
		return nil, err
	}

	if s.broker != nil {
		s.broker.Publish(&events.Event{
			Type:     events.EventTransferDone,
			TenantID: t.TenantID,
			Message:  "transfer received",
			Metadata: map[string]string{"transfer_id": t.ID, "dest_location_id": t.DestLocationID},
		})
	}
	return t, nil
}

// CancelTransfer releases every held line of a pending transfer.
func (s *Service) CancelTransfer(ctx context.Context, id string) (*types.Transfer, error) {
	t, err := s.guard.GetTransfer(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != types.TransferStatusPending {
		return nil, errdefs.Conflictf("transfer %s is %s, only pending transfers can be cancelled", t.ID, t.Status)
	}
	if err := s.ReleaseRef(ctx, t.ID); err != nil {
		return nil, err
	}
	t.Status = types.TransferStatusCancelled
	if err := s.guard.UpdateTransfer(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// AdjustmentInput carries a manual stock correction.
type AdjustmentInput struct {
	VariantID  string `json:"variant_id"`
	LocationID string `json:"location_id"`
	Delta      int    `json:"delta"`
	Reason     string `json:"reason"`
	Notes      string `json:"notes,omitempty"`
}

// RecordAdjustment applies a manual delta to a level and writes the
// adjustment row naming who did it and why. The level is created on first
// touch; the delta may not push on-hand negative.
func (s *Service) RecordAdjustment(ctx context.Context, in AdjustmentInput) (*types.StockLevel, error) {
	if in.Delta == 0 {
		return nil, errdefs.Validationf("adjustment delta cannot be zero")
	}
	if in.Reason == "" {
		return nil, errdefs.Validationf("adjustment reason is required")
	}
	if _, err := s.guard.GetVariant(ctx, in.VariantID); err != nil {
		return nil, err
	}
	if _, err := s.guard.GetLocation(ctx, in.LocationID); err != nil {
		return nil, err
	}

	bound, err := tenant.Current(ctx)
	if err != nil {
		return nil, err
	}

	lvl, err := s.guard.MutateStockLevel(ctx, in.VariantID, in.LocationID, func(lvl *types.StockLevel) error {
		if lvl.OnHand+in.Delta < 0 {
			return errdefs.Conflictf("adjustment would drive on-hand negative: %d%+d", lvl.OnHand, in.Delta)
		}
		lvl.OnHand += in.Delta
		return nil
	})
	if err != nil {
		return nil, err
	}

	adj := &types.StockAdjustment{
		ID:         uuid.New().String(),
		VariantID:  in.VariantID,
		LocationID: in.LocationID,
		Delta:      in.Delta,
		Reason:     in.Reason,
		Actor:      bound.Actor,
		Notes:      in.Notes,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.guard.AppendStockAdjustment(ctx, adj); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, "inventory.adjustment", "stock_level",
		in.VariantID+"/"+in.LocationID, map[string]string{"reason": in.Reason}); err != nil {
		s.logger.Error().Err(err).Msg("audit write failed for adjustment")
	}
	return lvl, nil
}

// CreateLocation registers a new stock location. Locations start active and
// stay addressable forever; transfers and adjustments reference them by id.
func (s *Service) CreateLocation(ctx context.Context, code, name string) (*types.Location, error) {
	if code == "" {
		return nil, errdefs.Validationf("location code is required")
	}
	if name == "" {
		return nil, errdefs.Validationf("location name is required")
	}
	loc := &types.Location{
		ID:     uuid.New().String(),
		Code:   code,
		Name:   name,
		Active: true,
	}
	if err := s.guard.CreateLocation(ctx, loc); err != nil {
		return nil, err
	}
	s.logger.Info().Str("location_id", loc.ID).Str("code", code).Msg("location created")
	return loc, nil
}

// ListLocations returns the tenant's locations.
func (s *Service) ListLocations(ctx context.Context) ([]*types.Location, error) {
	return s.guard.ListLocations(ctx)
}

// Level returns the level row for one variant at one location.
func (s *Service) Level(ctx context.Context, variantID, locationID string) (*types.StockLevel, error) {
	return s.guard.GetStockLevel(ctx, variantID, locationID)
}

// LevelsByVariant returns all of a variant's levels across locations.
func (s *Service) LevelsByVariant(ctx context.Context, variantID string) ([]*types.StockLevel, error) {
	return s.guard.ListStockLevelsByVariant(ctx, variantID)
}

// ListAdjustments returns the tenant's adjustment history.
func (s *Service) ListAdjustments(ctx context.Context) ([]*types.StockAdjustment, error) {
	return s.guard.ListStockAdjustments(ctx)
}

// activeLocation loads a location and requires it to be active.
func (s *Service) activeLocation(ctx context.Context, id string) (*types.Location, error) {
	l, err := s.guard.GetLocation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !l.Active {
		return nil, errdefs.Validationf("location %s is inactive", l.ID)
	}
	return l, nil
}
