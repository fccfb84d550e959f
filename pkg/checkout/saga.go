package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/agora/pkg/config"
	"github.com/cuemby/agora/pkg/errdefs"
	"github.com/cuemby/agora/pkg/events"
	"github.com/cuemby/agora/pkg/inventory"
	"github.com/cuemby/agora/pkg/log"
	"github.com/cuemby/agora/pkg/metrics"
	"github.com/cuemby/agora/pkg/payments"
	"github.com/cuemby/agora/pkg/storage"
	"github.com/cuemby/agora/pkg/types"
)

// Failure reason codes written onto failed orders.
const (
	ReasonInsufficientStock   = "insufficient_stock"
	ReasonInsufficientBalance = "insufficient_balance"
	ReasonCardDeclined        = "card_declined"
	ReasonProviderUnavailable = "provider_unavailable"
	ReasonTimeout             = "checkout_timeout"
)

// TenderRequest is one non-card portion of the payment split.
type TenderRequest struct {
	Kind        types.TenderKind `json:"kind"`
	Code        string           `json:"code,omitempty"`       // gift card code
	AccountID   string           `json:"account_id,omitempty"` // store credit account
	AmountCents int64            `json:"amount_cents"`
}

// StartInput finalizes one cart.
type StartInput struct {
	CartID     string          `json:"cart_id"`
	LocationID string          `json:"location_id"`
	Currency   string          `json:"currency"`
	Tenders    []TenderRequest `json:"tenders,omitempty"`
}

// Saga sequences order finalization: reserve stock, capture non-card
// tenders, open a payment intent for the residual, then wait for the
// provider webhook to commit or compensate. Every failure path unwinds in
// reverse so no reservation or captured balance outlives its order.
type Saga struct {
	guard     *storage.Guard
	inventory *inventory.Service
	provider  payments.Provider
	broker    *events.Broker
	cfg       config.CheckoutConfig
	logger    zerolog.Logger
	now       func() time.Time
}

// NewSaga wires the coordinator.
func NewSaga(guard *storage.Guard, inv *inventory.Service, provider payments.Provider, broker *events.Broker, cfg config.CheckoutConfig) *Saga {
	return &Saga{
		guard:     guard,
		inventory: inv,
		provider:  provider,
		broker:    broker,
		cfg:       cfg,
		logger:    log.WithComponent("checkout"),
		now:       time.Now,
	}
}

// Start runs the forward path of one saga. The returned order is pending
// when a card residual awaits its webhook, or already completed when the
// non-card tenders covered the whole total. Failures come back as the error
// alongside a Failed order row carrying the reason code.
func (s *Saga) Start(ctx context.Context, in StartInput) (*types.Order, error) {
	if in.LocationID == "" {
		return nil, errdefs.Validationf("checkout location is required")
	}
	if in.Currency == "" {
		in.Currency = "USD"
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.OverallTimeout.Std())
	defer cancel()

	cart, err := s.guard.GetCart(ctx, in.CartID)
	if err != nil {
		return nil, err
	}
	if cart.Status != types.CartStatusOpen {
		return nil, errdefs.Conflictf("cart %s is %s, only open carts check out", cart.ID, cart.Status)
	}
	if len(cart.Items) == 0 {
		return nil, errdefs.Validationf("cart %s is empty", cart.ID)
	}
	if _, err := s.guard.GetLocation(ctx, in.LocationID); err != nil {
		return nil, err
	}

	total := cart.Subtotal()
	var tendered int64
	for _, t := range in.Tenders {
		if t.AmountCents <= 0 {
			return nil, errdefs.Validationf("tender amounts must be positive")
		}
		if t.Kind != types.TenderKindGiftCard && t.Kind != types.TenderKindStoreCredit {
			return nil, errdefs.Validationf("tender kind %q cannot be applied directly, card residual is automatic", t.Kind)
		}
		tendered += t.AmountCents
	}
	if tendered > total {
		return nil, errdefs.Validationf("tendered %d exceeds cart total %d", tendered, total)
	}

	// Freeze the cart so lines cannot move under the saga.
	cart.Status = types.CartStatusOrdered
	if err := s.guard.UpdateCart(ctx, cart); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	order := &types.Order{
		ID:              uuid.New().String(), // doubles as the saga-run id
		CartID:          cart.ID,
		GrandTotalCents: total,
		Status:          types.OrderStatusPending,
		LocationID:      in.LocationID,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.guard.CreateOrder(ctx, order); err != nil {
		s.reopenCart(ctx, cart.ID)
		return nil, err
	}

	// Step 1: hold stock for every line at the chosen location.
	for _, item := range cart.Items {
		if _, err := s.inventory.Reserve(ctx, item.VariantID, in.LocationID, item.Qty,
			order.ID, "order", s.cfg.ReservationTTL.Std()); err != nil {
			return s.failOrder(ctx, order, reasonFor(err, ReasonInsufficientStock), err)
		}
	}

	// Step 2: capture gift cards and store credits, ledgered per movement.
	for _, t := range in.Tenders {
		if err := s.captureTender(ctx, order, t); err != nil {
			return s.failOrder(ctx, order, reasonFor(err, ReasonInsufficientBalance), err)
		}
	}

	// Step 3: open the card intent for whatever the tenders left over.
	residual := total - tendered
	if residual == 0 {
		return s.complete(ctx, order)
	}

	stepCtx, cancelStep := context.WithTimeout(ctx, s.cfg.StepTimeout.Std())
	intentRef, err := s.provider.CreateIntent(stepCtx, residual, in.Currency,
		map[string]string{"order_id": order.ID, "tenant_id": order.TenantID}, order.ID)
	cancelStep()
	if err != nil {
		var decline *payments.DeclineError
		switch {
		case errors.As(err, &decline):
			return s.failOrder(ctx, order, ReasonCardDeclined, err)
		case ctx.Err() != nil:
			return s.failOrder(ctx, order, ReasonTimeout, err)
		default:
			return s.failOrder(ctx, order, ReasonProviderUnavailable, err)
		}
	}

	intent := &types.PaymentIntent{
		ID:             uuid.New().String(),
		OrderID:        order.ID,
		AmountCents:    residual,
		Currency:       in.Currency,
		ProviderRef:    intentRef.ProviderRef,
		IdempotencyKey: order.ID,
		Status:         types.PaymentIntentStatusPending,
		CreatedAt:      s.now().UTC(),
		UpdatedAt:      s.now().UTC(),
	}
	if err := s.guard.CreatePaymentIntent(ctx, intent); err != nil {
		return s.failOrder(ctx, order, ReasonProviderUnavailable, err)
	}
	cardTender := &types.Tender{
		ID:          uuid.New().String(),
		OrderID:     order.ID,
		Kind:        types.TenderKindCard,
		AmountCents: residual,
		SourceRef:   intentRef.ProviderRef,
		Status:      types.TenderStatusPending,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.guard.CreateTender(ctx, cardTender); err != nil {
		return s.failOrder(ctx, order, ReasonProviderUnavailable, err)
	}

	s.logger.Info().
		Str("order_id", order.ID).
		Int64("total_cents", total).
		Int64("residual_cents", residual).
		Msg("awaiting payment authorization")
	return order, nil
}

// HandleWebhook reacts to an authenticated provider event. Deliveries are
// at-least-once: the event id is marked before any side effect, and replays
// return early. Terminal orders absorb stray events silently.
func (s *Saga) HandleWebhook(ctx context.Context, evt *payments.Event) error {
	first, err := s.guard.Store().MarkWebhookEvent(evt.ID, s.now().UTC())
	if err != nil {
		return err
	}
	if !first {
		s.logger.Debug().Str("event_id", evt.ID).Msg("webhook replay ignored")
		return nil
	}

	if evt.Type == payments.EventRefundSucceeded {
		s.logger.Info().Str("event_id", evt.ID).Str("intent_ref", evt.IntentRef).Msg("refund settled")
		return nil
	}

	intent, err := s.guard.GetPaymentIntentByProviderRef(ctx, evt.IntentRef)
	if err != nil {
		return err
	}
	order, err := s.guard.GetOrder(ctx, intent.OrderID)
	if err != nil {
		return err
	}
	if order.Status != types.OrderStatusPending {
		return nil
	}

	switch evt.Type {
	case payments.EventIntentSucceeded:
		intent.Status = types.PaymentIntentStatusSucceeded
		intent.UpdatedAt = s.now().UTC()
		if err := s.guard.UpdatePaymentIntent(ctx, intent); err != nil {
			return err
		}
		if err := s.captureCardTender(ctx, order.ID); err != nil {
			return err
		}
		if _, err := s.complete(ctx, order); err != nil {
			return err
		}
		return nil

	case payments.EventIntentFailed:
		intent.Status = types.PaymentIntentStatusFailed
		intent.UpdatedAt = s.now().UTC()
		if err := s.guard.UpdatePaymentIntent(ctx, intent); err != nil {
			return err
		}
		reason := evt.Reason
		if reason == "" {
			reason = ReasonCardDeclined
		}
		_, err := s.failOrder(ctx, order, reason, nil)
		return err

	default:
		s.logger.Warn().Str("event_id", evt.ID).Str("type", evt.Type).Msg("unhandled webhook type")
		return nil
	}
}

// GetOrder returns one order.
func (s *Saga) GetOrder(ctx context.Context, id string) (*types.Order, error) {
	return s.guard.GetOrder(ctx, id)
}

// ListOrders returns the tenant's orders.
func (s *Saga) ListOrders(ctx context.Context) ([]*types.Order, error) {
	return s.guard.ListOrders(ctx)
}

// Tenders returns the tender split of one order.
func (s *Saga) Tenders(ctx context.Context, orderID string) ([]*types.Tender, error) {
	return s.guard.ListTendersByOrder(ctx, orderID)
}

// complete commits the holds and closes the order. Called either directly
// (no card residual) or from the success webhook.
func (s *Saga) complete(ctx context.Context, order *types.Order) (*types.Order, error) {
	if err := s.inventory.CommitRef(ctx, order.ID); err != nil {
		return nil, err
	}
	order.Status = types.OrderStatusCompleted
	if err := s.guard.UpdateOrder(ctx, order); err != nil {
		return nil, err
	}
	metrics.CheckoutSagas.WithLabelValues("completed").Inc()
	if s.broker != nil {
		s.broker.Publish(&events.Event{
			Type:     events.EventOrderCompleted,
			TenantID: order.TenantID,
			Message:  "order paid",
			Metadata: map[string]string{"order_id": order.ID},
		})
	}
	s.logger.Info().Str("order_id", order.ID).Int64("total_cents", order.GrandTotalCents).Msg("order completed")
	return order, nil
}

// captureTender moves balance off a gift card or store credit account and
// writes the tender plus its ledger entry.
func (s *Saga) captureTender(ctx context.Context, order *types.Order, req TenderRequest) error {
	var accountRef string

	switch req.Kind {
	case types.TenderKindGiftCard:
		card, err := s.guard.GetGiftCardByCode(ctx, req.Code)
		if err != nil {
			return err
		}
		if card.BalanceCents < req.AmountCents {
			return errdefs.Conflictf("gift card %s holds %d, tender wants %d", card.ID, card.BalanceCents, req.AmountCents)
		}
		card.BalanceCents -= req.AmountCents
		if err := s.guard.UpdateGiftCard(ctx, card); err != nil {
			return err
		}
		accountRef = card.ID

	case types.TenderKindStoreCredit:
		credit, err := s.guard.GetStoreCreditByAccount(ctx, req.AccountID)
		if err != nil {
			return err
		}
		if credit.BalanceCents < req.AmountCents {
			return errdefs.Conflictf("store credit %s holds %d, tender wants %d", credit.ID, credit.BalanceCents, req.AmountCents)
		}
		credit.BalanceCents -= req.AmountCents
		if err := s.guard.UpdateStoreCredit(ctx, credit); err != nil {
			return err
		}
		accountRef = credit.ID

	default:
		return errdefs.Validationf("tender kind %q is not capturable", req.Kind)
	}

	entry := &types.LedgerEntry{
		ID:         uuid.New().String(),
		AccountRef: accountRef,
		Kind:       string(req.Kind),
		DeltaCents: -req.AmountCents,
		OrderID:    order.ID,
		Reason:     "tender_capture",
		CreatedAt:  s.now().UTC(),
	}
	if err := s.guard.AppendLedgerEntry(ctx, entry); err != nil {
		return err
	}

	tender := &types.Tender{
		ID:          uuid.New().String(),
		OrderID:     order.ID,
		Kind:        req.Kind,
		AmountCents: req.AmountCents,
		SourceRef:   accountRef,
		Status:      types.TenderStatusCaptured,
		CreatedAt:   s.now().UTC(),
	}
	return s.guard.CreateTender(ctx, tender)
}

// captureCardTender flips the pending card tender once the provider settles.
func (s *Saga) captureCardTender(ctx context.Context, orderID string) error {
	tenders, err := s.guard.ListTendersByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	for _, t := range tenders {
		if t.Kind == types.TenderKindCard && t.Status == types.TenderStatusPending {
			t.Status = types.TenderStatusCaptured
			if err := s.guard.UpdateTender(ctx, t); err != nil {
				return err
			}
		}
	}
	return nil
}

// failOrder runs the compensations in reverse step order, marks the order
// failed with reason, and reopens the cart. The original cause, when there
// is one, is what the caller returns.
func (s *Saga) failOrder(ctx context.Context, order *types.Order, reason string, cause error) (*types.Order, error) {
	// Compensation must finish even when the saga deadline killed the
	// forward path.
	ctx = context.WithoutCancel(ctx)

	s.voidTenders(ctx, order)
	s.releaseHolds(ctx, order)

	order.Status = types.OrderStatusFailed
	order.FailureReason = reason
	if err := s.guard.UpdateOrder(ctx, order); err != nil {
		s.logger.Error().Err(err).Str("order_id", order.ID).Msg("failed order not persisted")
	}
	s.reopenCart(ctx, order.CartID)

	metrics.CheckoutSagas.WithLabelValues("failed").Inc()
	if s.broker != nil {
		s.broker.Publish(&events.Event{
			Type:     events.EventOrderFailed,
			TenantID: order.TenantID,
			Message:  reason,
			Metadata: map[string]string{"order_id": order.ID, "reason": reason},
		})
	}
	s.logger.Warn().Str("order_id", order.ID).Str("reason", reason).Err(cause).Msg("checkout failed, compensated")

	if cause != nil {
		return order, cause
	}
	return order, nil
}

// voidTenders restores captured balances with opposing ledger entries and
// voids every tender row. Pending card tenders void without bookkeeping;
// nothing was captured.
func (s *Saga) voidTenders(ctx context.Context, order *types.Order) {
	tenders, err := s.guard.ListTendersByOrder(ctx, order.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", order.ID).Msg("tenders not listed for compensation")
		return
	}
	for _, t := range tenders {
		if t.Status == types.TenderStatusVoided {
			continue
		}
		if t.Status == types.TenderStatusCaptured && t.Kind != types.TenderKindCard {
			if err := s.restoreBalance(ctx, t, order.ID); err != nil {
				s.logger.Error().Err(err).Str("tender_id", t.ID).Msg("balance not restored")
				continue
			}
		}
		t.Status = types.TenderStatusVoided
		if err := s.guard.UpdateTender(ctx, t); err != nil {
			s.logger.Error().Err(err).Str("tender_id", t.ID).Msg("tender not voided")
		}
	}
	metrics.CheckoutCompensations.WithLabelValues("tenders").Inc()
}

// restoreBalance returns a captured amount to its source account and writes
// the opposing ledger entry.
func (s *Saga) restoreBalance(ctx context.Context, t *types.Tender, orderID string) error {
	switch t.Kind {
	case types.TenderKindGiftCard:
		card, err := s.guard.GetGiftCard(ctx, t.SourceRef)
		if err != nil {
			return err
		}
		card.BalanceCents += t.AmountCents
		if err := s.guard.UpdateGiftCard(ctx, card); err != nil {
			return err
		}
	case types.TenderKindStoreCredit:
		credit, err := s.guard.GetStoreCredit(ctx, t.SourceRef)
		if err != nil {
			return err
		}
		credit.BalanceCents += t.AmountCents
		if err := s.guard.UpdateStoreCredit(ctx, credit); err != nil {
			return err
		}
	default:
		return nil
	}

	entry := &types.LedgerEntry{
		ID:         uuid.New().String(),
		AccountRef: t.SourceRef,
		Kind:       string(t.Kind),
		DeltaCents: t.AmountCents,
		OrderID:    orderID,
		Reason:     "tender_void",
		CreatedAt:  s.now().UTC(),
	}
	return s.guard.AppendLedgerEntry(ctx, entry)
}

// releaseHolds withdraws every reservation the saga placed.
func (s *Saga) releaseHolds(ctx context.Context, order *types.Order) {
	if err := s.inventory.ReleaseRef(ctx, order.ID); err != nil {
		s.logger.Error().Err(err).Str("order_id", order.ID).Msg("reservations not released")
	}
	metrics.CheckoutCompensations.WithLabelValues("inventory").Inc()
}

// reopenCart hands the cart back to the shopper after a failed run.
func (s *Saga) reopenCart(ctx context.Context, cartID string) {
	cart, err := s.guard.GetCart(ctx, cartID)
	if err != nil {
		s.logger.Error().Err(err).Str("cart_id", cartID).Msg("cart not reloaded after failure")
		return
	}
	if cart.Status != types.CartStatusOrdered {
		return
	}
	cart.Status = types.CartStatusOpen
	if err := s.guard.UpdateCart(ctx, cart); err != nil {
		s.logger.Error().Err(err).Str("cart_id", cartID).Msg("cart not reopened")
	}
}

// reasonFor maps a step error onto the order failure code, defaulting per
// step when the error carries no better signal.
func reasonFor(err error, fallback string) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	default:
		return fallback
	}
}
