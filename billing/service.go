package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/subsync/pkg/logger"
	"github.com/dmitrymomot/subsync/pkg/metrics"
)

// Service is the public interface for subscription state management.
type Service interface {
	// StartCheckout creates or refreshes the bare identity row for a user
	// and returns a hosted checkout session from the provider.
	StartCheckout(ctx context.Context, params StartCheckoutParams) (*CheckoutSession, error)

	// CancelSubscription requests cancellation at period end and applies the
	// grace-period rule to the stored record. Provider failures surface to
	// the caller; this is a synchronous user action.
	CancelSubscription(ctx context.Context, userID, subscriptionID string) error

	// Entitlement returns the user's current entitlement. When a provider
	// subscription is on file the provider is re-queried and the record
	// reconciled first; a provider outage degrades to the stored state.
	Entitlement(ctx context.Context, userID string) (*Entitlement, error)

	// HandleWebhook verifies, deduplicates, classifies, and applies an
	// inbound provider event. Unresolvable identities are acknowledged
	// without mutation.
	HandleWebhook(ctx context.Context, payload []byte, signature string) error

	// SweepExpired demotes premium records whose cancellation grace period
	// has elapsed. Per-record failures are counted, never fatal.
	SweepExpired(ctx context.Context) (*SweepReport, error)

	// SweepDrift re-fetches provider state for records whose billing date
	// has passed, pacing requests to respect the provider rate limit.
	SweepDrift(ctx context.Context) (*SweepReport, error)
}

// StartCheckoutParams identifies the user starting a checkout.
type StartCheckoutParams struct {
	UserID    string
	Email     string
	Name      string
	ProductID string // optional; falls back to Config.DefaultPriceID
}

type service struct {
	store    Store
	provider Provider
	resolver *Resolver
	guard    ReplayGuard
	notifier Notifier
	cfg      Config
	log      *slog.Logger
	now      func() time.Time
}

// NewService creates a Service with the given dependencies.
// Panics if store or provider is nil to fail fast during initialization.
func NewService(store Store, provider Provider, cfg Config, opts ...ServiceOption) Service {
	if store == nil {
		panic("billing: Store is required")
	}
	if provider == nil {
		panic("billing: Provider is required")
	}

	s := &service{
		store:    store,
		provider: provider,
		resolver: NewResolver(store),
		cfg:      cfg,
		log:      slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) StartCheckout(ctx context.Context, params StartCheckoutParams) (*CheckoutSession, error) {
	if params.UserID == "" {
		return nil, ErrMissingUserID
	}
	if params.Email == "" {
		return nil, ErrMissingEmail
	}

	rec, err := s.store.Get(ctx, params.UserID)
	switch {
	case err == nil:
	case errors.Is(err, ErrRecordNotFound):
		rec = &Record{UserID: params.UserID, Status: StatusFree}
	default:
		return nil, err
	}

	rec.Email = params.Email
	if params.Name != "" {
		rec.Name = params.Name
	}

	// Persist the bare identity row before talking to the provider, so the
	// user exists locally even when checkout creation fails.
	if err := s.store.Save(ctx, rec); err != nil {
		return nil, err
	}

	priceID := params.ProductID
	if priceID == "" {
		priceID = s.cfg.DefaultPriceID
	}

	session, err := s.provider.CreateCheckout(ctx, CheckoutParams{
		PriceID:    priceID,
		UserID:     params.UserID,
		Email:      params.Email,
		SuccessURL: s.cfg.SuccessURL,
		CancelURL:  s.cfg.CancelURL,
	})
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("create_checkout").Inc()
		return nil, err
	}

	rec.CheckoutSessionID = session.SessionID
	if err := s.store.Save(ctx, rec); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "checkout session created",
		logger.UserID(params.UserID),
		slog.String("session_id", session.SessionID))
	return session, nil
}

func (s *service) CancelSubscription(ctx context.Context, userID, subscriptionID string) error {
	rec, err := s.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	if rec.SubscriptionID == "" {
		return ErrNoSubscription
	}
	if subscriptionID != "" && subscriptionID != rec.SubscriptionID {
		return ErrSubscriptionMismatch
	}

	if err := s.provider.CancelAtPeriodEnd(ctx, rec.SubscriptionID); err != nil {
		metrics.ProviderErrors.WithLabelValues("cancel").Inc()
		return err
	}

	st, err := s.provider.FetchSubscription(ctx, rec.SubscriptionID)
	if err != nil {
		// The cancel request went through; use the billing date we already
		// have instead of failing the user action.
		metrics.ProviderErrors.WithLabelValues("fetch").Inc()
		s.log.WarnContext(ctx, "post-cancel fetch failed, using stored billing date",
			logger.UserID(userID), logger.Error(err))
		st = &State{
			SubscriptionID: rec.SubscriptionID,
			Status:         ProviderStatusActive,
			CancelPending:  true,
			NextBillingAt:  rec.NextBillingAt,
		}
	}

	if _, err := s.apply(ctx, rec, st); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "cancellation requested",
		logger.UserID(userID),
		slog.String("status", string(rec.Status)))
	return nil
}

func (s *service) Entitlement(ctx context.Context, userID string) (*Entitlement, error) {
	rec, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec.SubscriptionID == "" {
		return rec.Entitlement(), nil
	}

	st, err := s.provider.FetchSubscription(ctx, rec.SubscriptionID)
	if err != nil {
		// Degrade to the stored state; the drift sweep will catch up later.
		metrics.ProviderErrors.WithLabelValues("fetch").Inc()
		s.log.WarnContext(ctx, "provider fetch failed, serving stored state",
			logger.UserID(userID), logger.Error(err))
		return rec.Entitlement(), nil
	}

	if _, err := s.apply(ctx, rec, st); err != nil {
		return nil, err
	}
	return rec.Entitlement(), nil
}

func (s *service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.provider.ParseWebhook(ctx, payload, signature)
	if err != nil {
		return err
	}

	action := Classify(ev.Type)
	metrics.WebhookEvents.WithLabelValues(action.String()).Inc()

	marked := false
	if s.guard != nil && ev.ID != "" {
		first, err := s.guard.MarkProcessed(ctx, ev.ID)
		if err != nil {
			// Fail open: processing is idempotent, a duplicate pass is safe.
			s.log.WarnContext(ctx, "replay guard unavailable",
				slog.String("event_id", ev.ID), logger.Error(err))
		} else if !first {
			s.log.DebugContext(ctx, "duplicate webhook event skipped",
				slog.String("event_id", ev.ID),
				slog.String("event_type", ev.ProviderEvent))
			return nil
		} else {
			marked = true
		}
	}

	if action == ActionIgnore {
		s.log.InfoContext(ctx, "webhook event ignored",
			slog.String("event_type", ev.ProviderEvent))
		return nil
	}

	rec, matched, err := s.resolveEvent(ctx, ev)
	if errors.Is(err, ErrUnresolved) {
		// Acknowledged, logged, not retried: nothing to attach this event to.
		metrics.WebhookUnresolved.Inc()
		s.log.WarnContext(ctx, "webhook event matched no record",
			slog.String("event_type", ev.ProviderEvent),
			logger.SubscriptionID(ev.SubscriptionID))
		return nil
	}
	if err != nil {
		s.forgetEvent(ctx, ev, marked)
		return err
	}

	switch action {
	case ActionActivate:
		err = s.handleActivate(ctx, rec, ev)
	case ActionCancel:
		err = s.handleCancel(ctx, rec, ev)
	case ActionPaymentFailed:
		err = s.handlePaymentFailed(ctx, rec)
	}
	if err != nil {
		s.forgetEvent(ctx, ev, marked)
		return fmt.Errorf("webhook %s for user %s: %w", ev.ProviderEvent, rec.UserID, err)
	}

	s.log.InfoContext(ctx, "webhook event applied",
		slog.String("event_type", ev.ProviderEvent),
		slog.String("action", action.String()),
		logger.UserID(rec.UserID),
		slog.String("matched_by", string(matched)),
		slog.String("status", string(rec.Status)))
	return nil
}

func (s *service) SweepExpired(ctx context.Context) (*SweepReport, error) {
	now := s.now()
	recs, err := s.store.ListCancellingDue(ctx, now)
	if err != nil {
		return nil, err
	}

	report := &SweepReport{Checked: len(recs)}
	for i := range recs {
		rec := recs[i]
		dec := Reconcile(ProviderStatusActive, true, rec.NextBillingAt, now)
		if rec.IsPremium == dec.IsPremium && rec.Status == dec.Status {
			continue
		}
		rec.IsPremium = dec.IsPremium
		rec.Status = dec.Status
		if err := s.store.Save(ctx, &rec); err != nil {
			report.Failed++
			s.log.ErrorContext(ctx, "sweep: failed to demote record",
				logger.UserID(rec.UserID), logger.Error(err))
			continue
		}
		report.Updated++
		metrics.SweepTransitions.WithLabelValues("expired").Inc()
		s.notifyExpired(ctx, &rec)
		s.log.InfoContext(ctx, "sweep: subscription expired",
			logger.UserID(rec.UserID))
	}
	return report, nil
}

func (s *service) SweepDrift(ctx context.Context) (*SweepReport, error) {
	now := s.now()
	recs, err := s.store.ListBillingDue(ctx, now)
	if err != nil {
		return nil, err
	}

	report := &SweepReport{Checked: len(recs)}
	for i := range recs {
		if i > 0 && s.cfg.DriftRequestDelay > 0 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(s.cfg.DriftRequestDelay):
			}
		}

		rec := recs[i]
		st, err := s.provider.FetchSubscription(ctx, rec.SubscriptionID)
		if err != nil {
			report.Failed++
			metrics.ProviderErrors.WithLabelValues("fetch").Inc()
			s.log.WarnContext(ctx, "sweep: provider fetch failed",
				logger.UserID(rec.UserID), logger.Error(err))
			continue
		}

		changed, err := s.apply(ctx, &rec, st)
		if err != nil {
			report.Failed++
			s.log.ErrorContext(ctx, "sweep: failed to save record",
				logger.UserID(rec.UserID), logger.Error(err))
			continue
		}
		if changed {
			report.Updated++
			metrics.SweepTransitions.WithLabelValues("drift").Inc()
		}
	}
	return report, nil
}

// forgetEvent releases a replay-guard mark whose event failed to apply, so
// the provider redelivering it is not skipped as a duplicate.
func (s *service) forgetEvent(ctx context.Context, ev *Event, marked bool) {
	if !marked {
		return
	}
	if err := s.guard.Forget(ctx, ev.ID); err != nil {
		s.log.WarnContext(ctx, "failed to release replay guard mark",
			slog.String("event_id", ev.ID), logger.Error(err))
	}
}

// resolveEvent matches an event to a record. A user ID from checkout custom
// data is a direct foreign key and wins outright; otherwise the ordered
// resolver strategy applies.
func (s *service) resolveEvent(ctx context.Context, ev *Event) (*Record, MatchKey, error) {
	if ev.UserID != "" {
		rec, err := s.store.Get(ctx, ev.UserID)
		if err == nil {
			return rec, MatchUserID, nil
		}
		if !errors.Is(err, ErrRecordNotFound) {
			return nil, "", err
		}
	}
	return s.resolver.Resolve(ctx, Ref{
		SubscriptionID:    ev.SubscriptionID,
		Email:             ev.CustomerEmail,
		CheckoutSessionID: ev.SessionID,
	})
}

func (s *service) handleActivate(ctx context.Context, rec *Record, ev *Event) error {
	// CancelPending passes through rather than being cleared outright: an
	// update that still carries a scheduled cancel must not lift the record
	// out of its grace period. A genuine (re)activation carries no pending
	// cancel and clears the flag.
	_, err := s.apply(ctx, rec, &State{
		SubscriptionID: ev.SubscriptionID,
		Status:         ProviderStatusActive,
		CancelPending:  ev.CancelPending,
		NextBillingAt:  ev.NextBillingAt,
		CustomerEmail:  ev.CustomerEmail,
	})
	return err
}

func (s *service) handleCancel(ctx context.Context, rec *Record, ev *Event) error {
	status := ev.Status
	if status == "" {
		// Without an explicit status, a future billing date means a pending
		// cancellation; none means the provider ended it outright.
		if ev.NextBillingAt != nil {
			status = ProviderStatusActive
		} else {
			status = ProviderStatusCancelled
		}
	}

	changed, err := s.apply(ctx, rec, &State{
		SubscriptionID: ev.SubscriptionID,
		Status:         status,
		CancelPending:  true,
		NextBillingAt:  ev.NextBillingAt,
		CustomerEmail:  ev.CustomerEmail,
	})
	if err != nil {
		return err
	}
	if changed && rec.Status == StatusExpired {
		s.notifyExpired(ctx, rec)
	}
	return nil
}

// handlePaymentFailed marks the record without touching entitlement: a failed
// charge alone never revokes premium, only an explicit cancelled/expired
// signal does.
func (s *service) handlePaymentFailed(ctx context.Context, rec *Record) error {
	if rec.Status == StatusPaymentFailed {
		return nil
	}
	rec.Status = StatusPaymentFailed
	if err := s.store.Save(ctx, rec); err != nil {
		return err
	}
	if s.notifier != nil {
		if err := s.notifier.PaymentFailed(ctx, rec); err != nil {
			s.log.WarnContext(ctx, "payment-failed notification not sent",
				logger.UserID(rec.UserID), logger.Error(err))
		}
	}
	return nil
}

// apply runs the shared decision function against a provider state and
// persists the record only when something actually changed, keeping repeated
// deliveries of identical state free of spurious UpdatedAt bumps.
func (s *service) apply(ctx context.Context, rec *Record, st *State) (bool, error) {
	dec := Reconcile(st.Status, st.CancelPending, st.NextBillingAt, s.now())

	next := *rec
	if st.SubscriptionID != "" {
		next.SubscriptionID = st.SubscriptionID
	}
	if st.CustomerEmail != "" && next.Email == "" {
		next.Email = st.CustomerEmail
	}
	next.IsPremium = dec.IsPremium
	next.Status = dec.Status
	next.CancelAtBilling = st.CancelPending
	if st.NextBillingAt != nil {
		next.NextBillingAt = st.NextBillingAt
	}

	if sameRecordState(rec, &next) {
		return false, nil
	}

	*rec = next
	if err := s.store.Save(ctx, rec); err != nil {
		return false, err
	}
	return true, nil
}

func (s *service) notifyExpired(ctx context.Context, rec *Record) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SubscriptionExpired(ctx, rec); err != nil {
		s.log.WarnContext(ctx, "expiry notification not sent",
			logger.UserID(rec.UserID), logger.Error(err))
	}
}

func sameRecordState(a, b *Record) bool {
	return a.SubscriptionID == b.SubscriptionID &&
		a.Email == b.Email &&
		a.IsPremium == b.IsPremium &&
		a.Status == b.Status &&
		a.CancelAtBilling == b.CancelAtBilling &&
		sameTime(a.NextBillingAt, b.NextBillingAt)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
