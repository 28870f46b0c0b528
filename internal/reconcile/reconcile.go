// Package reconcile turns at-least-once, possibly duplicated, possibly
// out-of-order payment notifications into exactly-once state changes. All
// coordination between concurrent deliveries lives in the ledger's uniqueness
// constraint and the store's conditional updates; nothing here locks.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/seamark/payrecon/internal/cache"
	"github.com/seamark/payrecon/internal/domain"
	"github.com/seamark/payrecon/internal/event"
	"github.com/seamark/payrecon/internal/mailer"
	"github.com/seamark/payrecon/internal/metrics"
	"github.com/seamark/payrecon/internal/order"
)

// Ledger is the durable idempotency source.
type Ledger interface {
	EnsureRecord(ctx context.Context, ev *event.Event) (alreadyProcessed bool, err error)
	MarkProcessed(ctx context.Context, eventID string, processedAt time.Time, procErr string)
}

// Dedup is the best-effort cache consulted ahead of the ledger.
type Dedup interface {
	Has(key string) bool
	Set(key string, ttl time.Duration)
	SetIfAbsent(key string, ttl time.Duration) bool
}

// OrderStore is the slice of the store the reconciler needs.
type OrderStore interface {
	GetOrder(ctx context.Context, id string) (*order.Order, error)
	FindOrderByAuthRef(ctx context.Context, ref string) (*order.Order, error)
	UpdateStatusIf(ctx context.Context, id string, to, from order.Status) (bool, error)
	ClaimStockDecrement(ctx context.Context, id string) (bool, error)
	DecrementStock(ctx context.Context, items []order.Item) error
}

// Result is the outcome reported to the webhook handler.
type Result struct {
	EventID      string
	Deduped      bool
	Source       string // "cache" or "db" when Deduped
	Transitioned bool
	From, To     order.Status
	Note         string // set for permanent mismatches recorded on the event
}

// Reconciler drives a single event through dedup, legality and side effects.
type Reconciler struct {
	ledger Ledger
	dedup  Dedup
	store  OrderStore
	mail   mailer.Mailer
	log    *slog.Logger
}

// New wires a Reconciler.
func New(l Ledger, d Dedup, s OrderStore, m mailer.Mailer, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{ledger: l, dedup: d, store: s, mail: m, log: log}
}

// Process handles one delivery of ev. A returned error is always transient:
// the event is left unprocessed and the caller signals the provider to retry.
// Permanent mismatches (unknown order, illegal transition) are resolved here,
// recorded on the event row, and reported as a successful Result.
func (r *Reconciler) Process(ctx context.Context, ev *event.Event) (*Result, error) {
	metrics.EventsReceived.WithLabelValues(ev.Type).Inc()

	if r.dedup.Has(cache.EventKey(ev.ID)) {
		metrics.EventsDeduped.WithLabelValues("cache").Inc()
		return &Result{EventID: ev.ID, Deduped: true, Source: "cache"}, nil
	}

	already, err := r.ledger.EnsureRecord(ctx, ev)
	if err != nil {
		return nil, err
	}
	if already {
		metrics.EventsDeduped.WithLabelValues("db").Inc()
		r.dedup.Set(cache.EventKey(ev.ID), cache.EventTTL)
		return &Result{EventID: ev.ID, Deduped: true, Source: "db"}, nil
	}

	if !ev.Handled() {
		// Explicit allow-list: everything else is acknowledged untouched.
		metrics.EventsProcessed.WithLabelValues("ignored").Inc()
		return r.finish(ctx, ev, &Result{EventID: ev.ID, Note: "ignored event type " + ev.Type}, "")
	}

	o, note, err := r.resolveOrder(ctx, ev)
	if err != nil {
		return nil, err
	}
	if o == nil {
		metrics.EventsProcessed.WithLabelValues("orphaned").Inc()
		return r.finish(ctx, ev, &Result{EventID: ev.ID, Note: note}, note)
	}

	target := targetStatus(ev.Type)
	from := o.Status

	if !order.CanTransition(from, target) {
		// A permanent mismatch, not a transient failure: record it so the
		// provider stops retrying.
		note := fmt.Sprintf("illegal transition %s -> %s", from, target)
		metrics.IllegalTransitions.WithLabelValues(string(from), string(target)).Inc()
		return r.finish(ctx, ev, &Result{EventID: ev.ID, From: from, To: target, Note: note}, note)
	}

	if sameState(from, target) {
		// Redelivered outcome the order already reflects.
		return r.finish(ctx, ev, &Result{EventID: ev.ID, From: from, To: target}, "")
	}

	applied, err := r.store.UpdateStatusIf(ctx, o.ID, target, from)
	if err != nil {
		return nil, err
	}
	if !applied {
		// A concurrent delivery won the conditional update; this one no-ops.
		r.log.Info("status update lost conditional race",
			"order_id", o.ID, "event_id", ev.ID, "from", from, "to", target)
		return r.finish(ctx, ev, &Result{EventID: ev.ID, From: from, To: target}, "")
	}

	if target == order.StatusPaid {
		if err := r.applyPaidEffects(ctx, ev, o); err != nil {
			return nil, err
		}
	}
	// Transitions into refunded and failed carry no side effects here;
	// refund notification is out of scope for this core.

	metrics.EventsProcessed.WithLabelValues("transitioned").Inc()
	return r.finish(ctx, ev, &Result{EventID: ev.ID, Transitioned: true, From: from, To: target}, "")
}

// applyPaidEffects decrements stock and queues the confirmation email, each
// behind its own dedup guard. The stock flag is claimed before the decrement
// call so a crash between decrement and bookkeeping cannot decrement twice on
// a later replay.
func (r *Reconciler) applyPaidEffects(ctx context.Context, ev *event.Event, o *order.Order) error {
	claimed, err := r.store.ClaimStockDecrement(ctx, o.ID)
	if err != nil {
		return err
	}
	if claimed {
		if err := r.store.DecrementStock(ctx, o.Items); err != nil {
			return err
		}
		metrics.StockDecrements.Inc()
	}

	// The order-level key suppresses a second email even when the same
	// logical payment is redelivered under a different event id.
	if r.dedup.SetIfAbsent(cache.PaidEmailKey(o.ID), cache.PaidEmailTTL) {
		if err := r.mail.SendOrderConfirmation(ctx, o); err != nil {
			// Email is at-most-once: losing one beats sending two.
			r.log.Error("confirmation email dispatch failed",
				"order_id", o.ID, "event_id", ev.ID, "err", err)
		} else {
			metrics.EmailsSent.WithLabelValues(mailer.JobOrderConfirmation).Inc()
		}
	} else {
		metrics.EmailsSuppressed.Inc()
	}
	return nil
}

// resolveOrder finds the order an event refers to. Returning a nil order with
// a note means the reference could not be resolved — a permanent mismatch.
func (r *Reconciler) resolveOrder(ctx context.Context, ev *event.Event) (*order.Order, string, error) {
	var orderID, authRef string
	switch ev.Type {
	case event.TypeAuthorizationSucceeded, event.TypeAuthorizationFailed:
		d, err := ev.Authorization()
		if err != nil {
			return nil, "malformed authorization payload", nil
		}
		orderID, authRef = d.OrderID, d.AuthorizationRef
	case event.TypeRefunded:
		d, err := ev.Refund()
		if err != nil {
			return nil, "malformed refund payload", nil
		}
		authRef = d.AuthorizationRef
	}

	if orderID != "" {
		o, err := r.store.GetOrder(ctx, orderID)
		return orderOrNote(o, err, "order not found for id "+orderID)
	}
	if authRef != "" {
		o, err := r.store.FindOrderByAuthRef(ctx, authRef)
		return orderOrNote(o, err, "order not found for reference "+authRef)
	}
	return nil, "event metadata missing order reference", nil
}

func orderOrNote(o *order.Order, err error, note string) (*order.Order, string, error) {
	if err == nil {
		return o, "", nil
	}
	if domain.ErrorCode(err) == domain.ENOTFOUND {
		return nil, note, nil
	}
	return nil, "", err
}

// finish marks the event processed (best-effort), primes the dedup cache and
// returns res. procErr, when non-empty, is recorded on the event row.
func (r *Reconciler) finish(ctx context.Context, ev *event.Event, res *Result, procErr string) (*Result, error) {
	r.ledger.MarkProcessed(ctx, ev.ID, time.Now().UTC(), procErr)
	r.dedup.Set(cache.EventKey(ev.ID), cache.EventTTL)
	if procErr != "" {
		r.log.Warn("event resolved with permanent mismatch", "event_id", ev.ID, "note", procErr)
	}
	return res, nil
}

func targetStatus(eventType string) order.Status {
	switch eventType {
	case event.TypeAuthorizationSucceeded:
		return order.StatusPaid
	case event.TypeAuthorizationFailed:
		return order.StatusFailed
	case event.TypeRefunded:
		return order.StatusRefunded
	}
	return ""
}

// sameState reports whether the order already reflects the event's outcome.
// processing counts as paid: fulfilment starting does not make an
// authorization event new information.
func sameState(from, target order.Status) bool {
	if from == target {
		return true
	}
	return from == order.StatusProcessing && target == order.StatusPaid
}
