// Package dispatcher decides when a destination's accumulated deposits are
// ready to settle and performs the one-shot consolidated dispatch: snapshot
// the window, build the batch message, quote and authorize the carrier fee,
// submit, and reset the ledger only after the carrier has accepted.
//
// Deposit and settlement for the same destination are serialized here; the
// two entry points stay independent so an external scheduler can poll
// readiness cheaply and retry a failed settlement by simply calling again.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/google/uuid"

	"poolgate.io/pgw/internal/assets"
	"poolgate.io/pgw/internal/carrier"
	"poolgate.io/pgw/internal/ledger"
	"poolgate.io/pgw/internal/types"
)

// CarrierSpender is the identity the fee-asset authorization is scoped to.
const CarrierSpender = "carrier"

// Publisher receives settlement completion records as they happen.
// *events.Hub satisfies it.
type Publisher interface {
	Publish(v any)
}

// Params collects the dispatcher's collaborators and fixed configuration.
type Params struct {
	Ledger    *ledger.Ledger
	Custody   assets.Custody
	FeeAsset  assets.FeeAsset
	Carrier   carrier.Carrier
	Hub       Publisher   // optional
	Logger    *zap.Logger // optional
	Threshold uint64      // base units of the pooled asset
	Asset     string
	FeeName   string
	Receivers map[types.Destination]string
}

// Dispatcher owns threshold readiness and settlement for every configured
// destination.
type Dispatcher struct {
	ledger   *ledger.Ledger
	custody  assets.Custody
	feeAsset assets.FeeAsset
	carrier  carrier.Carrier
	hub      Publisher
	log      *zap.Logger
	tracer   trace.Tracer

	threshold uint64
	asset     string
	feeName   string
	receivers map[types.Destination]string

	// per-destination single-writer locks; distinct destinations never
	// contend
	locks map[types.Destination]*sync.Mutex
}

// New validates params and builds a Dispatcher.
func New(p Params) (*Dispatcher, error) {
	if p.Ledger == nil || p.Custody == nil || p.FeeAsset == nil || p.Carrier == nil {
		return nil, errors.New("ledger, custody, fee asset, and carrier are required")
	}
	if p.Threshold == 0 {
		return nil, errors.New("threshold must be positive")
	}
	if len(p.Receivers) == 0 {
		return nil, errors.New("at least one destination receiver is required")
	}
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}

	locks := make(map[types.Destination]*sync.Mutex, len(p.Receivers))
	for dest := range p.Receivers {
		locks[dest] = &sync.Mutex{}
	}

	return &Dispatcher{
		ledger:    p.Ledger,
		custody:   p.Custody,
		feeAsset:  p.FeeAsset,
		carrier:   p.Carrier,
		hub:       p.Hub,
		log:       log,
		tracer:    otel.Tracer("poolgate.io/pgw/internal/dispatcher"),
		threshold: p.Threshold,
		asset:     p.Asset,
		feeName:   p.FeeName,
		receivers: p.Receivers,
		locks:     locks,
	}, nil
}

// Threshold returns the configured settlement threshold in base units.
func (d *Dispatcher) Threshold() uint64 {
	return d.threshold
}

// Destinations returns the configured destinations in unspecified order.
func (d *Dispatcher) Destinations() []types.Destination {
	dests := make([]types.Destination, 0, len(d.receivers))
	for dest := range d.receivers {
		dests = append(dests, dest)
	}
	return dests
}

func (d *Dispatcher) lockFor(dest types.Destination) (*sync.Mutex, error) {
	lock, ok := d.locks[dest]
	if !ok {
		return nil, fmt.Errorf("dispatch for %q: %w", dest, types.ErrUnsupportedDestination)
	}
	return lock, nil
}

// Deposit pulls amount of the pooled asset from depositor into custody and
// books it toward dest's current window. It never settles inline; the
// returned readiness is informational for the caller.
func (d *Dispatcher) Deposit(ctx context.Context, dest types.Destination, depositor string, amount uint64) (total uint64, ready bool, err error) {
	lock, err := d.lockFor(dest)
	if err != nil {
		return 0, false, err
	}
	if depositor == "" {
		return 0, false, errors.New("depositor identity is required")
	}
	if amount == 0 {
		return 0, false, errors.New("deposit amount must be positive")
	}

	ctx, span := d.tracer.Start(ctx, "dispatcher.Deposit",
		trace.WithAttributes(
			attribute.String("destination", string(dest)),
			attribute.Int64("amount", int64(amount)),
		))
	defer span.End()

	lock.Lock()
	defer lock.Unlock()

	if err := d.custody.TransferIn(ctx, depositor, amount); err != nil {
		return 0, false, fmt.Errorf("custody transfer: %w", err)
	}
	if err := d.ledger.Record(ctx, dest, depositor, amount); err != nil {
		// Funds are already in custody; surface this loudly so operators
		// can reconcile instead of silently dropping the booking.
		d.log.Error("deposit in custody but not booked",
			zap.String("destination", string(dest)),
			zap.String("depositor", depositor),
			zap.Uint64("amount", amount),
			zap.Error(err))
		return 0, false, fmt.Errorf("record deposit: %w", err)
	}

	total, err = d.ledger.Total(ctx, dest)
	if err != nil {
		return 0, false, err
	}

	d.log.Info("deposit booked",
		zap.String("destination", string(dest)),
		zap.String("depositor", depositor),
		zap.Uint64("amount", amount),
		zap.Uint64("window_total", total))

	return total, total >= d.threshold, nil
}

// IsReady reports whether dest's window total has reached the threshold.
// Pure predicate: cheap, read-only, safe to poll arbitrarily often.
func (d *Dispatcher) IsReady(ctx context.Context, dest types.Destination) (bool, error) {
	if _, ok := d.receivers[dest]; !ok {
		return false, fmt.Errorf("readiness for %q: %w", dest, types.ErrUnsupportedDestination)
	}
	total, err := d.ledger.Total(ctx, dest)
	if err != nil {
		return false, err
	}
	return total >= d.threshold, nil
}

// Settle performs one settlement for dest if it is ready. A not-ready
// destination is a no-op, not an error, so schedulers and callers may
// invoke it freely. On success the settled record is returned, the window
// is reset, and a settlement event is published.
//
// Failure semantics: an insufficient fee balance or a carrier rejection
// aborts before any ledger change; the window stays open and the call is
// safe to retry.
func (d *Dispatcher) Settle(ctx context.Context, dest types.Destination) (*types.SettlementRecord, error) {
	lock, err := d.lockFor(dest)
	if err != nil {
		return nil, err
	}

	ctx, span := d.tracer.Start(ctx, "dispatcher.Settle",
		trace.WithAttributes(attribute.String("destination", string(dest))))
	defer span.End()

	lock.Lock()
	defer lock.Unlock()

	total, err := d.ledger.Total(ctx, dest)
	if err != nil {
		return nil, err
	}
	if total < d.threshold {
		return nil, nil
	}

	snap, err := d.ledger.Snapshot(ctx, dest)
	if err != nil {
		return nil, err
	}

	msg := &carrier.Message{
		Receiver:     d.receivers[dest],
		Contributors: snap.Contributors,
		Amounts:      snap.Balances,
		TokenAsset:   d.asset,
		TokenAmount:  snap.Total,
		FeeAsset:     d.feeName,
	}

	fee, err := d.carrier.QuoteFee(ctx, dest, msg)
	if err != nil {
		return nil, &carrier.Error{Op: "quote fee", Err: err}
	}

	balance, err := d.feeAsset.BalanceOf(ctx)
	if err != nil {
		return nil, fmt.Errorf("fee balance: %w", err)
	}
	if balance < fee {
		return nil, &types.InsufficientFeeBalanceError{Balance: balance, Required: fee}
	}

	// scoped to exactly the quote; never a standing authorization
	if err := d.feeAsset.Authorize(ctx, CarrierSpender, fee); err != nil {
		return nil, fmt.Errorf("authorize fee: %w", err)
	}

	msgID, err := d.carrier.Send(ctx, dest, msg)
	if err != nil {
		return nil, &carrier.Error{Op: "carrier send", Err: err}
	}

	rec := &types.SettlementRecord{
		ID:           uuid.New().String(),
		MessageID:    msgID,
		Destination:  dest,
		Receiver:     msg.Receiver,
		Contributors: snap.Contributors,
		Balances:     snap.Balances,
		Total:        snap.Total,
		FeeAsset:     d.feeName,
		FeeAmount:    fee,
		SettledAt:    time.Now().UTC(),
	}

	// The carrier has the message; only now is it safe to drain the window.
	if err := d.ledger.Reset(ctx, dest, rec); err != nil {
		d.log.Error("settlement dispatched but window not reset",
			zap.String("destination", string(dest)),
			zap.String("message_id", msgID),
			zap.Error(err))
		return nil, fmt.Errorf("reset window: %w", err)
	}

	if d.hub != nil {
		d.hub.Publish(rec)
	}
	d.log.Info("settlement dispatched",
		zap.String("destination", string(dest)),
		zap.String("message_id", msgID),
		zap.String("receiver", rec.Receiver),
		zap.Int("contributors", len(rec.Contributors)),
		zap.Uint64("total", rec.Total),
		zap.String("fee_asset", rec.FeeAsset),
		zap.Uint64("fee_amount", rec.FeeAmount))

	return rec, nil
}
