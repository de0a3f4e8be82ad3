package observability

import (
	"log/slog"

	"lendvault/native/vault"
)

// EventSink logs engine events and keeps the liquidation counters current.
// It implements vault.Emitter.
type EventSink struct {
	logger  *slog.Logger
	metrics *VaultMetrics
}

// NewEventSink builds a sink writing to logger. A nil logger falls back to
// the process default.
func NewEventSink(logger *slog.Logger) *EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventSink{logger: logger.With("component", "vault"), metrics: Vault()}
}

// Emit satisfies vault.Emitter.
func (s *EventSink) Emit(event vault.Event) {
	if s == nil || event == nil {
		return
	}
	switch evt := event.(type) {
	case vault.RatesUpdated:
		s.logger.Debug("rates updated",
			"event", evt.EventType(),
			"debt_rate", evt.DebtRateX64.String(),
			"lend_rate", evt.LendRateX64.String(),
			"timestamp", evt.Timestamp,
		)
	case vault.Deposited:
		s.logger.Info("deposit",
			"event", evt.EventType(),
			"lender", evt.Lender.Hex(),
			"assets", evt.Assets.String(),
			"shares", evt.Shares.String(),
		)
		s.metrics.RecordOperation("deposit", evt.Assets)
	case vault.Withdrawn:
		s.logger.Info("withdrawal",
			"event", evt.EventType(),
			"lender", evt.Lender.Hex(),
			"assets", evt.Assets.String(),
			"shares", evt.Shares.String(),
		)
		s.metrics.RecordOperation("withdraw", evt.Assets)
	case vault.LoanCreated:
		s.logger.Info("loan created",
			"event", evt.EventType(),
			"position", evt.PositionID,
			"owner", evt.Owner.Hex(),
		)
		s.metrics.RecordOperation("create_loan", nil)
	case vault.Borrowed:
		s.logger.Info("borrow",
			"event", evt.EventType(),
			"position", evt.PositionID,
			"amount", evt.Amount.String(),
			"shares", evt.Shares.String(),
		)
		s.metrics.RecordOperation("borrow", evt.Amount)
	case vault.Repaid:
		s.logger.Info("repayment",
			"event", evt.EventType(),
			"position", evt.PositionID,
			"amount", evt.Amount.String(),
			"shares", evt.Shares.String(),
			"closed", evt.Closed,
		)
		s.metrics.RecordOperation("repay", evt.Amount)
	case vault.Liquidated:
		s.logger.Warn("liquidation",
			"event", evt.EventType(),
			"position", evt.PositionID,
			"liquidator", evt.Liquidator.Hex(),
			"liquidator_cost", evt.LiquidatorCost.String(),
			"liquidation_value", evt.LiquidationValue.String(),
			"reserve_cost", evt.ReserveCost.String(),
			"missing", evt.Missing.String(),
		)
		s.metrics.RecordLiquidation(evt.ReserveCost, evt.Missing)
	case vault.Transformed:
		s.logger.Info("transform committed",
			"event", evt.EventType(),
			"old_position", evt.OldPositionID,
			"new_position", evt.NewPositionID,
			"agent", evt.Agent.Hex(),
		)
		s.metrics.RecordOperation("transform", nil)
	default:
		s.logger.Info("engine event", "event", event.EventType())
	}
}
