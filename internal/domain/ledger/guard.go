package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ValidateQuantity rejects zero and negative requested quantities
func ValidateQuantity(quantity decimal.Decimal) error {
	if !quantity.IsPositive() {
		return NewInvalidQuantityError(quantity)
	}
	return nil
}

// CheckRecordInvariants verifies the balance invariants of a record:
// non-negative balances, reserved never exceeding on-hand, and on-hand
// within capacity. The database enforces the same rules as CHECK
// constraints; this is the in-process layer.
func CheckRecordInvariants(record *StockRecord) error {
	if record.OnHand.IsNegative() {
		return NewInvalidStateError("on-hand balance is negative on " + record.Key().String())
	}
	if record.Reserved.IsNegative() {
		return NewInvalidStateError("reserved balance is negative on " + record.Key().String())
	}
	if record.Reserved.GreaterThan(record.OnHand) {
		return NewInvalidStateError("reserved exceeds on-hand on " + record.Key().String())
	}
	if record.MaxCapacity != nil && record.OnHand.GreaterThan(*record.MaxCapacity) {
		return NewCapacityExceededError(record.Key(), record.OnHand, *record.MaxCapacity)
	}
	return nil
}

// CheckEntryPair verifies that a debit and credit row form a consistent
// double-entry pair: shared correlation ID, same product and type, and
// quantities that cancel out.
func CheckEntryPair(debit, credit *MovementEntry) error {
	if !debit.IsDebit() || !credit.IsCredit() {
		return NewInvalidStateError("entry pair must consist of one debit and one credit")
	}
	if debit.CorrelationID != credit.CorrelationID {
		return NewInvalidStateError("entry pair rows must share a correlation ID")
	}
	if debit.Type != credit.Type || debit.ProductID != credit.ProductID {
		return NewInvalidStateError("entry pair rows must share movement type and product")
	}
	if !debit.Quantity.Add(credit.Quantity).IsZero() {
		return NewInvalidStateError("entry pair quantities must cancel out")
	}
	return nil
}

// ReconstructBalance folds the movement log into the on-hand balance of
// one record. Instrumentation rows are skipped; a row counts when the
// record is its debited source or credited destination.
func ReconstructBalance(recordID uuid.UUID, entries []*MovementEntry) decimal.Decimal {
	return ReconstructBalanceAsOf(recordID, entries, time.Time{})
}

// ReconstructBalanceAsOf folds the log up to and including asOf. A zero
// asOf places no upper bound.
func ReconstructBalanceAsOf(recordID uuid.UUID, entries []*MovementEntry, asOf time.Time) decimal.Decimal {
	balance := decimal.Zero
	for _, entry := range entries {
		if entry.Type.IsInstrumentation() {
			continue
		}
		if !asOf.IsZero() && entry.OccurredAt.After(asOf) {
			continue
		}
		if entry.IsDebit() && entry.SourceRecordID != nil && *entry.SourceRecordID == recordID {
			balance = balance.Add(entry.Quantity)
		}
		if entry.IsCredit() && entry.DestinationRecordID != nil && *entry.DestinationRecordID == recordID {
			balance = balance.Add(entry.Quantity)
		}
	}
	return balance
}
