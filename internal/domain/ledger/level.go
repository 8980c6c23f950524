package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// Level identifies the tier of the supply chain a stock record belongs to
type Level string

const (
	LevelWarehouse Level = "WAREHOUSE"
	LevelOperator  Level = "OPERATOR"
	LevelMachine   Level = "MACHINE"
)

// IsValid checks whether the level is a known tier
func (l Level) IsValid() bool {
	switch l {
	case LevelWarehouse, LevelOperator, LevelMachine:
		return true
	}
	return false
}

// rank orders levels top-down for deterministic lock acquisition
func (l Level) rank() int {
	switch l {
	case LevelWarehouse:
		return 0
	case LevelOperator:
		return 1
	case LevelMachine:
		return 2
	}
	return 3
}

// RecordKey uniquely identifies a stock record within the ledger
type RecordKey struct {
	Level     Level
	OwnerRef  uuid.UUID
	ProductID uuid.UUID
}

// String renders the key for logging and error messages
func (k RecordKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Level, k.OwnerRef, k.ProductID)
}

// Less defines a total order over record keys. All multi-record
// operations acquire row locks in this order to avoid deadlocks.
func (k RecordKey) Less(other RecordKey) bool {
	if k.Level.rank() != other.Level.rank() {
		return k.Level.rank() < other.Level.rank()
	}
	if k.OwnerRef != other.OwnerRef {
		return k.OwnerRef.String() < other.OwnerRef.String()
	}
	return k.ProductID.String() < other.ProductID.String()
}
