package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vendfleet/backend/internal/domain/ledger"
	"github.com/vendfleet/backend/internal/domain/shared"
)

// In-memory repositories backing the services under test. They mirror
// the persistence contract: reads hand out copies, writes only take
// effect through Save, and SaveWithLock enforces the version check.

type memStockRecords struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*ledger.StockRecord
	// pending SaveWithLock rejections, simulating a competing writer
	// that committed between this transaction's read and its guarded
	// update
	saveConflicts int
}

func newMemStockRecords() *memStockRecords {
	return &memStockRecords{byID: make(map[uuid.UUID]*ledger.StockRecord)}
}

func cloneRecord(record *ledger.StockRecord) *ledger.StockRecord {
	clone := *record
	clone.ClearDomainEvents()
	return &clone
}

func (m *memStockRecords) FindByID(ctx context.Context, id uuid.UUID) (*ledger.StockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	return cloneRecord(record), nil
}

func (m *memStockRecords) FindByKey(ctx context.Context, key ledger.RecordKey) (*ledger.StockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, record := range m.byID {
		if record.Key() == key {
			return cloneRecord(record), nil
		}
	}
	return nil, nil
}

func (m *memStockRecords) FindByKeyForUpdate(ctx context.Context, key ledger.RecordKey) (*ledger.StockRecord, error) {
	return m.FindByKey(ctx, key)
}

func (m *memStockRecords) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*ledger.StockRecord, error) {
	return m.FindByID(ctx, id)
}

func (m *memStockRecords) GetOrCreate(ctx context.Context, key ledger.RecordKey) (*ledger.StockRecord, error) {
	if existing, err := m.FindByKey(ctx, key); err != nil || existing != nil {
		return existing, err
	}
	record, err := ledger.NewStockRecord(key.Level, key.OwnerRef, key.ProductID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[record.ID] = record
	return cloneRecord(record), nil
}

func (m *memStockRecords) Save(ctx context.Context, record *ledger.StockRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[record.ID] = cloneRecord(record)
	return nil
}

func (m *memStockRecords) SaveWithLock(ctx context.Context, record *ledger.StockRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byID[record.ID]
	if !ok || stored.Version != record.Version {
		return ledger.NewConcurrentModificationError(record.Key())
	}
	if m.saveConflicts > 0 {
		m.saveConflicts--
		return ledger.NewConcurrentModificationError(record.Key())
	}
	record.IncrementVersion()
	m.byID[record.ID] = cloneRecord(record)
	return nil
}

func (m *memStockRecords) FindAll(ctx context.Context, filter shared.Filter) (shared.Paginated[*ledger.StockRecord], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := make([]*ledger.StockRecord, 0, len(m.byID))
	for _, record := range m.byID {
		records = append(records, cloneRecord(record))
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Key().Less(records[j].Key())
	})
	return paginate(records, filter), nil
}

func (m *memStockRecords) FindBelowThreshold(ctx context.Context) ([]*ledger.StockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var below []*ledger.StockRecord
	for _, record := range m.byID {
		if record.MinThreshold.IsPositive() && record.OnHand.LessThan(record.MinThreshold) {
			below = append(below, cloneRecord(record))
		}
	}
	return below, nil
}

type memMovements struct {
	mu      sync.Mutex
	entries []*ledger.MovementEntry
}

func newMemMovements() *memMovements {
	return &memMovements{}
}

func (m *memMovements) Create(ctx context.Context, entries ...*ledger.MovementEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range entries {
		if entry.IdempotencyKey != "" {
			for _, existing := range m.entries {
				if existing.IdempotencyKey == entry.IdempotencyKey &&
					existing.Quantity.IsNegative() == entry.Quantity.IsNegative() {
					return shared.ErrAlreadyExists
				}
			}
		}
		clone := *entry
		m.entries = append(m.entries, &clone)
	}
	return nil
}

func (m *memMovements) FindByID(ctx context.Context, id uuid.UUID) (*ledger.MovementEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range m.entries {
		if entry.ID == id {
			clone := *entry
			return &clone, nil
		}
	}
	return nil, nil
}

func (m *memMovements) FindByCorrelationID(ctx context.Context, correlationID uuid.UUID) ([]*ledger.MovementEntry, error) {
	return m.filter(func(entry *ledger.MovementEntry) bool {
		return entry.CorrelationID == correlationID
	}), nil
}

func (m *memMovements) FindByIdempotencyKey(ctx context.Context, key string) ([]*ledger.MovementEntry, error) {
	return m.filter(func(entry *ledger.MovementEntry) bool {
		return entry.IdempotencyKey == key
	}), nil
}

func (m *memMovements) FindByRecordID(ctx context.Context, recordID uuid.UUID, filter shared.Filter) (shared.Paginated[*ledger.MovementEntry], error) {
	matched, err := m.FindAllByRecordID(ctx, recordID)
	if err != nil {
		return shared.Paginated[*ledger.MovementEntry]{}, err
	}
	return paginate(matched, filter), nil
}

func (m *memMovements) FindAllByRecordID(ctx context.Context, recordID uuid.UUID) ([]*ledger.MovementEntry, error) {
	return m.filter(func(entry *ledger.MovementEntry) bool {
		return (entry.SourceRecordID != nil && *entry.SourceRecordID == recordID) ||
			(entry.DestinationRecordID != nil && *entry.DestinationRecordID == recordID)
	}), nil
}

func (m *memMovements) SumByRecordID(ctx context.Context, recordID uuid.UUID) (decimal.Decimal, error) {
	entries, err := m.FindAllByRecordID(ctx, recordID)
	if err != nil {
		return decimal.Zero, err
	}
	return ledger.ReconstructBalance(recordID, entries), nil
}

func (m *memMovements) filter(match func(*ledger.MovementEntry) bool) []*ledger.MovementEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*ledger.MovementEntry
	for _, entry := range m.entries {
		if match(entry) {
			clone := *entry
			matched = append(matched, &clone)
		}
	}
	return matched
}

type memReservations struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*ledger.Reservation
}

func newMemReservations() *memReservations {
	return &memReservations{byID: make(map[uuid.UUID]*ledger.Reservation)}
}

func cloneReservation(reservation *ledger.Reservation) *ledger.Reservation {
	clone := *reservation
	clone.ClearDomainEvents()
	return &clone
}

func (m *memReservations) FindByID(ctx context.Context, id uuid.UUID) (*ledger.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reservation, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	return cloneReservation(reservation), nil
}

func (m *memReservations) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*ledger.Reservation, error) {
	return m.FindByID(ctx, id)
}

func (m *memReservations) Create(ctx context.Context, reservation *ledger.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[reservation.ID] = cloneReservation(reservation)
	return nil
}

func (m *memReservations) Save(ctx context.Context, reservation *ledger.Reservation) error {
	return m.Create(ctx, reservation)
}

func (m *memReservations) SaveWithLock(ctx context.Context, reservation *ledger.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byID[reservation.ID]
	if !ok || stored.Version != reservation.Version {
		return shared.ErrConcurrencyConflict
	}
	reservation.IncrementVersion()
	m.byID[reservation.ID] = cloneReservation(reservation)
	return nil
}

func (m *memReservations) FindActiveByRecordID(ctx context.Context, recordID uuid.UUID) ([]*ledger.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var active []*ledger.Reservation
	for _, reservation := range m.byID {
		if reservation.StockRecordID == recordID && reservation.IsActive() {
			active = append(active, cloneReservation(reservation))
		}
	}
	return active, nil
}

func (m *memReservations) FindDue(ctx context.Context, now time.Time, limit int) ([]*ledger.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*ledger.Reservation
	for _, reservation := range m.byID {
		if reservation.IsDue(now) {
			due = append(due, cloneReservation(reservation))
			if len(due) == limit {
				break
			}
		}
	}
	return due, nil
}

func (m *memReservations) FindAll(ctx context.Context, filter shared.Filter) (shared.Paginated[*ledger.Reservation], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reservations := make([]*ledger.Reservation, 0, len(m.byID))
	for _, reservation := range m.byID {
		reservations = append(reservations, cloneReservation(reservation))
	}
	sort.Slice(reservations, func(i, j int) bool {
		return reservations[i].CreatedAt.Before(reservations[j].CreatedAt)
	})
	return paginate(reservations, filter), nil
}

func paginate[T any](items []T, filter shared.Filter) shared.Paginated[T] {
	total := int64(len(items))
	start := (filter.Page - 1) * filter.PageSize
	if start > len(items) {
		start = len(items)
	}
	end := start + filter.PageSize
	if end > len(items) {
		end = len(items)
	}
	return shared.NewPaginated(items[start:end], total, filter.Page, filter.PageSize)
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *capturingPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *capturingPublisher) eventsOfType(eventType string) []shared.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var matched []shared.DomainEvent
	for _, event := range p.events {
		if event.EventType() == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

type fixture struct {
	records      *memStockRecords
	movements    *memMovements
	reservations *memReservations
	publisher    *capturingPublisher
	scope        *NoOpTransactionScope
}

func newFixture() *fixture {
	records := newMemStockRecords()
	movements := newMemMovements()
	reservations := newMemReservations()
	return &fixture{
		records:      records,
		movements:    movements,
		reservations: reservations,
		publisher:    &capturingPublisher{},
		scope: &NoOpTransactionScope{Repos: &TransactionalRepositories{
			StockRecords: records,
			Movements:    movements,
			Reservations: reservations,
		}},
	}
}

func (f *fixture) transferService() *TransferService {
	return NewTransferService(f.scope, f.publisher, zap.NewNop())
}

func (f *fixture) reservationService() *ReservationService {
	return NewReservationService(f.scope, f.publisher, zap.NewNop())
}

func (f *fixture) reconciliationService() *ReconciliationService {
	return NewReconciliationService(f.scope, f.publisher, zap.NewNop())
}

func (f *fixture) recordService() *StockRecordService {
	return NewStockRecordService(f.scope, zap.NewNop())
}
