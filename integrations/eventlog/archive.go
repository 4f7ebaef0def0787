// Package eventlog archives committed ledger events into a SQL database so
// they can be queried after the live stream has moved on.
package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"synthledger/core/events"
	"synthledger/core/types"
	"synthledger/observability/metrics"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultLimit     = 100
	maxLimit         = 1000
	defaultQueueSize = 1024
)

// Record is one archived event.
type Record struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Ordinal    uint64    `gorm:"uniqueIndex"`
	Sequence   uint64    `gorm:"index"`
	Type       string    `gorm:"size:64;index"`
	Timestamp  time.Time `gorm:"index"`
	PoolID     string    `gorm:"size:40;index"`
	AccountID  string    `gorm:"size:40;index"`
	MarketID   string    `gorm:"size:40;index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time
}

// TableName pins the table name independent of the struct name.
func (Record) TableName() string { return "ledger_events" }

// Open connects to the archive database.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite, "":
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("eventlog: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", driver, err)
	}
	return db, nil
}

// Archive is an events.Emitter persisting every ledger event it receives.
// Emit only queues; a single worker writes events in emission order. Write
// failures are logged and counted; they never reach the ledger.
type Archive struct {
	db      *gorm.DB
	logger  *slog.Logger
	metrics *metrics.HTTPMetrics

	mu      sync.Mutex
	ordinal uint64

	queue     chan archiveJob
	closing   chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// archiveJob carries an event to store, or a flush marker when done is set.
type archiveJob struct {
	evt  *types.Event
	done chan struct{}
}

// New migrates the schema and starts an archive writing to db.
func New(db *gorm.DB, logger *slog.Logger) (*Archive, error) {
	if db == nil {
		return nil, fmt.Errorf("eventlog: database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("eventlog: migrate: %w", err)
	}
	var last uint64
	if err := db.Model(&Record{}).Select("COALESCE(MAX(ordinal), 0)").Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("eventlog: read last ordinal: %w", err)
	}
	a := &Archive{
		db:      db,
		logger:  logger,
		ordinal: last,
		queue:   make(chan archiveJob, defaultQueueSize),
		closing: make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go a.run()
	return a, nil
}

// SetMetrics enables archive counters.
func (a *Archive) SetMetrics(m *metrics.HTTPMetrics) { a.metrics = m }

// Emit implements events.Emitter. It never waits on the database; events
// are dropped, and counted as failures, when the queue is full or the
// archive is closed.
func (a *Archive) Emit(evt events.Event) {
	payload, ok := evt.(events.Payload)
	if !ok {
		return
	}
	rendered := payload.Event()
	if rendered == nil {
		return
	}
	select {
	case <-a.closing:
		a.metrics.IncArchived(false)
		return
	default:
	}
	select {
	case a.queue <- archiveJob{evt: rendered}:
	default:
		a.metrics.IncArchived(false)
		a.logger.Error("archive queue full, dropping ledger event",
			slog.String("type", rendered.Type),
			slog.Uint64("sequence", rendered.Height))
	}
}

// Flush blocks until every event queued before the call is written.
func (a *Archive) Flush(ctx context.Context) error {
	marker := archiveJob{done: make(chan struct{})}
	select {
	case a.queue <- marker:
	case <-a.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-marker.done:
		return nil
	case <-a.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events, writes what is already queued and stops the
// worker.
func (a *Archive) Close() {
	a.closeOnce.Do(func() { close(a.closing) })
	<-a.stopped
}

func (a *Archive) run() {
	defer close(a.stopped)
	for {
		select {
		case job := <-a.queue:
			a.handle(job)
		case <-a.closing:
			for {
				select {
				case job := <-a.queue:
					a.handle(job)
				default:
					return
				}
			}
		}
	}
}

func (a *Archive) handle(job archiveJob) {
	if job.done != nil {
		close(job.done)
		return
	}
	err := a.Store(context.Background(), job.evt)
	a.metrics.IncArchived(err == nil)
	if err != nil {
		a.logger.Error("archive ledger event",
			slog.String("type", job.evt.Type),
			slog.Uint64("sequence", job.evt.Height),
			slog.Any("error", err))
	}
}

// Store writes a single event.
func (a *Archive) Store(ctx context.Context, evt *types.Event) error {
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return fmt.Errorf("eventlog: encode attributes: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	record := Record{
		ID:         uuid.New(),
		Ordinal:    a.ordinal + 1,
		Sequence:   evt.Height,
		Type:       evt.Type,
		Timestamp:  evt.Time(),
		PoolID:     evt.Attributes["poolId"],
		AccountID:  evt.Attributes["accountId"],
		MarketID:   evt.Attributes["marketId"],
		Attributes: string(attrs),
	}
	if err := a.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("eventlog: insert: %w", err)
	}
	a.ordinal = record.Ordinal
	return nil
}

// Query filters archived events. Zero fields match everything.
type Query struct {
	Type          string
	PoolID        string
	AccountID     string
	MarketID      string
	AfterSequence uint64
	Limit         int
}

// List returns archived events in commit order, including every event
// emitted before the call.
func (a *Archive) List(ctx context.Context, q Query) ([]*types.Event, error) {
	if err := a.Flush(ctx); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	tx := a.db.WithContext(ctx).Model(&Record{})
	if q.Type != "" {
		tx = tx.Where("type = ?", q.Type)
	}
	if q.PoolID != "" {
		tx = tx.Where("pool_id = ?", q.PoolID)
	}
	if q.AccountID != "" {
		tx = tx.Where("account_id = ?", q.AccountID)
	}
	if q.MarketID != "" {
		tx = tx.Where("market_id = ?", q.MarketID)
	}
	if q.AfterSequence > 0 {
		tx = tx.Where("sequence > ?", q.AfterSequence)
	}
	var records []Record
	if err := tx.Order("ordinal ASC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("eventlog: query: %w", err)
	}
	out := make([]*types.Event, 0, len(records))
	for _, record := range records {
		evt := &types.Event{
			Type:      record.Type,
			Height:    record.Sequence,
			Timestamp: record.Timestamp.Unix(),
		}
		if err := json.Unmarshal([]byte(record.Attributes), &evt.Attributes); err != nil {
			return nil, fmt.Errorf("eventlog: decode record %s: %w", record.ID, err)
		}
		out = append(out, evt)
	}
	return out, nil
}
