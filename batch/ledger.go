package batch

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/zing22845/go-wxcrypt/internal/sqlitedb"
	"gorm.io/gorm"
)

// TaskRecord is one row of the batch ledger.
type TaskRecord struct {
	gorm.Model
	RunID       string `gorm:"index;type:varchar(36)"`
	TaskKind    string
	Source      string `gorm:"index"`
	Destination string
	Output      string
	Status      string
	Error       string
	Pages       uint32
	Written     int64
	Skipped     bool
	ElapsedMs   int64
}

const ledgerTable = "task_records"

func (TaskRecord) TableName() string {
	return ledgerTable
}

func newTaskRecord(runID string, res *Result) *TaskRecord {
	rec := &TaskRecord{
		RunID:       runID,
		TaskKind:    res.Task.Kind.String(),
		Source:      res.Task.Source,
		Destination: res.Task.Destination,
		Output:      res.Output,
		Status:      res.Kind.String(),
		Pages:       res.Pages,
		Written:     res.Written,
		Skipped:     res.Skipped,
		ElapsedMs:   res.Elapsed.Milliseconds(),
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	return rec
}

// Ledger persists task results into a sqlite file. Records are queued and
// inserted in batches by a single writer goroutine.
type Ledger struct {
	RunID     string
	DB        *gorm.DB
	BatchSize int
	Err       error

	mu      sync.Mutex
	closed  bool
	records chan *TaskRecord
	done    chan struct{}
}

func OpenLedger(path string, batchSize int) (l *Ledger, err error) {
	if batchSize <= 0 {
		batchSize = DefaultLedgerBatchSize
	}
	db, err := sqlitedb.NewConnection(path, true)
	if err != nil {
		return nil, errors.Wrapf(err, "open ledger %s", path)
	}
	if err = db.AutoMigrate(&TaskRecord{}); err != nil {
		sqlitedb.CloseConnection(db)
		return nil, errors.Wrapf(err, "migrate ledger %s", path)
	}
	l = &Ledger{
		RunID:     uuid.NewString(),
		DB:        db,
		BatchSize: batchSize,
		records:   make(chan *TaskRecord, batchSize),
		done:      make(chan struct{}),
	}
	go l.write()
	log.WithFields(log.Fields{"path": path, "run_id": l.RunID}).Debug("ledger opened")
	return l, nil
}

// Record queues res. Calls after Close are dropped.
func (l *Ledger) Record(res *Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.records <- newTaskRecord(l.RunID, res)
}

func (l *Ledger) write() {
	batch := make([]*TaskRecord, 0, l.BatchSize)
	defer func() {
		if len(batch) > 0 {
			l.insertBatch(batch)
		}
		close(l.done)
	}()
	for rec := range l.records {
		if l.Err != nil {
			// keep draining so Record never blocks
			continue
		}
		batch = append(batch, rec)
		if len(batch) == l.BatchSize {
			l.insertBatch(batch)
			batch = batch[:0]
		}
	}
}

func (l *Ledger) insertBatch(batch []*TaskRecord) {
	if l.Err != nil {
		return
	}
	if err := l.DB.Create(batch).Error; err != nil {
		l.Err = errors.Wrap(err, "insert ledger records")
	}
}

// Close flushes queued records and closes the database.
func (l *Ledger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return l.Err
	}
	l.closed = true
	close(l.records)
	l.mu.Unlock()
	<-l.done
	sqlitedb.CloseConnection(l.DB)
	return l.Err
}

// ReadLedger loads the records of one run, in insertion order.
func ReadLedger(path, runID string) (records []TaskRecord, err error) {
	db, err := sqlitedb.NewConnection(path, false)
	if err != nil {
		return nil, errors.Wrapf(err, "open ledger %s", path)
	}
	defer sqlitedb.CloseConnection(db)
	exists, err := sqlitedb.CheckTableExists(ledgerTable, db)
	if err == nil && exists {
		exists, err = sqlitedb.CheckFieldExists(ledgerTable, "run_id", db)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "inspect ledger %s", path)
	}
	if !exists {
		return nil, errors.Errorf("%s is not a wxcrypt ledger", path)
	}
	err = db.Where("run_id = ?", runID).Order("id").Find(&records).Error
	return records, err
}
