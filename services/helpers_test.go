package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"rentledger/database"
	"rentledger/models"
	"rentledger/parsers"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var unsafeNameRe = regexp.MustCompile(`[^A-Za-z0-9_]`)

// newTestDB открывает отдельную in-memory базу SQLite на каждый тест
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := unsafeNameRe.ReplaceAllString(t.Name(), "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type testEnv struct {
	db       *gorm.DB
	runs     *ImportRunService
	ledger   *LedgerService
	arrears  *ArrearsService
	importer *ImportService
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	env := &testEnv{db: db, notifier: &recordingNotifier{}}
	env.runs = NewImportRunService(db)
	env.ledger = NewLedgerService(db, NewEntityResolver())
	env.arrears = NewArrearsService(db, AnnualFlatDue, DefaultThresholds)
	env.importer = NewImportService(env.ledger, env.runs, NewInlineDispatcher(env.arrears, nil), env.notifier, nil, 1000)
	return env
}

func (e *testEnv) importCSV(t *testing.T, name, content string) (*ImportStats, error) {
	t.Helper()
	return e.importer.ImportFile(context.Background(), name, strings.NewReader(content))
}

func (e *testEnv) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

type recordingNotifier struct {
	imports    []*models.ImportRun
	recomputes []error
}

func (n *recordingNotifier) NotifyImportFinished(run *models.ImportRun, _ []RowError) error {
	n.imports = append(n.imports, run)
	return nil
}

func (n *recordingNotifier) NotifyRecomputeFailed(_ uint, err error) error {
	n.recomputes = append(n.recomputes, err)
	return nil
}

type failingDispatcher struct{ err error }

func (d failingDispatcher) Dispatch(_ context.Context, _ uint) (models.ArrearsStatus, error) {
	return models.ArrearsStatusFailed, d.err
}

// brokenReader отдаёт заголовок и строки, затем ошибку чтения
type brokenReader struct {
	rows [][]string
	pos  int
	err  error
}

func (b *brokenReader) Read() ([]string, error) {
	if b.pos >= len(b.rows) {
		return nil, b.err
	}
	row := b.rows[b.pos]
	b.pos++
	return row, nil
}

func (b *brokenReader) Close() error { return nil }

var _ parsers.RowReader = (*brokenReader)(nil)

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}
