package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"rentledger/models"
	"rentledger/parsers"
	"rentledger/utils"
)

// RowError ошибка обработки одной строки; Row это номер строки данных, начиная с 1
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportStats итог импорта одного файла
type ImportStats struct {
	RunID          uint                 `json:"runId"`
	PublicID       string               `json:"publicId"`
	RowsTotal      int                  `json:"rowsTotal"`
	RowsInserted   int                  `json:"rowsInserted"`
	RowsDuplicated int                  `json:"rowsDuplicated"`
	RowsFailed     int                  `json:"rowsFailed"`
	Errors         []RowError           `json:"errors"`
	ArrearsStatus  models.ArrearsStatus `json:"arrearsStatus"`
	ArrearsError   string               `json:"arrearsError,omitempty"`
}

// RecomputeError сообщает, что импорт завершён, но пересчёт задолженности не выполнен.
// Реестр платежей корректен, повторить можно только пересчёт.
type RecomputeError struct {
	RunID uint
	Err   error
}

func (e *RecomputeError) Error() string {
	return fmt.Sprintf("пересчёт задолженности после импорта %d не выполнен: %v", e.RunID, e.Err)
}

func (e *RecomputeError) Unwrap() error {
	return e.Err
}

// ImportService проводит поток строк через нормализацию, дедупликацию,
// разрешение сущностей и запись в реестр, затем запускает пересчёт задолженности
type ImportService struct {
	ledger     *LedgerService
	runs       *ImportRunService
	dispatcher RecomputeDispatcher
	notifier   Notifier
	metrics    *utils.Metrics
	maxErrors  int
}

// ErrUnreadableFile возвращается, когда файл не удалось открыть как таблицу.
// Запуск импорта в этом случае не создаётся.
var ErrUnreadableFile = errors.New("не удалось открыть файл")

// NewImportService создает новый экземпляр ImportService
func NewImportService(ledger *LedgerService, runs *ImportRunService, dispatcher RecomputeDispatcher, notifier Notifier, metrics *utils.Metrics, maxErrors int) *ImportService {
	if maxErrors <= 0 {
		maxErrors = 1000
	}
	return &ImportService{
		ledger:     ledger,
		runs:       runs,
		dispatcher: dispatcher,
		notifier:   notifier,
		metrics:    metrics,
		maxErrors:  maxErrors,
	}
}

// ImportFile выбирает читателя по расширению и импортирует файл
func (s *ImportService) ImportFile(ctx context.Context, filename string, r io.Reader) (*ImportStats, error) {
	rr, err := parsers.Open(filename, r)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordImportFailure(err)
		}
		return nil, fmt.Errorf("%w %s: %w", ErrUnreadableFile, filename, err)
	}
	defer rr.Close()
	return s.Import(ctx, rr, filename)
}

// Import обрабатывает строки строго по порядку. Ошибка строки не прерывает пакет;
// ошибка чтения потока прерывает его и оставляет запуск в статусе processing.
func (s *ImportService) Import(ctx context.Context, rr parsers.RowReader, sourceFile string) (*ImportStats, error) {
	startTime := time.Now()

	run, err := s.runs.Start(ctx, sourceFile)
	if err != nil {
		return nil, err
	}

	stats := &ImportStats{
		RunID:    run.ID,
		PublicID: run.PublicID,
		Errors:   []RowError{},
	}

	header, err := rr.Read()
	if err != nil && err != io.EOF {
		return stats, s.streamFailure(run, err)
	}
	if err == nil {
		columns := MapColumns(header)
		if err := s.processRows(ctx, rr, columns, run, stats); err != nil {
			return stats, s.streamFailure(run, err)
		}
	}

	var recomputeErr error
	status, dispatchErr := s.dispatcher.Dispatch(ctx, run.ID)
	stats.ArrearsStatus = status
	if dispatchErr != nil {
		stats.ArrearsError = dispatchErr.Error()
		recomputeErr = &RecomputeError{RunID: run.ID, Err: dispatchErr}
		utils.LogError("Import run %d: %v", run.ID, recomputeErr)
	}

	if err := s.runs.Finish(ctx, run, stats); err != nil {
		return stats, err
	}

	if s.metrics != nil {
		s.metrics.RecordImport(stats.RowsTotal, stats.RowsInserted, stats.RowsDuplicated, stats.RowsFailed)
	}
	s.notify(run, stats, dispatchErr)

	utils.LogOperation(fmt.Sprintf("import %s (run %d)", sourceFile, run.ID), startTime, nil)
	utils.LogInfo("Import run %d: total=%d inserted=%d duplicated=%d failed=%d arrears=%s",
		run.ID, stats.RowsTotal, stats.RowsInserted, stats.RowsDuplicated, stats.RowsFailed, stats.ArrearsStatus)

	return stats, recomputeErr
}

func (s *ImportService) processRows(ctx context.Context, rr parsers.RowReader, columns ColumnMap, run *models.ImportRun, stats *ImportStats) error {
	rowIndex := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		record, err := rr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		rowIndex++

		if isBlankRow(record) {
			continue
		}
		stats.RowsTotal++

		row := columns.Extract(record, run.SourceFile).Normalize()
		row.ImportRunID = &run.ID

		outcome, err := s.ledger.Record(ctx, row)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.addRowError(stats, rowIndex, err)
			continue
		}

		switch outcome {
		case OutcomeInserted:
			stats.RowsInserted++
		case OutcomeDuplicate:
			stats.RowsDuplicated++
		}
	}
}

// addRowError учитывает сбой строки; подробности хранятся не больше maxErrors
func (s *ImportService) addRowError(stats *ImportStats, row int, err error) {
	stats.RowsFailed++
	if !errors.Is(err, ErrInvalidRow) {
		utils.LogDebug("Row %d failed: %v", row, err)
	}
	if len(stats.Errors) < s.maxErrors {
		stats.Errors = append(stats.Errors, RowError{Row: row, Message: err.Error()})
	}
}

func (s *ImportService) streamFailure(run *models.ImportRun, err error) error {
	utils.LogError("Import run %d aborted, left in %s: %v", run.ID, run.Status, err)
	if s.metrics != nil {
		s.metrics.RecordImportFailure(err)
	}
	return fmt.Errorf("ошибка чтения файла %s: %w", run.SourceFile, err)
}

func (s *ImportService) notify(run *models.ImportRun, stats *ImportStats, recomputeErr error) {
	if s.notifier == nil {
		return
	}
	if stats.RowsFailed > 0 {
		if err := s.notifier.NotifyImportFinished(run, stats.Errors); err != nil {
			utils.LogError("Failed to send import report for run %d: %v", run.ID, err)
		}
	}
	if recomputeErr != nil {
		if err := s.notifier.NotifyRecomputeFailed(run.ID, recomputeErr); err != nil {
			utils.LogError("Failed to send recompute alert for run %d: %v", run.ID, err)
		}
	}
}
