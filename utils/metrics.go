package utils

import (
	"sync"
	"time"
)

// Metrics содержит счётчики импорта, пересчёта задолженности и HTTP-запросов
type Metrics struct {
	mu sync.RWMutex

	// Метрики запросов
	TotalRequests   int64
	FailedRequests  int64
	RequestLatency  time.Duration
	AverageLatency  time.Duration
	LastRequestTime time.Time

	// Метрики импорта
	ImportRuns       int64
	ImportStreamErrs int64
	RowsTotal        int64
	RowsInserted     int64
	RowsDuplicated   int64
	RowsFailed       int64
	LastImportTime   time.Time

	// Метрики пересчёта задолженности
	Recomputes        int64
	RecomputeFailures int64
	SnapshotsWritten  int64
	LastRecomputeTime time.Time

	// Метрики ошибок
	ErrorCount    int64
	LastErrorTime time.Time
	ErrorTypes    map[string]int64
}

// NewMetrics создает новый набор счётчиков
func NewMetrics() *Metrics {
	return &Metrics{
		ErrorTypes: make(map[string]int64),
	}
}

// RecordRequest записывает метрики запроса
func (m *Metrics) RecordRequest(duration time.Duration, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests++
	m.RequestLatency += duration
	m.AverageLatency = m.RequestLatency / time.Duration(m.TotalRequests)
	m.LastRequestTime = time.Now()

	if failed {
		m.FailedRequests++
	}
}

// RecordImport записывает итог одного запуска импорта
func (m *Metrics) RecordImport(total, inserted, duplicated, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ImportRuns++
	m.RowsTotal += int64(total)
	m.RowsInserted += int64(inserted)
	m.RowsDuplicated += int64(duplicated)
	m.RowsFailed += int64(failed)
	m.LastImportTime = time.Now()
}

// RecordImportFailure записывает фатальную ошибку потока
func (m *Metrics) RecordImportFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ImportStreamErrs++
	m.recordErrorLocked("import", err)
}

// RecordRecompute записывает результат пересчёта задолженности
func (m *Metrics) RecordRecompute(snapshots int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Recomputes++
	m.LastRecomputeTime = time.Now()
	if err != nil {
		m.RecomputeFailures++
		m.recordErrorLocked("recompute", err)
		return
	}
	m.SnapshotsWritten += int64(snapshots)
}

// RecordError записывает метрики ошибки
func (m *Metrics) RecordError(kind string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordErrorLocked(kind, err)
}

func (m *Metrics) recordErrorLocked(kind string, err error) {
	if err == nil {
		return
	}
	m.ErrorCount++
	m.LastErrorTime = time.Now()
	m.ErrorTypes[kind]++
}

// GetMetricsSnapshot возвращает снимок текущих метрик
func (m *Metrics) GetMetricsSnapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	errorTypes := make(map[string]int64, len(m.ErrorTypes))
	for k, v := range m.ErrorTypes {
		errorTypes[k] = v
	}

	return map[string]interface{}{
		"total_requests":     m.TotalRequests,
		"failed_requests":    m.FailedRequests,
		"average_latency_ms": m.AverageLatency.Milliseconds(),
		"import_runs":        m.ImportRuns,
		"import_stream_errs": m.ImportStreamErrs,
		"rows_total":         m.RowsTotal,
		"rows_inserted":      m.RowsInserted,
		"rows_duplicated":    m.RowsDuplicated,
		"rows_failed":        m.RowsFailed,
		"recomputes":         m.Recomputes,
		"recompute_failures": m.RecomputeFailures,
		"snapshots_written":  m.SnapshotsWritten,
		"error_count":        m.ErrorCount,
		"last_error_time":    m.LastErrorTime,
		"error_types":        errorTypes,
	}
}

// ResetMetrics сбрасывает все метрики
func (m *Metrics) ResetMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests, m.FailedRequests = 0, 0
	m.RequestLatency, m.AverageLatency = 0, 0
	m.ImportRuns, m.ImportStreamErrs = 0, 0
	m.RowsTotal, m.RowsInserted, m.RowsDuplicated, m.RowsFailed = 0, 0, 0, 0
	m.Recomputes, m.RecomputeFailures, m.SnapshotsWritten = 0, 0, 0
	m.ErrorCount = 0
	m.ErrorTypes = make(map[string]int64)
}
