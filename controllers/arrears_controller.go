package controllers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"rentledger/models"
	"rentledger/services"
	"rentledger/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ArrearsController обрабатывает запросы по задолженности
type ArrearsController struct {
	arrears *services.ArrearsService
	metrics *utils.Metrics
}

// NewArrearsController создает новый экземпляр ArrearsController
func NewArrearsController(arrears *services.ArrearsService, metrics *utils.Metrics) *ArrearsController {
	return &ArrearsController{arrears: arrears, metrics: metrics}
}

// Recompute запускает полный пересчёт срезов задолженности
func (c *ArrearsController) Recompute(w http.ResponseWriter, r *http.Request) {
	result, err := c.arrears.Recompute(r.Context())
	if c.metrics != nil {
		snapshots := 0
		if result != nil {
			snapshots = result.Snapshots
		}
		c.metrics.RecordRecompute(snapshots, err)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListSnapshots возвращает срезы с фильтрами year, level и limit
func (c *ArrearsController) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	filter, err := parseSnapshotFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snapshots, err := c.arrears.ListSnapshots(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snapshots)
}

// Export выгружает срезы задолженности в файл Excel
func (c *ArrearsController) Export(w http.ResponseWriter, r *http.Request) {
	filter, err := parseSnapshotFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Книга собирается целиком, чтобы при ошибке ещё можно было вернуть 500
	var buf bytes.Buffer
	if err := c.arrears.ExportXLSX(r.Context(), &buf, filter); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	filename := fmt.Sprintf("arrears_%s.xlsx", time.Now().Format("20060102"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

func parseSnapshotFilter(r *http.Request) (services.SnapshotFilter, error) {
	var filter services.SnapshotFilter
	q := r.URL.Query()

	if raw := q.Get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil || year <= 0 {
			return filter, fmt.Errorf("некорректный год %q", raw)
		}
		filter.Year = year
	}

	if raw := q.Get("level"); raw != "" {
		level := models.PressureLevel(raw)
		switch level {
		case models.PressureLevelNone, models.PressureLevelReminder, models.PressureLevelPressure:
			filter.Level = level
		default:
			return filter, fmt.Errorf("уровень должен быть одним из: none reminder pressure")
		}
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, fmt.Errorf("некорректный лимит %q", raw)
		}
		filter.Limit = limit
	}
	return filter, nil
}
