package controllers

import (
	"net/http"

	"rentledger/utils"
)

// MetricsController отдаёт снимок счётчиков процесса
type MetricsController struct {
	metrics *utils.Metrics
}

// NewMetricsController создает новый экземпляр MetricsController
func NewMetricsController(metrics *utils.Metrics) *MetricsController {
	return &MetricsController{metrics: metrics}
}

// GetMetrics возвращает текущие метрики
func (c *MetricsController) GetMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.metrics.GetMetricsSnapshot())
}
