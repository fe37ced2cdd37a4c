package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"rentledger/middleware"
	"rentledger/models"
	"rentledger/services"
	"rentledger/utils"

	"github.com/gorilla/mux"
)

// ImportController обрабатывает загрузку выписок и просмотр запусков импорта
type ImportController struct {
	importer    *services.ImportService
	runs        *services.ImportRunService
	maxUploadMB int
}

// NewImportController создает новый экземпляр ImportController
func NewImportController(importer *services.ImportService, runs *services.ImportRunService, maxUploadMB int) *ImportController {
	if maxUploadMB <= 0 {
		maxUploadMB = 32
	}
	return &ImportController{
		importer:    importer,
		runs:        runs,
		maxUploadMB: maxUploadMB,
	}
}

// Upload принимает файл выписки (поле формы "file") и импортирует его.
// 200 при полном успехе, 207 если часть строк отклонена, 500 при обрыве чтения файла.
func (c *ImportController) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(c.maxUploadMB)<<20)
	if err := r.ParseMultipartForm(int64(c.maxUploadMB) << 20); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	utils.LogInfo("Import of %s requested by %s", header.Filename, requester(r))
	stats, err := c.importer.ImportFile(r.Context(), header.Filename, file)
	var recomputeErr *services.RecomputeError
	switch {
	case err == nil, errors.As(err, &recomputeErr):
		// Сбой пересчёта не отменяет импорт: ошибка видна в поле arrearsError
	case errors.Is(err, services.ErrUnreadableFile):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case stats != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":    err.Error(),
			"runId":    stats.RunID,
			"publicId": stats.PublicID,
		})
		return
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	if stats.RowsFailed > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, stats)
}

// ListRuns возвращает последние запуски импорта
func (c *ImportController) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	runs, err := c.runs.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun возвращает запуск импорта по числовому ID или публичному UUID
func (c *ImportController) GetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var (
		run *models.ImportRun
		err error
	)
	if n, convErr := strconv.ParseUint(id, 10, 64); convErr == nil {
		run, err = c.runs.Get(r.Context(), uint(n))
	} else {
		run, err = c.runs.GetByPublicID(r.Context(), id)
	}
	if err != nil {
		if errors.Is(err, services.ErrImportRunNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// requester возвращает subject (и роль) из токена запроса или "anonymous" без аутентификации
func requester(r *http.Request) string {
	subject, role, err := middleware.GetSubjectFromContext(r)
	if err != nil {
		return "anonymous"
	}
	if role != "" {
		return subject + " (" + role + ")"
	}
	return subject
}
