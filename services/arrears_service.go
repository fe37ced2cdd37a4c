package services

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"rentledger/models"
	"rentledger/utils"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Thresholds пороги классификации задолженности
type Thresholds struct {
	PressureMonths int
	PressureAmount int64
}

// DefaultThresholds пороги по умолчанию: больше одного месяца или больше 2 000 000
var DefaultThresholds = Thresholds{PressureMonths: 1, PressureAmount: 2000000}

// RecomputeResult итог пересчёта задолженности
type RecomputeResult struct {
	Years     []int         `json:"years"`
	Contracts int           `json:"contracts"`
	Snapshots int           `json:"snapshots"`
	Duration  time.Duration `json:"durationNs"`
}

// SnapshotFilter фильтр выборки годовых срезов
type SnapshotFilter struct {
	Year  int
	Level models.PressureLevel
	Limit int
}

// ArrearsService пересчитывает годовые срезы начислено/оплачено/долг по активным договорам
type ArrearsService struct {
	db         *gorm.DB
	policy     DuePolicy
	thresholds Thresholds
	now        func() time.Time

	mu sync.Mutex
}

// NewArrearsService создает новый экземпляр ArrearsService.
// Пустая политика заменяется на AnnualFlatDue.
func NewArrearsService(db *gorm.DB, policy DuePolicy, thresholds Thresholds) *ArrearsService {
	if policy == nil {
		policy = AnnualFlatDue
	}
	return &ArrearsService{
		db:         db,
		policy:     policy,
		thresholds: thresholds,
		now:        time.Now,
	}
}

// Classify относит задолженность к уровню давления.
// Напоминание выдается за 1..PressureMonths полных месяцев долга в пределах порога суммы.
func Classify(arrearsAmount int64, arrearsMonths int, th Thresholds) models.PressureLevel {
	switch {
	case arrearsMonths > th.PressureMonths || arrearsAmount > th.PressureAmount:
		return models.PressureLevelPressure
	case arrearsMonths >= 1:
		return models.PressureLevelReminder
	default:
		return models.PressureLevelNone
	}
}

// BuildSnapshot рассчитывает срез договора за год по сумме оплат
func BuildSnapshot(contractID uint, year int, due, paid, monthlyRent int64, th Thresholds, at time.Time) models.PaymentStatusYear {
	arrears := due - paid
	if arrears < 0 {
		arrears = 0
	}
	months := 0
	if monthlyRent > 0 {
		months = int(arrears / monthlyRent)
	}
	return models.PaymentStatusYear{
		ContractID:    contractID,
		Year:          year,
		DueAmount:     due,
		PaidAmount:    paid,
		ArrearsAmount: arrears,
		ArrearsMonths: months,
		PressureLevel: Classify(arrears, months, th),
		LastUpdate:    at,
	}
}

type paidKey struct {
	contractID uint
	year       int
}

type paidRow struct {
	ContractID uint
	Yr         int
	Paid       int64
}

// Recompute полностью перестраивает срезы по всем годам реестра и всем активным договорам.
// Агрегация читается целиком до записи, все upsert выполняются в одной транзакции.
func (s *ArrearsService) Recompute(ctx context.Context) (*RecomputeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	db := s.db.WithContext(ctx)
	yearExpr := yearExpression(db)

	var years []int
	if err := db.Raw("SELECT DISTINCT " + yearExpr + " AS yr FROM payments ORDER BY yr").
		Scan(&years).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении лет реестра: %w", err)
	}
	if len(years) == 0 {
		years = []int{s.now().Year()}
	}

	var contracts []models.Contract
	if err := db.Where("status = ?", string(models.ContractStatusActive)).
		Order("id").
		Find(&contracts).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении активных договоров: %w", err)
	}

	var rows []paidRow
	if err := db.Raw("SELECT contract_id, " + yearExpr + " AS yr, CAST(SUM(amount) AS BIGINT) AS paid " +
		"FROM payments GROUP BY contract_id, " + yearExpr).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("ошибка при агрегации оплат: %w", err)
	}
	paid := make(map[paidKey]int64, len(rows))
	for _, r := range rows {
		paid[paidKey{r.ContractID, r.Yr}] = r.Paid
	}

	at := s.now()
	snapshots := make([]models.PaymentStatusYear, 0, len(contracts)*len(years))
	for i := range contracts {
		c := &contracts[i]
		for _, year := range years {
			due, err := s.policy.Due(c, year)
			if err != nil {
				return nil, fmt.Errorf("ошибка расчёта начисления по договору %d за %d: %w", c.ID, year, err)
			}
			snapshots = append(snapshots, BuildSnapshot(c.ID, year, due, paid[paidKey{c.ID, year}], c.MonthlyRent, s.thresholds, at))
		}
	}

	if len(snapshots) > 0 {
		err := db.Transaction(func(tx *gorm.DB) error {
			return tx.Omit(clause.Associations).Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "contract_id"}, {Name: "year"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"due_amount",
					"paid_amount",
					"arrears_amount",
					"arrears_months",
					"pressure_level",
					"last_update",
				}),
			}).CreateInBatches(&snapshots, 200).Error
		})
		if err != nil {
			return nil, fmt.Errorf("ошибка при сохранении срезов задолженности: %w", err)
		}
	}

	result := &RecomputeResult{
		Years:     years,
		Contracts: len(contracts),
		Snapshots: len(snapshots),
		Duration:  time.Since(start),
	}
	utils.LogInfo("Arrears recomputed: %d contracts, years %v, %d snapshots", result.Contracts, years, result.Snapshots)
	return result, nil
}

// yearExpression возвращает SQL-выражение года paid_at для текущего диалекта
func yearExpression(db *gorm.DB) string {
	if db.Dialector.Name() == "sqlite" {
		return "CAST(strftime('%Y', paid_at) AS INTEGER)"
	}
	return "CAST(EXTRACT(YEAR FROM paid_at AT TIME ZONE 'UTC') AS INTEGER)"
}

// ListSnapshots возвращает срезы с фильтром по году и уровню давления
func (s *ArrearsService) ListSnapshots(ctx context.Context, filter SnapshotFilter) ([]models.PaymentStatusYear, error) {
	q := s.db.WithContext(ctx).Model(&models.PaymentStatusYear{})
	if filter.Year > 0 {
		q = q.Where("year = ?", filter.Year)
	}
	if filter.Level != "" {
		q = q.Where("pressure_level = ?", string(filter.Level))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var snapshots []models.PaymentStatusYear
	if err := q.Order("year DESC").
		Order("arrears_amount DESC").
		Order("contract_id").
		Find(&snapshots).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении срезов задолженности: %w", err)
	}
	return snapshots, nil
}

// ExportXLSX выгружает срезы задолженности в книгу Excel
func (s *ArrearsService) ExportXLSX(ctx context.Context, w io.Writer, filter SnapshotFilter) error {
	snapshots, err := s.ListSnapshots(ctx, filter)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Arrears"
	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("ошибка создания листа: %w", err)
	}

	headers := []string{"Contract", "Year", "Due", "Paid", "Arrears", "Arrears months", "Pressure level", "Last update"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
	}

	for i, snap := range snapshots {
		row := i + 2
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), snap.ContractID)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), snap.Year)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), snap.DueAmount)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), snap.PaidAmount)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), snap.ArrearsAmount)
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), snap.ArrearsMonths)
		f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), string(snap.PressureLevel))
		f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), snap.LastUpdate.Format("02.01.2006 15:04"))
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("ошибка записи файла Excel: %w", err)
	}
	return nil
}
