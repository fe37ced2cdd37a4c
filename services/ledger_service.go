package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rentledger/models"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentRow нормализованная строка выписки, готовая к записи в реестр
type PaymentRow struct {
	TenantName  string `validate:"required"`
	Phone       *string
	OwnerName   string `validate:"required"`
	SiteName    string `validate:"required"`
	ContractRef string
	PaidAt      time.Time `validate:"required"`
	Amount      int64     `validate:"gt=0"`
	Mode        models.PaymentMode
	Allocation  string
	Channel     string
	Comment     string
	ExternalRef *string
	MonthlyRent int64
	RawHash     string `validate:"required"`
	SourceFile  string
	ImportRunID *uint

	rawPaidAt string
}

// LedgerOutcome результат записи строки
type LedgerOutcome int

const (
	OutcomeInserted LedgerOutcome = iota + 1
	OutcomeDuplicate
)

// ErrInvalidRow оборачивает ошибки валидации строки
var ErrInvalidRow = errors.New("некорректная строка")

// LedgerService записывает платежи в реестр: одна запись на уникальный отпечаток
type LedgerService struct {
	db        *gorm.DB
	validator *validator.Validate
	resolver  *EntityResolver
}

// NewLedgerService создает новый экземпляр LedgerService
func NewLedgerService(db *gorm.DB, resolver *EntityResolver) *LedgerService {
	return &LedgerService{
		db:        db,
		validator: validator.New(),
		resolver:  resolver,
	}
}

// Validate проверяет обязательные поля и сумму строки
func (s *LedgerService) Validate(row *PaymentRow) error {
	err := s.validator.Struct(row)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	var errorMessages []string
	for _, e := range validationErrors {
		switch {
		case e.Field() == "PaidAt" && row.rawPaidAt != "":
			errorMessages = append(errorMessages, "поле PaidAt содержит некорректную дату \""+row.rawPaidAt+"\"")
		case e.Tag() == "required":
			errorMessages = append(errorMessages, "поле "+e.Field()+" обязательно")
		case e.Tag() == "gt":
			errorMessages = append(errorMessages, "поле "+e.Field()+" должно быть больше 0")
		default:
			errorMessages = append(errorMessages, "поле "+e.Field()+" некорректно")
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidRow, strings.Join(errorMessages, "; "))
}

// IsDuplicate проверяет, есть ли в реестре платёж с таким отпечатком
func (s *LedgerService) IsDuplicate(ctx context.Context, rawHash string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("raw_hash = ?", rawHash).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("ошибка при проверке отпечатка: %w", err)
	}
	return count > 0, nil
}

// Record валидирует строку, отбрасывает дубликат или разрешает сущности и вставляет платёж.
// Строка обрабатывается в своей транзакции: сбой откатывает и созданные для неё сущности.
func (s *LedgerService) Record(ctx context.Context, row PaymentRow) (LedgerOutcome, error) {
	if err := s.Validate(&row); err != nil {
		return 0, err
	}

	duplicate, err := s.IsDuplicate(ctx, row.RawHash)
	if err != nil {
		return 0, err
	}
	if duplicate {
		return OutcomeDuplicate, nil
	}

	outcome := OutcomeInserted
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res, err := s.resolver.Resolve(tx, ResolveInput{
			OwnerName:   row.OwnerName,
			SiteName:    row.SiteName,
			TenantName:  row.TenantName,
			Phone:       row.Phone,
			ContractRef: row.ContractRef,
			MonthlyRent: row.MonthlyRent,
		})
		if err != nil {
			return err
		}

		payment := models.Payment{
			ExternalRef: row.ExternalRef,
			TenantID:    res.TenantID,
			OwnerID:     res.OwnerID,
			SiteID:      res.SiteID,
			ContractID:  res.ContractID,
			PaidAt:      row.PaidAt,
			Amount:      row.Amount,
			Mode:        row.Mode,
			Allocation:  row.Allocation,
			Channel:     row.Channel,
			Comment:     row.Comment,
			RawHash:     row.RawHash,
			SourceFile:  row.SourceFile,
			ImportRunID: row.ImportRunID,
		}
		// Параллельный импорт мог вставить тот же отпечаток после предварительной проверки
		result := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "raw_hash"}},
			DoNothing: true,
		}).Create(&payment)
		if result.Error != nil {
			return fmt.Errorf("ошибка при сохранении платежа: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			outcome = OutcomeDuplicate
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return outcome, nil
}
