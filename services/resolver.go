package services

import (
	"errors"
	"fmt"
	"time"

	"rentledger/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ResolveInput нормализованные имена и ссылки, по которым ищутся сущности
type ResolveInput struct {
	OwnerName   string
	SiteName    string
	TenantName  string
	Phone       *string
	ContractRef string
	MonthlyRent int64
}

// Resolution идентификаторы найденных или созданных сущностей
type Resolution struct {
	OwnerID    uint
	SiteID     uint
	TenantID   uint
	ContractID uint
}

// EntityResolver находит или создаёт собственника, объект, арендатора и договор.
// Каждый шаг это upsert по уникальному ограничению с последующим чтением по ключу,
// поэтому параллельные импорты сходятся к одним и тем же записям.
type EntityResolver struct {
	now func() time.Time
}

// NewEntityResolver создает новый экземпляр EntityResolver
func NewEntityResolver() *EntityResolver {
	return &EntityResolver{now: time.Now}
}

// Resolve выполняет четыре шага разрешения в рамках переданной транзакции
func (r *EntityResolver) Resolve(tx *gorm.DB, in ResolveInput) (*Resolution, error) {
	owner, err := r.ResolveOwner(tx, in.OwnerName)
	if err != nil {
		return nil, err
	}
	site, err := r.ResolveSite(tx, in.SiteName, owner.ID)
	if err != nil {
		return nil, err
	}
	tenant, err := r.ResolveTenant(tx, in.TenantName, site.ID, in.Phone)
	if err != nil {
		return nil, err
	}
	contract, err := r.ResolveContract(tx, tenant.ID, site.ID, owner.ID, in.ContractRef, in.MonthlyRent)
	if err != nil {
		return nil, err
	}
	return &Resolution{
		OwnerID:    owner.ID,
		SiteID:     site.ID,
		TenantID:   tenant.ID,
		ContractID: contract.ID,
	}, nil
}

// ResolveOwner находит или создаёт собственника по имени
func (r *EntityResolver) ResolveOwner(tx *gorm.DB, name string) (*models.Owner, error) {
	owner := models.Owner{Name: name}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"name"}),
	}).Create(&owner).Error; err != nil {
		return nil, fmt.Errorf("ошибка при сохранении собственника %q: %w", name, err)
	}

	var stored models.Owner
	if err := tx.Where("name = ?", name).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении собственника %q: %w", name, err)
	}
	return &stored, nil
}

// ResolveSite находит или создаёт объект по имени.
// При конфликте владелец перезаписывается входящим значением: побеждает последний импорт.
func (r *EntityResolver) ResolveSite(tx *gorm.DB, name string, ownerID uint) (*models.Site, error) {
	site := models.Site{Name: name, OwnerID: ownerID}
	if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"owner_id", "updated_at"}),
	}).Create(&site).Error; err != nil {
		return nil, fmt.Errorf("ошибка при сохранении объекта %q: %w", name, err)
	}

	var stored models.Site
	if err := tx.Where("name = ?", name).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении объекта %q: %w", name, err)
	}
	return &stored, nil
}

// ResolveTenant находит или создаёт арендатора по паре (ФИО, объект).
// Известный телефон не затирается пустым, арендатор снова становится активным.
func (r *EntityResolver) ResolveTenant(tx *gorm.DB, fullName string, siteID uint, phone *string) (*models.Tenant, error) {
	tenant := models.Tenant{
		FullName:      fullName,
		CurrentSiteID: siteID,
		Phone:         phone,
		Active:        true,
	}
	if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "full_name"}, {Name: "current_site_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"phone":      gorm.Expr("COALESCE(excluded.phone, tenants.phone)"),
			"active":     true,
			"updated_at": r.now(),
		}),
	}).Create(&tenant).Error; err != nil {
		return nil, fmt.Errorf("ошибка при сохранении арендатора %q: %w", fullName, err)
	}

	var stored models.Tenant
	if err := tx.Where("full_name = ? AND current_site_id = ?", fullName, siteID).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении арендатора %q: %w", fullName, err)
	}
	return &stored, nil
}

// ResolveContract ищет договор по ссылке, затем самый свежий договор пары
// арендатор+объект, иначе создаёт новый активный помесячный договор.
// Неизвестная ссылка не меняет существующие договоры пары; она сохраняется
// только на договоре, созданном для пары без договоров.
func (r *EntityResolver) ResolveContract(tx *gorm.DB, tenantID, siteID, ownerID uint, ref string, monthlyRent int64) (*models.Contract, error) {
	if ref != "" {
		var byRef models.Contract
		err := tx.Where("ref = ?", ref).First(&byRef).Error
		if err == nil {
			return r.adoptRent(tx, &byRef, monthlyRent)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("ошибка при поиске договора %q: %w", ref, err)
		}
	}

	latest, err := r.latestContract(tx, tenantID, siteID)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		return r.adoptRent(tx, latest, monthlyRent)
	}

	return r.createContract(tx, tenantID, siteID, ownerID, ref, monthlyRent)
}

// latestContract возвращает договор пары с самой поздней датой начала (NULL в конце)
func (r *EntityResolver) latestContract(tx *gorm.DB, tenantID, siteID uint) (*models.Contract, error) {
	var contracts []models.Contract
	if err := tx.Where("tenant_id = ? AND site_id = ?", tenantID, siteID).
		Order("start_date IS NULL").
		Order("start_date DESC").
		Order("id DESC").
		Limit(1).
		Find(&contracts).Error; err != nil {
		return nil, fmt.Errorf("ошибка при поиске договора арендатора: %w", err)
	}
	if len(contracts) == 0 {
		return nil, nil
	}
	return &contracts[0], nil
}

func (r *EntityResolver) createContract(tx *gorm.DB, tenantID, siteID, ownerID uint, ref string, monthlyRent int64) (*models.Contract, error) {
	now := r.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	contract := models.Contract{
		TenantID:    tenantID,
		SiteID:      siteID,
		OwnerID:     ownerID,
		MonthlyRent: monthlyRent,
		Periodicity: models.PeriodicityMonthly,
		Status:      models.ContractStatusActive,
		StartDate:   &today,
	}
	if ref == "" {
		if err := tx.Omit(clause.Associations).Create(&contract).Error; err != nil {
			return nil, fmt.Errorf("ошибка при создании договора: %w", err)
		}
		return &contract, nil
	}

	contract.Ref = &ref
	if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ref"}},
		DoNothing: true,
	}).Create(&contract).Error; err != nil {
		return nil, fmt.Errorf("ошибка при создании договора %q: %w", ref, err)
	}

	var stored models.Contract
	if err := tx.Where("ref = ?", ref).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении договора %q: %w", ref, err)
	}
	return &stored, nil
}

// adoptRent заполняет нулевую арендную плату значением из выписки
func (r *EntityResolver) adoptRent(tx *gorm.DB, contract *models.Contract, monthlyRent int64) (*models.Contract, error) {
	if contract.MonthlyRent != 0 || monthlyRent <= 0 {
		return contract, nil
	}
	if err := tx.Model(contract).Update("monthly_rent", monthlyRent).Error; err != nil {
		return nil, fmt.Errorf("ошибка при обновлении арендной платы договора: %w", err)
	}
	contract.MonthlyRent = monthlyRent
	return contract, nil
}
