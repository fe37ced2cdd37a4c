package services

import (
	"strings"

	"rentledger/utils"
)

// Field логическое поле строки выписки
type Field int

const (
	FieldTenant Field = iota
	FieldPhone
	FieldOwner
	FieldSite
	FieldContractRef
	FieldPaidAt
	FieldAmount
	FieldMode
	FieldAllocation
	FieldChannel
	FieldComment
	FieldExternalRef
	FieldMonthlyRent
)

// columnAliases допустимые заголовки в порядке приоритета, регистр учитывается
var columnAliases = map[Field][]string{
	FieldTenant:      {"Nom locataire", "Locataire", "Tenant"},
	FieldPhone:       {"Téléphone", "Phone"},
	FieldOwner:       {"Propriétaire", "Owner"},
	FieldSite:        {"Immeuble/Site", "Site"},
	FieldContractRef: {"Contrat", "Ref contrat"},
	FieldPaidAt:      {"Date paiement", "Date"},
	FieldAmount:      {"Montant", "Amount"},
	FieldMode:        {"Mode paiement", "Mode"},
	FieldAllocation:  {"Affectation", "Allocation"},
	FieldChannel:     {"Canal", "Channel"},
	FieldComment:     {"Commentaire", "Note"},
	FieldExternalRef: {"Ref externe", "Transaction"},
	FieldMonthlyRent: {"Loyer mensuel", "Loyer", "Monthly rent"},
}

// ColumnMap сопоставляет поле с индексом колонки в строке
type ColumnMap map[Field]int

// MapColumns разбирает строку заголовка. Для каждого поля выигрывает первый
// найденный по приоритету псевдоним; неизвестные колонки игнорируются.
func MapColumns(header []string) ColumnMap {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, seen := positions[name]; !seen {
			positions[name] = i
		}
	}

	m := make(ColumnMap)
	for field, aliases := range columnAliases {
		for _, alias := range aliases {
			if idx, ok := positions[alias]; ok {
				m[field] = idx
				break
			}
		}
	}
	return m
}

// Has сообщает, присутствует ли колонка поля в заголовке
func (m ColumnMap) Has(f Field) bool {
	_, ok := m[f]
	return ok
}

// Value возвращает сырое значение поля; отсутствующая колонка даёт пустую строку
func (m ColumnMap) Value(row []string, f Field) string {
	idx, ok := m[f]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// RawRow сырые значения одной строки выписки, до нормализации
type RawRow struct {
	SourceFile  string
	Tenant      string
	Phone       string
	Owner       string
	Site        string
	ContractRef string
	PaidAt      string
	Amount      string
	Mode        string
	Allocation  string
	Channel     string
	Comment     string
	ExternalRef string
	MonthlyRent string
}

// Extract собирает RawRow из строки файла
func (m ColumnMap) Extract(row []string, sourceFile string) RawRow {
	return RawRow{
		SourceFile:  sourceFile,
		Tenant:      m.Value(row, FieldTenant),
		Phone:       m.Value(row, FieldPhone),
		Owner:       m.Value(row, FieldOwner),
		Site:        m.Value(row, FieldSite),
		ContractRef: m.Value(row, FieldContractRef),
		PaidAt:      m.Value(row, FieldPaidAt),
		Amount:      m.Value(row, FieldAmount),
		Mode:        m.Value(row, FieldMode),
		Allocation:  m.Value(row, FieldAllocation),
		Channel:     m.Value(row, FieldChannel),
		Comment:     m.Value(row, FieldComment),
		ExternalRef: m.Value(row, FieldExternalRef),
		MonthlyRent: m.Value(row, FieldMonthlyRent),
	}
}

// Fingerprint вычисляет ключ дедупликации по сырым значениям
func (r RawRow) Fingerprint() string {
	return utils.Fingerprint(utils.RawRecord{
		SourceFile:  r.SourceFile,
		Tenant:      r.Tenant,
		Owner:       r.Owner,
		Site:        r.Site,
		PaidAt:      r.PaidAt,
		Amount:      r.Amount,
		Mode:        r.Mode,
		Allocation:  r.Allocation,
		ExternalRef: r.ExternalRef,
	})
}

// Normalize приводит сырые значения к каноническим типам
func (r RawRow) Normalize() PaymentRow {
	row := PaymentRow{
		TenantName:  strings.TrimSpace(r.Tenant),
		Phone:       utils.NormPhone(r.Phone),
		OwnerName:   strings.TrimSpace(r.Owner),
		SiteName:    strings.TrimSpace(r.Site),
		ContractRef: strings.TrimSpace(r.ContractRef),
		PaidAt:      utils.NormDate(r.PaidAt),
		Amount:      utils.NormAmount(r.Amount),
		Mode:        utils.NormMode(r.Mode),
		Allocation:  strings.TrimSpace(r.Allocation),
		Channel:     strings.TrimSpace(r.Channel),
		Comment:     strings.TrimSpace(r.Comment),
		MonthlyRent: utils.NormAmount(r.MonthlyRent),
		RawHash:     r.Fingerprint(),
		SourceFile:  r.SourceFile,
		rawPaidAt:   strings.TrimSpace(r.PaidAt),
	}
	if ext := strings.TrimSpace(r.ExternalRef); ext != "" {
		row.ExternalRef = &ext
	}
	return row
}

// isBlankRow сообщает, что все ячейки строки пусты
func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
