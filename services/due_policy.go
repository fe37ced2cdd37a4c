package services

import (
	"fmt"
	"math"
	"strings"

	"rentledger/models"

	"github.com/Knetic/govaluate"
)

// DuePolicy рассчитывает сумму к оплате по договору за календарный год
type DuePolicy interface {
	Due(contract *models.Contract, year int) (int64, error)
}

// DuePolicyFunc позволяет использовать функцию как DuePolicy
type DuePolicyFunc func(contract *models.Contract, year int) (int64, error)

// Due вызывает f(contract, year)
func (f DuePolicyFunc) Due(contract *models.Contract, year int) (int64, error) {
	return f(contract, year)
}

// AnnualFlatDue начисляет двенадцать месячных платежей за год.
// Даты начала и окончания договора и периодичность не учитываются.
var AnnualFlatDue = DuePolicyFunc(func(contract *models.Contract, _ int) (int64, error) {
	return contract.MonthlyRent * 12, nil
})

// FormulaDuePolicy вычисляет начисление по выражению govaluate.
// Доступные переменные: monthly_rent, year, periodicity.
type FormulaDuePolicy struct {
	formula string
	expr    *govaluate.EvaluableExpression
}

// NewFormulaDuePolicy разбирает выражение начисления
func NewFormulaDuePolicy(formula string) (*FormulaDuePolicy, error) {
	expr, err := govaluate.NewEvaluableExpression(formula)
	if err != nil {
		return nil, fmt.Errorf("ошибка в формуле начисления '%s': %w", formula, err)
	}
	return &FormulaDuePolicy{formula: formula, expr: expr}, nil
}

// Due вычисляет выражение для договора и года
func (p *FormulaDuePolicy) Due(contract *models.Contract, year int) (int64, error) {
	parameters := map[string]interface{}{
		"monthly_rent": float64(contract.MonthlyRent),
		"year":         float64(year),
		"periodicity":  string(contract.Periodicity),
	}
	result, err := p.expr.Evaluate(parameters)
	if err != nil {
		return 0, fmt.Errorf("не удалось вычислить формулу '%s': %w", p.formula, err)
	}
	value, ok := result.(float64)
	if !ok {
		return 0, fmt.Errorf("формула '%s' вернула нечисловое значение %v", p.formula, result)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0, fmt.Errorf("формула '%s' вернула недопустимое значение %v", p.formula, value)
	}
	return int64(math.Round(value)), nil
}

// NewDuePolicy возвращает политику по формуле или AnnualFlatDue для пустой формулы
func NewDuePolicy(formula string) (DuePolicy, error) {
	if strings.TrimSpace(formula) == "" {
		return AnnualFlatDue, nil
	}
	policy, err := NewFormulaDuePolicy(formula)
	if err != nil {
		return nil, err
	}
	return policy, nil
}
