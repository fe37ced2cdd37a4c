package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"rentledger/models"

	"github.com/araddon/dateparse"
	"github.com/xuri/excelize/v2"
)

// DefaultCountryCode префикс для национальных номеров без кода страны
const DefaultCountryCode = "+224"

var (
	nonDigitRe = regexp.MustCompile(`\D`)
	isoDateRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	frDateRe   = regexp.MustCompile(`^(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4})(?:\s+(\d{1,2}):(\d{2})(?::(\d{2}))?)?$`)
	serialRe   = regexp.MustCompile(`^\d{5}(\.\d+)?$`)
)

// Диапазон серийных дат Excel, которые принимаются как даты (1954–2119)
const (
	minExcelSerial = 20000
	maxExcelSerial = 80000
)

var isoLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// modeRules порядок важен: первое совпадение выигрывает
var modeRules = []struct {
	needles []string
	mode    models.PaymentMode
}{
	{[]string{"esp", "cash"}, models.PaymentModeCash},
	{[]string{"marchand"}, models.PaymentModeMarchand},
	{[]string{"orange", "om"}, models.PaymentModeOrangeMoney},
	{[]string{"vir", "banque"}, models.PaymentModeVirement},
}

// NormAmount оставляет только цифры и разбирает сумму в минимальных единицах валюты.
// Неразборчивое значение даёт 0, такую строку отклонит валидация.
func NormAmount(s string) int64 {
	digits := nonDigitRe.ReplaceAllString(s, "")
	if digits == "" {
		return 0
	}
	n, err := strconv.ParseUint(digits, 10, 63)
	if err != nil {
		return 0
	}
	return int64(n)
}

// NormPhone приводит номер к международному виду.
// Пустой ввод даёт nil.
func NormPhone(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	plus := strings.HasPrefix(s, "+")
	digits := nonDigitRe.ReplaceAllString(s, "")
	if digits == "" {
		return nil
	}

	var phone string
	switch {
	case plus:
		phone = "+" + digits
	case strings.HasPrefix(digits, "00") && len(digits) > 2:
		phone = "+" + digits[2:]
	case len(digits) == 8 || len(digits) == 9:
		phone = DefaultCountryCode + digits
	default:
		phone = digits
	}
	return &phone
}

// NormMode сопоставляет метку способа оплаты с каноническим значением
func NormMode(s string) models.PaymentMode {
	lower := strings.ToLower(strings.TrimSpace(s))
	if lower == "" {
		return models.PaymentModeOther
	}
	for _, rule := range modeRules {
		for _, needle := range rule.needles {
			if strings.Contains(lower, needle) {
				return rule.mode
			}
		}
	}
	return models.PaymentModeOther
}

// NormDate разбирает дату платежа: сначала ISO, затем французский формат DD/MM/YYYY
// (разделители / . -, необязательное время HH:MM[:SS]),
// затем серийный номер Excel, затем общий разбор. Нулевое время означает некорректную дату.
func NormDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}

	if isoDateRe.MatchString(s) {
		for _, layout := range isoLayouts {
			if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return t
			}
		}
	}

	if m := frDateRe.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		iso := fmt.Sprintf("%s-%02d-%02d", m[3], month, day)
		layout := "2006-01-02"
		if m[4] != "" {
			hour, _ := strconv.Atoi(m[4])
			iso += fmt.Sprintf(" %02d:%s", hour, m[5])
			layout = "2006-01-02 15:04"
			if m[6] != "" {
				iso += ":" + m[6]
				layout += ":05"
			}
		}
		t, err := time.ParseInLocation(layout, iso, time.UTC)
		if err != nil {
			return time.Time{}
		}
		return t
	}

	if serialRe.MatchString(s) {
		serial, err := strconv.ParseFloat(s, 64)
		if err == nil && serial >= minExcelSerial && serial <= maxExcelSerial {
			if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
				return t.UTC().Round(time.Second)
			}
		}
		return time.Time{}
	}

	// Неоднозначные числовые даты читаются как день, затем месяц
	t, err := dateparse.ParseIn(s, time.UTC, dateparse.PreferMonthFirst(false))
	if err != nil {
		return time.Time{}
	}
	return t
}
