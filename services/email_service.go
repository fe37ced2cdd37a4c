package services

import (
	"fmt"
	"html"
	"strings"
	"time"

	"rentledger/config"
	"rentledger/models"

	"gopkg.in/gomail.v2"
)

// maxReportedErrors ограничивает число ошибок строк в письме оператору
const maxReportedErrors = 50

// Notifier уведомляет оператора об итогах импорта и сбоях пересчёта
type Notifier interface {
	NotifyImportFinished(run *models.ImportRun, rowErrors []RowError) error
	NotifyRecomputeFailed(runID uint, err error) error
}

// EmailService предоставляет методы для отправки email
type EmailService struct {
	dialer *gomail.Dialer
	from   string
	to     string
}

// NewEmailService создает новый экземпляр EmailService.
// Без SMTP_HOST или адресата сервис ничего не отправляет.
func NewEmailService(cfg *config.Config) *EmailService {
	s := &EmailService{
		from: cfg.SMTP.From,
		to:   cfg.SMTP.To,
	}
	if cfg.SMTP.Host != "" {
		s.dialer = gomail.NewDialer(
			cfg.SMTP.Host,
			cfg.SMTP.Port,
			cfg.SMTP.Username,
			cfg.SMTP.Password,
		)
	}
	return s
}

// Enabled сообщает, настроена ли отправка
func (s *EmailService) Enabled() bool {
	return s.dialer != nil && s.to != ""
}

// SendEmail отправляет email
func (s *EmailService) SendEmail(to, subject, body string) error {
	if s.dialer == nil {
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("ошибка отправки email: %w", err)
	}

	return nil
}

// NotifyImportFinished отправляет отчёт об импорте с ошибками строк
func (s *EmailService) NotifyImportFinished(run *models.ImportRun, rowErrors []RowError) error {
	if !s.Enabled() {
		return nil
	}
	subject := fmt.Sprintf("Импорт %s: %s", run.SourceFile, run.Status)
	return s.SendEmail(s.to, subject, importReportBody(run, rowErrors))
}

// NotifyRecomputeFailed отправляет предупреждение о сбое пересчёта задолженности
func (s *EmailService) NotifyRecomputeFailed(runID uint, err error) error {
	if !s.Enabled() {
		return nil
	}
	return s.SendEmail(s.to, "Сбой пересчёта задолженности", recomputeAlertBody(runID, err))
}

func importReportBody(run *models.ImportRun, rowErrors []RowError) string {
	var b strings.Builder
	fmt.Fprintf(&b, `
		<h2>Отчёт об импорте</h2>
		<p>Файл: %s</p>
		<p>Статус: %s</p>
		<p>Строк всего: %d, добавлено: %d, дубликатов: %d, с ошибками: %d</p>
		<p>Дата: %s</p>
	`,
		html.EscapeString(run.SourceFile),
		run.Status,
		run.RowsTotal,
		run.RowsInserted,
		run.RowsDuplicated,
		run.RowsFailed,
		time.Now().Format("02.01.2006 15:04:05"),
	)

	if len(rowErrors) > 0 {
		b.WriteString("<ul>")
		for i, e := range rowErrors {
			if i == maxReportedErrors {
				fmt.Fprintf(&b, "<li>… и ещё %d</li>", len(rowErrors)-maxReportedErrors)
				break
			}
			fmt.Fprintf(&b, "<li>Строка %d: %s</li>", e.Row, html.EscapeString(e.Message))
		}
		b.WriteString("</ul>")
	}
	return b.String()
}

func recomputeAlertBody(runID uint, err error) string {
	origin := "ручной или плановый запуск"
	if runID != 0 {
		origin = fmt.Sprintf("импорт #%d", runID)
	}
	return fmt.Sprintf(`
		<h2>Пересчёт задолженности не выполнен</h2>
		<p>Источник: %s</p>
		<p>Ошибка: %s</p>
		<p>Реестр платежей не затронут, срезы задолженности устарели до повторного пересчёта.</p>
		<p>Дата: %s</p>
	`, origin, html.EscapeString(err.Error()), time.Now().Format("02.01.2006 15:04:05"))
}
