package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"rentledger/models"
	"rentledger/parsers"
)

const header = "Locataire;Propriétaire;Immeuble/Site;Date paiement;Montant;Mode paiement;Loyer mensuel\n"

func TestImportEndToEndThreeRows(t *testing.T) {
	env := newTestEnv(t)
	content := header +
		"Mamadou Diallo;SCI Kaloum;Immeuble A;10/01/2023;100 000;Espèces;100000\n" +
		"Mamadou Diallo;SCI Kaloum;Immeuble A;10/02/2023;100 000;Orange Money;100000\n" +
		"Mamadou Diallo;SCI Kaloum;Immeuble A;2024-01-10;50 000;Virement;100000\n"

	stats, err := env.importCSV(t, "releve.csv", content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.RowsTotal != 3 || stats.RowsInserted != 3 || stats.RowsDuplicated != 0 || stats.RowsFailed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.ArrearsStatus != models.ArrearsStatusDone {
		t.Errorf("arrears status: got %s", stats.ArrearsStatus)
	}

	for model, want := range map[interface{}]int64{
		&models.Owner{}:             1,
		&models.Site{}:              1,
		&models.Tenant{}:            1,
		&models.Contract{}:          1,
		&models.Payment{}:           3,
		&models.PaymentStatusYear{}: 2,
	} {
		if got := env.count(t, model); got != want {
			t.Errorf("%T: got %d rows want %d", model, got, want)
		}
	}

	var contract models.Contract
	if err := env.db.First(&contract).Error; err != nil {
		t.Fatalf("load contract: %v", err)
	}
	if contract.MonthlyRent != 100000 || contract.Status != models.ContractStatusActive || contract.Periodicity != models.PeriodicityMonthly {
		t.Errorf("unexpected contract: %+v", contract)
	}

	var snapshots []models.PaymentStatusYear
	if err := env.db.Order("year").Find(&snapshots).Error; err != nil {
		t.Fatalf("load snapshots: %v", err)
	}
	wantPaid := map[int]int64{2023: 200000, 2024: 50000}
	for _, s := range snapshots {
		paid, ok := wantPaid[s.Year]
		if !ok {
			t.Fatalf("unexpected snapshot year %d", s.Year)
		}
		if s.PaidAmount != paid {
			t.Errorf("%d paid: got %d want %d", s.Year, s.PaidAmount, paid)
		}
		if s.DueAmount != 1200000 {
			t.Errorf("%d due: got %d", s.Year, s.DueAmount)
		}
		if want := 1200000 - paid; s.ArrearsAmount != want {
			t.Errorf("%d arrears: got %d want %d", s.Year, s.ArrearsAmount, want)
		}
		if s.PressureLevel != models.PressureLevelPressure {
			t.Errorf("%d pressure level: got %s", s.Year, s.PressureLevel)
		}
	}

	var payment models.Payment
	if err := env.db.Where("amount = ?", 50000).First(&payment).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	if payment.Mode != models.PaymentModeVirement || payment.ImportRunID == nil || *payment.ImportRunID != stats.RunID {
		t.Errorf("unexpected payment: %+v", payment)
	}
}

func TestImportIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	content := header +
		"Diallo;SCI Kaloum;Immeuble A;10/01/2024;100000;cash;100000\n" +
		"Bah;SCI Kaloum;Immeuble A;11/01/2024;90000;cash;90000\n" +
		"Camara;SCI Ratoma;Immeuble B;12/01/2024;80000;OM;80000\n"

	first, err := env.importCSV(t, "janvier.csv", content)
	if err != nil {
		t.Fatalf("first import: %v", err)
	}
	if first.RowsInserted != 3 || first.RowsDuplicated != 0 {
		t.Fatalf("first import stats: %+v", first)
	}

	second, err := env.importCSV(t, "janvier.csv", content)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if second.RowsInserted != 0 || second.RowsDuplicated != 3 || second.RowsFailed != 0 {
		t.Fatalf("second import stats: %+v", second)
	}
	if len(second.Errors) != 0 {
		t.Errorf("duplicates must not be reported as errors: %v", second.Errors)
	}
	if got := env.count(t, &models.Payment{}); got != 3 {
		t.Errorf("payments: got %d want 3", got)
	}
	if got := env.count(t, &models.Contract{}); got != 3 {
		t.Errorf("contracts: got %d want 3", got)
	}

	// Другой файл с теми же строками даёт другие отпечатки
	third, err := env.importCSV(t, "janvier-copie.csv", content)
	if err != nil {
		t.Fatalf("third import: %v", err)
	}
	if third.RowsInserted != 3 {
		t.Errorf("different source file must not deduplicate: %+v", third)
	}
}

func TestImportPartialFailureIsolation(t *testing.T) {
	env := newTestEnv(t)
	content := header +
		"Row1;SCI Kaloum;Immeuble A;01/03/2024;100000;cash;\n" +
		"Row2;SCI Kaloum;Immeuble A;02/03/2024;100000;cash;\n" +
		"Row3;SCI Kaloum;Immeuble A;03/03/2024;0;cash;\n" +
		"Row4;SCI Kaloum;Immeuble A;04/03/2024;100000;cash;\n" +
		"Row5;SCI Kaloum;Immeuble A;05/03/2024;100000;cash;\n"

	stats, err := env.importCSV(t, "mars.csv", content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.RowsTotal != 5 || stats.RowsInserted != 4 || stats.RowsFailed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(stats.Errors) != 1 || stats.Errors[0].Row != 3 {
		t.Fatalf("unexpected errors: %+v", stats.Errors)
	}

	var names []string
	if err := env.db.Model(&models.Tenant{}).Order("full_name").Pluck("full_name", &names).Error; err != nil {
		t.Fatalf("pluck tenants: %v", err)
	}
	want := []string{"Row1", "Row2", "Row4", "Row5"}
	if len(names) != len(want) {
		t.Fatalf("tenants: got %v want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("tenants: got %v want %v", names, want)
		}
	}
	if got := env.count(t, &models.Payment{}); got != 4 {
		t.Errorf("payments: got %d want 4", got)
	}

	run, err := env.runs.Get(context.Background(), stats.RunID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != models.ImportRunStatusCompletedWithErrors || run.RowsFailed != 1 || run.FinishedAt == nil {
		t.Errorf("unexpected run: %+v", run)
	}
	var detail []RowError
	if err := json.Unmarshal([]byte(run.ErrorDetail), &detail); err != nil || len(detail) != 1 || detail[0].Row != 3 {
		t.Errorf("error detail: %q (%v)", run.ErrorDetail, err)
	}
	if len(env.notifier.imports) != 1 {
		t.Errorf("operator must be notified once, got %d", len(env.notifier.imports))
	}
}

func TestImportSkipsBlankRowsAndValidates(t *testing.T) {
	env := newTestEnv(t)
	content := header +
		"Diallo;SCI Kaloum;Immeuble A;01/03/2024;100000;cash;\n" +
		";;;;;;\n" +
		"\n" +
		";SCI Kaloum;Immeuble A;01/03/2024;100000;cash;\n" +
		"Bah;SCI Kaloum;Immeuble A;demain;100000;cash;\n"

	stats, err := env.importCSV(t, "avril.csv", content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.RowsTotal != 3 || stats.RowsInserted != 1 || stats.RowsFailed != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.Errors[0].Row != 3 || stats.Errors[1].Row != 4 {
		t.Errorf("row indexes must point at data rows: %+v", stats.Errors)
	}
	if !strings.Contains(stats.Errors[0].Message, "TenantName") {
		t.Errorf("missing tenant must be named in the message: %q", stats.Errors[0].Message)
	}
	if !strings.Contains(stats.Errors[1].Message, "demain") {
		t.Errorf("invalid date must be quoted in the message: %q", stats.Errors[1].Message)
	}
}

func TestImportCapsStoredErrors(t *testing.T) {
	env := newTestEnv(t)
	env.importer.maxErrors = 2
	content := header +
		"A;SCI;Site;01/03/2024;0;cash;\n" +
		"B;SCI;Site;01/03/2024;0;cash;\n" +
		"C;SCI;Site;01/03/2024;0;cash;\n"

	stats, err := env.importCSV(t, "zero.csv", content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.RowsFailed != 3 || len(stats.Errors) != 2 {
		t.Fatalf("want 3 failures with 2 stored errors, got %d/%d", stats.RowsFailed, len(stats.Errors))
	}
}

func TestImportStreamErrorLeavesRunProcessing(t *testing.T) {
	env := newTestEnv(t)
	readErr := errors.New("disk exploded")
	rr := &brokenReader{
		rows: [][]string{
			{"Tenant", "Owner", "Site", "Date", "Amount"},
			{"Diallo", "SCI", "Site", "2024-01-01", "1000"},
		},
		err: readErr,
	}

	stats, err := env.importer.Import(context.Background(), rr, "broken.csv")
	if !errors.Is(err, readErr) {
		t.Fatalf("expected stream error, got %v", err)
	}

	run, getErr := env.runs.Get(context.Background(), stats.RunID)
	if getErr != nil {
		t.Fatalf("get run: %v", getErr)
	}
	if run.Status != models.ImportRunStatusProcessing || run.FinishedAt != nil {
		t.Errorf("run must stay in processing: %+v", run)
	}
	if got := env.count(t, &models.Payment{}); got != 1 {
		t.Errorf("rows before the failure stay in the ledger: got %d", got)
	}
	if got := env.count(t, &models.PaymentStatusYear{}); got != 0 {
		t.Errorf("recompute must not run after a stream error: got %d snapshots", got)
	}
}

func TestImportCancelledContextIsStreamError(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rr := &brokenReader{rows: [][]string{{"Tenant"}, {"Diallo"}}, err: io.EOF}
	_, err := env.importer.Import(ctx, rr, "cancelled.csv")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestImportRecomputeFailureIsDistinct(t *testing.T) {
	env := newTestEnv(t)
	boom := errors.New("snapshot table locked")
	env.importer.dispatcher = failingDispatcher{err: boom}

	content := header + "Diallo;SCI Kaloum;Immeuble A;01/03/2024;100000;cash;\n"
	stats, err := env.importCSV(t, "mai.csv", content)

	var recomputeErr *RecomputeError
	if !errors.As(err, &recomputeErr) {
		t.Fatalf("expected *RecomputeError, got %v", err)
	}
	if !errors.Is(err, boom) || recomputeErr.RunID != stats.RunID {
		t.Errorf("unexpected recompute error: %+v", recomputeErr)
	}
	if stats.RowsInserted != 1 || stats.ArrearsStatus != models.ArrearsStatusFailed || stats.ArrearsError == "" {
		t.Errorf("unexpected stats: %+v", stats)
	}

	run, getErr := env.runs.Get(context.Background(), stats.RunID)
	if getErr != nil {
		t.Fatalf("get run: %v", getErr)
	}
	if run.Status != models.ImportRunStatusCompleted || run.ArrearsStatus != models.ArrearsStatusFailed {
		t.Errorf("run must be finalized with failed recompute: %+v", run)
	}
	if len(env.notifier.recomputes) != 1 {
		t.Errorf("recompute alert expected, got %d", len(env.notifier.recomputes))
	}
}

func TestImportEmptyFile(t *testing.T) {
	env := newTestEnv(t)
	stats, err := env.importCSV(t, "vide.csv", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.RowsTotal != 0 || stats.Errors == nil {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestImportUnsupportedFormat(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.importCSV(t, "releve.pdf", "x")
	if !errors.Is(err, ErrUnreadableFile) || !errors.Is(err, parsers.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format error, got %v", err)
	}
	if got := env.count(t, &models.ImportRun{}); got != 0 {
		t.Errorf("no run must be created for unreadable files, got %d", got)
	}
}
