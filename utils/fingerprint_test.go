package utils

import (
	"testing"
)

func baseRecord() RawRecord {
	return RawRecord{
		SourceFile:  "releve_mars.csv",
		Tenant:      "Mamadou Diallo",
		Owner:       "SCI Kaloum",
		Site:        "Immeuble A",
		PaidAt:      "05/03/2024",
		Amount:      "100 000",
		Mode:        "Orange Money",
		Allocation:  "Loyer mars",
		ExternalRef: "OM-123",
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint(baseRecord())
	b := Fingerprint(baseRecord())
	if a != b {
		t.Fatalf("fingerprint not stable: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

func TestFingerprintSensitivity(t *testing.T) {
	base := Fingerprint(baseRecord())

	mutations := map[string]func(r *RawRecord){
		"amount":       func(r *RawRecord) { r.Amount = "100 001" },
		"source file":  func(r *RawRecord) { r.SourceFile = "releve_avril.csv" },
		"tenant case":  func(r *RawRecord) { r.Tenant = "MAMADOU DIALLO" },
		"site spacing": func(r *RawRecord) { r.Site = "Immeuble  A" },
		"external ref": func(r *RawRecord) { r.ExternalRef = "" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			r := baseRecord()
			mutate(&r)
			if Fingerprint(r) == base {
				t.Errorf("changing %s must change the fingerprint", name)
			}
		})
	}
}

func TestFingerprintFieldBoundaries(t *testing.T) {
	a := baseRecord()
	a.Allocation, a.ExternalRef = "ab", ""
	b := baseRecord()
	b.Allocation, b.ExternalRef = "a", "b"
	if Fingerprint(a) == Fingerprint(b) {
		t.Error("fields must be separated in the hashed input")
	}
}

func TestFingerprintSeparatorInsideValue(t *testing.T) {
	tests := []struct {
		name string
		a, b func(r *RawRecord)
	}{
		{
			name: "separator moved between allocation and ref",
			a:    func(r *RawRecord) { r.Allocation, r.ExternalRef = "a|", "" },
			b:    func(r *RawRecord) { r.Allocation, r.ExternalRef = "a", "|" },
		},
		{
			name: "separator moved between tenant and owner",
			a:    func(r *RawRecord) { r.Tenant, r.Owner = "Diallo|SCI", "Kaloum" },
			b:    func(r *RawRecord) { r.Tenant, r.Owner = "Diallo", "SCI|Kaloum" },
		},
		{
			name: "length-like prefix inside value",
			a:    func(r *RawRecord) { r.Mode, r.Allocation = "2:ab", "" },
			b:    func(r *RawRecord) { r.Mode, r.Allocation = "", "ab|0:" },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ra, rb := baseRecord(), baseRecord()
			tt.a(&ra)
			tt.b(&rb)
			if got, other := Fingerprint(ra), Fingerprint(rb); got == other {
				t.Errorf("Fingerprint collided for distinct records: %s", got)
			}
		})
	}
}
