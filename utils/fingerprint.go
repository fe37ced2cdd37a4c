package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// RawRecord сырые значения строки до нормализации.
// Хэшируются именно они, поэтому разный регистр или пробелы дают разные отпечатки.
type RawRecord struct {
	SourceFile  string
	Tenant      string
	Owner       string
	Site        string
	PaidAt      string
	Amount      string
	Mode        string
	Allocation  string
	ExternalRef string
}

// Fingerprint возвращает SHA-256 (hex) упорядоченной конкатенации полей записи.
// Каждое поле предваряется своей длиной в байтах, поэтому разделитель внутри значения
// не может сдвинуть границу соседних полей.
func Fingerprint(r RawRecord) string {
	parts := []string{
		r.SourceFile,
		r.Tenant,
		r.Owner,
		r.Site,
		r.PaidAt,
		r.Amount,
		r.Mode,
		r.Allocation,
		r.ExternalRef,
	}
	h := sha256.New()
	buf := make([]byte, 0, 64)
	for _, p := range parts {
		buf = strconv.AppendInt(buf[:0], int64(len(p)), 10)
		buf = append(buf, ':')
		h.Write(buf)
		h.Write([]byte(p))
		h.Write([]byte{'|'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
