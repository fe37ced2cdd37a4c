package parsers

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// csvReader читает CSV с автоматически определённым разделителем
type csvReader struct {
	r *csv.Reader
}

// NewCSVReader создает читателя CSV. Разделитель (';', ',' или табуляция)
// определяется по строке заголовка, BOM UTF-8 отбрасывается.
func NewCSVReader(r io.Reader) (RowReader, error) {
	br := bufio.NewReaderSize(r, 64*1024)

	if bom, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(bom, utf8BOM) {
		if _, err := br.Discard(len(utf8BOM)); err != nil {
			return nil, err
		}
	}

	head, err := br.Peek(4096)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, err
	}

	cr := csv.NewReader(br)
	cr.Comma = sniffDelimiter(head)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	return &csvReader{r: cr}, nil
}

// sniffDelimiter выбирает самый частый разделитель в первой строке.
// При равенстве побеждает ';', типичный для французских выгрузок.
func sniffDelimiter(head []byte) rune {
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		head = head[:i]
	}
	best, bestCount := ',', 0
	for _, d := range []rune{';', ',', '\t'} {
		if n := bytes.Count(head, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func (c *csvReader) Read() ([]string, error) {
	return c.r.Read()
}

func (c *csvReader) Close() error {
	return nil
}
