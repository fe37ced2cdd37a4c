package parsers

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat возвращается для расширений файлов без читателя
var ErrUnsupportedFormat = errors.New("неподдерживаемый формат файла")

// RowReader последовательно отдаёт строки таблицы: сначала заголовок, затем данные.
// После последней строки Read возвращает io.EOF.
type RowReader interface {
	Read() ([]string, error)
	Close() error
}

// Open выбирает читателя по расширению имени файла
func Open(filename string, r io.Reader) (RowReader, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".csv", ".txt":
		return NewCSVReader(r)
	case ".xlsx", ".xlsm":
		return NewXLSXReader(r)
	case ".xml":
		return NewSpreadsheetMLReader(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// sliceReader отдаёт заранее прочитанные строки
type sliceReader struct {
	rows [][]string
	pos  int
}

func (s *sliceReader) Read() ([]string, error) {
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

func (s *sliceReader) Close() error {
	return nil
}

// NewSliceReader оборачивает уже разобранные строки в RowReader
func NewSliceReader(rows [][]string) RowReader {
	return &sliceReader{rows: rows}
}
