package parsers

import (
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// xlsxReader потоково читает первый лист книги XLSX
type xlsxReader struct {
	file *excelize.File
	rows *excelize.Rows
}

// NewXLSXReader открывает книгу и начинает чтение первого листа.
// Значения отдаются без числового форматирования: даты приходят серийными номерами Excel.
func NewXLSXReader(r io.Reader) (RowReader, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия книги XLSX: %w", err)
	}

	sheet := f.GetSheetName(0)
	if sheet == "" {
		f.Close()
		return nil, errors.New("книга XLSX не содержит листов")
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ошибка чтения листа %q: %w", sheet, err)
	}
	return &xlsxReader{file: f, rows: rows}, nil
}

func (x *xlsxReader) Read() ([]string, error) {
	if !x.rows.Next() {
		if err := x.rows.Error(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return x.rows.Columns(excelize.Options{RawCellValue: true})
}

func (x *xlsxReader) Close() error {
	rowsErr := x.rows.Close()
	fileErr := x.file.Close()
	if rowsErr != nil {
		return rowsErr
	}
	return fileErr
}
