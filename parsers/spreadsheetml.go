package parsers

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/beevik/etree"
)

// NewSpreadsheetMLReader читает книги формата Excel 2003 XML (SpreadsheetML).
// Берётся первый лист; атрибут ss:Index у ячеек учитывается, пропущенные ячейки пусты.
func NewSpreadsheetMLReader(r io.Reader) (RowReader, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("ошибка разбора XML: %w", err)
	}

	workbook := doc.Root()
	if workbook == nil || workbook.Tag != "Workbook" {
		return nil, errors.New("документ не является книгой SpreadsheetML")
	}

	worksheet := firstChild(workbook, "Worksheet")
	if worksheet == nil {
		return nil, errors.New("книга SpreadsheetML не содержит листов")
	}
	table := firstChild(worksheet, "Table")
	if table == nil {
		return NewSliceReader(nil), nil
	}

	var rows [][]string
	for _, rowEl := range table.ChildElements() {
		if rowEl.Tag != "Row" {
			continue
		}
		row, err := readSpreadsheetMLRow(rowEl)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return NewSliceReader(rows), nil
}

func readSpreadsheetMLRow(rowEl *etree.Element) ([]string, error) {
	var row []string
	for _, cell := range rowEl.ChildElements() {
		if cell.Tag != "Cell" {
			continue
		}
		if idx := localAttr(cell, "Index"); idx != "" {
			n, err := strconv.Atoi(idx)
			if err != nil || n < len(row)+1 {
				return nil, fmt.Errorf("некорректный ss:Index %q", idx)
			}
			for len(row) < n-1 {
				row = append(row, "")
			}
		}
		value := ""
		if data := firstChild(cell, "Data"); data != nil {
			value = data.Text()
		}
		row = append(row, value)
	}
	return row, nil
}

func firstChild(el *etree.Element, tag string) *etree.Element {
	for _, c := range el.ChildElements() {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// localAttr ищет атрибут по локальному имени независимо от префикса пространства имён
func localAttr(el *etree.Element, key string) string {
	for _, a := range el.Attr {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}
