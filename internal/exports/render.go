package exports

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"leadcrm_backend/platform/apperr"
	"leadcrm_backend/platform/sanitize"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"
)

// Formats accepted by Render.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

const filenameStamp = "20060102_150405"

// ParseFormat normalises a format query value. Empty means CSV.
func ParseFormat(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX, "excel":
		return FormatXLSX, nil
	default:
		return "", apperr.Validation("format must be csv or xlsx")
	}
}

// FileName is <report>_<YYYYMMDD_HHMMSS>.<format>.
func FileName(report, format string, at time.Time) string {
	return fmt.Sprintf("%s_%s.%s", report, at.Format(filenameStamp), format)
}

// ContentType returns the MIME type for format.
func ContentType(format string) string {
	if format == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// Render encodes t in format.
func Render(t Table, format string) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case FormatXLSX:
		err = WriteXLSX(&buf, t)
	default:
		err = WriteCSV(&buf, t)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteCSV writes t as CSV. Cells that a spreadsheet would evaluate as a
// formula are neutralised.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Headers); err != nil {
		return eris.Wrap(err, "write csv header")
	}
	row := make([]string, len(t.Headers))
	for _, r := range t.Rows {
		row = row[:0]
		for _, cell := range r {
			row = append(row, sanitize.CSVCell(cell))
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "flush csv")
}

// WriteXLSX writes t as a single-sheet workbook with a bold header row.
func WriteXLSX(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := sheetName(t.Name)
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return eris.Wrap(err, "create sheet")
	}
	f.SetActiveSheet(idx)
	if sheet != "Sheet1" {
		_ = f.DeleteSheet("Sheet1")
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return eris.Wrap(err, "create header style")
	}

	header := make([]any, len(t.Headers))
	for i, h := range t.Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return eris.Wrap(err, "write header row")
	}
	if len(t.Headers) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(t.Headers), 1)
		if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
			return eris.Wrap(err, "style header row")
		}
		lastCol, _ := excelize.ColumnNumberToName(len(t.Headers))
		_ = f.SetColWidth(sheet, "A", lastCol, 20)
	}

	for i, r := range t.Rows {
		cells := make([]any, len(r))
		for j, v := range r {
			cells[j] = v
		}
		start, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, start, &cells); err != nil {
			return eris.Wrapf(err, "write row %d", i+2)
		}
	}

	_, err = f.WriteTo(w)
	return eris.Wrap(err, "write workbook")
}

// sheetName trims to the 31 character limit Excel imposes.
func sheetName(name string) string {
	if name == "" {
		return "Sheet1"
	}
	if len(name) > 31 {
		return name[:31]
	}
	return name
}
