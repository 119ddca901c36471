package report

import (
	"bytes"
	"encoding/csv"
)

// EncodeCSV serialises an export as UTF-8, comma-delimited CSV with a header
// row.
func EncodeCSV(e *Export) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(e.Columns); err != nil {
		return nil, err
	}
	for _, row := range e.Rows {
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
