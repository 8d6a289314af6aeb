package acs

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"

	"golang.org/x/text/unicode/norm"
)

// WriteCSV writes the table to path with its header row. Each row's GEO_ID
// has its summary-level prefix stripped and NAME is NFC-normalised.
func WriteCSV(path string, t Table) error {
	if len(t.Header) == 0 {
		return ErrNoData
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	w := csv.NewWriter(bw)

	if err := w.Write(t.Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	geoCol := t.GeoIDColumn()
	nameCol := -1
	for i, h := range t.Header {
		if h == "NAME" {
			nameCol = i
			break
		}
	}

	for i, row := range t.Rows {
		rec := make([]string, len(row))
		copy(rec, row)
		if geoCol < len(rec) {
			rec[geoCol] = StripGeoPrefix(rec[geoCol])
		}
		if nameCol >= 0 && nameCol < len(rec) {
			rec[nameCol] = norm.NFC.String(rec[nameCol])
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return f.Close()
}
