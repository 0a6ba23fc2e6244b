// Package stations provides the station directory, free-text station phrase
// extraction, and fuzzy phrase-to-station resolution.
package stations

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

//go:embed data/stations.csv
var embeddedCSV string

// Station is one entry in the national station directory.
type Station struct {
	// Code is the three-letter CRS code (e.g., "LBG").
	Code string

	// Name is the full station name (e.g., "London Bridge").
	Name string
}

// Directory holds the known stations. It is read-only after construction and
// therefore safe for concurrent use.
type Directory struct {
	stations []Station
}

// NewDirectory returns a Directory backed by the embedded station list.
func NewDirectory() (*Directory, error) {
	return parseDirectory(strings.NewReader(embeddedCSV))
}

// NewDirectoryFromFile returns a Directory parsed from a CSV file with a
// "code,name" header row. Used when config overrides the embedded list.
func NewDirectoryFromFile(path string) (*Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("stations: open %q: %w", path, err)
	}
	defer f.Close()

	d, err := parseDirectory(f)
	if err != nil {
		return nil, fmt.Errorf("stations: parse %q: %w", path, err)
	}
	return d, nil
}

// Stations returns all known stations in directory order.
func (d *Directory) Stations() []Station {
	return d.stations
}

// Len returns the number of stations in the directory.
func (d *Directory) Len() int {
	return len(d.stations)
}

func parseDirectory(r io.Reader) (*Directory, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("stations: read csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("stations: csv has no data rows")
	}

	// Skip the header row.
	list := make([]Station, 0, len(rows)-1)
	for _, row := range rows[1:] {
		code := strings.ToUpper(strings.TrimSpace(row[0]))
		name := strings.TrimSpace(row[1])
		if code == "" || name == "" {
			continue
		}
		list = append(list, Station{Code: code, Name: name})
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("stations: csv has no usable rows")
	}
	return &Directory{stations: list}, nil
}
