package controller

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadProfile tells for each hour of the day whether the grid is under load.
type LoadProfile map[int]bool

// UnderLoadAt reports the profile's verdict for the hour containing t.
// Hours without an entry default to not under load.
func (p LoadProfile) UnderLoadAt(t time.Time) bool {
	return p[t.UTC().Hour()]
}

// ReadLoadProfile parses a daily grid-load CSV with the columns
// time,grid_on_load where time is "HH:00" and grid_on_load is 0 or 1.
func ReadLoadProfile(r io.Reader) (LoadProfile, error) {
	reader := csv.NewReader(r)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading grid-load CSV: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("grid-load CSV is empty")
	}

	cols, err := columnIndex(rows[0], "time", "grid_on_load")
	if err != nil {
		return nil, fmt.Errorf("grid-load CSV: %w", err)
	}

	profile := make(LoadProfile, len(rows)-1)
	for i, row := range rows[1:] {
		hourPart, _, ok := strings.Cut(row[cols["time"]], ":")
		if !ok {
			return nil, fmt.Errorf("grid-load CSV row %d: invalid time %q", i+2, row[cols["time"]])
		}
		hour, err := strconv.Atoi(hourPart)
		if err != nil || hour < 0 || hour > 23 {
			return nil, fmt.Errorf("grid-load CSV row %d: invalid hour %q", i+2, row[cols["time"]])
		}
		profile[hour] = row[cols["grid_on_load"]] == "1"
	}
	return profile, nil
}

// LoadProfileFile reads a daily grid-load CSV from disk.
func LoadProfileFile(path string) (LoadProfile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening grid-load file: %w", err)
	}
	defer f.Close()
	return ReadLoadProfile(f)
}
