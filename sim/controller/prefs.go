package controller

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Preference holds one user's V2G participation preferences.
// MinimumSOC is a 0..1 fraction, as stored in the preference files.
type Preference struct {
	MinimumSOC              float64
	MaxCostForCharging      float64
	DischargePriceThreshold float64
}

// Preferences maps user ids to their preferences.
type Preferences map[int]Preference

// ReadPreferences parses a preference CSV with the columns
// UserID,MinimumSOC,MaxCostForCharging,DischargePriceThreshold.
func ReadPreferences(r io.Reader) (Preferences, error) {
	reader := csv.NewReader(r)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading preference CSV: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("preference CSV is empty")
	}

	cols, err := columnIndex(rows[0], "UserID", "MinimumSOC", "MaxCostForCharging", "DischargePriceThreshold")
	if err != nil {
		return nil, fmt.Errorf("preference CSV: %w", err)
	}

	prefs := make(Preferences, len(rows)-1)
	for i, row := range rows[1:] {
		userID, err := strconv.Atoi(row[cols["UserID"]])
		if err != nil {
			return nil, fmt.Errorf("preference CSV row %d: invalid UserID %q", i+2, row[cols["UserID"]])
		}
		pref := Preference{}
		if pref.MinimumSOC, err = parseFloatColumn(row, cols, "MinimumSOC", i+2); err != nil {
			return nil, err
		}
		if pref.MaxCostForCharging, err = parseFloatColumn(row, cols, "MaxCostForCharging", i+2); err != nil {
			return nil, err
		}
		if pref.DischargePriceThreshold, err = parseFloatColumn(row, cols, "DischargePriceThreshold", i+2); err != nil {
			return nil, err
		}
		if pref.MinimumSOC < 0 || pref.MinimumSOC > 1 {
			return nil, fmt.Errorf("preference CSV row %d: MinimumSOC %f outside 0..1", i+2, pref.MinimumSOC)
		}
		prefs[userID] = pref
	}
	return prefs, nil
}

// LoadPreferencesFile reads a preference CSV from disk.
func LoadPreferencesFile(path string) (Preferences, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening preference file: %w", err)
	}
	defer f.Close()
	return ReadPreferences(f)
}

func columnIndex(header []string, names ...string) (map[string]int, error) {
	cols := make(map[string]int, len(names))
	for i, name := range header {
		cols[name] = i
	}
	for _, name := range names {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	return cols, nil
}

func parseFloatColumn(row []string, cols map[string]int, name string, line int) (float64, error) {
	v, err := strconv.ParseFloat(row[cols[name]], 64)
	if err != nil {
		return 0, fmt.Errorf("preference CSV row %d: invalid %s %q", line, name, row[cols[name]])
	}
	return v, nil
}
