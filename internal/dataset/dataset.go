// Package dataset reads and writes the artifact files exchanged with
// the ML stage: a CSV of query results going out, and a JSON file of
// import-ready records coming back, grouped by metatype name.
package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/deeplynx/mladapter/pkg/models"
)

// Grouped maps a metatype name to the records destined for it.
type Grouped map[string][]models.Event

// ReadGrouped reads an import-ready JSON file. The file must carry an
// object of the form {"Metatype": [record, ...], ...}.
func ReadGrouped(path string) (Grouped, error) {
	if err := ValidateExtension(".json", path); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	var grouped Grouped
	if err := json.Unmarshal(raw, &grouped); err != nil {
		return nil, fmt.Errorf("%s is not a grouped record file: %w", path, err)
	}
	return grouped, nil
}

// Flatten collapses grouped records into the single list the store's
// manual import endpoint accepts. Metatype order is stable so imports
// are reproducible.
func (g Grouped) Flatten() []models.Event {
	metatypes := make([]string, 0, len(g))
	for name := range g {
		metatypes = append(metatypes, name)
	}
	sort.Strings(metatypes)

	var out []models.Event
	for _, name := range metatypes {
		out = append(out, g[name]...)
	}
	return out
}

// WriteCSV writes header and rows to path, creating the parent
// directory if needed.
func WriteCSV(path string, header []string, rows [][]string) error {
	if err := ValidateExtension(".csv", path); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("cannot create %s: %w", dir, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if len(header) > 0 {
		if err := w.Write(header); err != nil {
			return err
		}
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// ValidateExtension checks that path carries the expected extension.
func ValidateExtension(ext, path string) error {
	if filepath.Ext(path) != ext {
		return fmt.Errorf("%s does not have the required %s extension", path, ext)
	}
	return nil
}
