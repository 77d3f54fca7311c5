package results

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
)

// ExportJSON renders canonical results as indented JSON.
func ExportJSON(res []ValidationResult) ([]byte, error) {
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal results: %w", err)
	}
	return b, nil
}

// ExportCSV renders one row per requirement.
func ExportCSV(res []ValidationResult) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"Specification", "Model", "Requirement", "Status", "Failed Elements", "Passed Count", "Failed Count"}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	for _, spec := range res {
		for _, req := range spec.Requirements {
			row := []string{
				spec.SpecificationName,
				spec.ModelName,
				req.Name,
				string(req.Status),
				strconv.Itoa(len(req.FailedElements)),
				strconv.Itoa(req.PassedCount),
				strconv.Itoa(req.FailedCount),
			}
			if err := w.Write(row); err != nil {
				return nil, fmt.Errorf("write csv row: %w", err)
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
