package apply

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// InputRecord is one target entity to configure. Records are immutable once
// loaded; the engine works on copies of the payload.
type InputRecord struct {
	Email     string
	LicenseID string
	Location  string
	Payload   map[string]string
}

// Key returns the record's stable identity.
func (r InputRecord) Key() string { return r.Email }

// fixedColumns are consumed into dedicated InputRecord fields; everything
// else lands in the payload.
var fixedColumns = map[string]struct{}{
	"email":      {},
	"license_id": {},
	"location":   {},
}

// LoadRecords reads input records from a CSV file whose header names the
// payload fields. The email column is required.
func LoadRecords(path string) ([]InputRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseRecords(f)
}

// ParseRecords reads input records from CSV data.
func ParseRecords(r io.Reader) ([]InputRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}
	emailIdx := -1
	for i, col := range header {
		if col == "email" {
			emailIdx = i
		}
	}
	if emailIdx < 0 {
		return nil, fmt.Errorf("input header missing required email column")
	}

	var out []InputRecord
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rec := InputRecord{Payload: make(map[string]string)}
		for i, cell := range row {
			if i >= len(header) {
				break
			}
			value := strings.TrimSpace(cell)
			switch header[i] {
			case "email":
				rec.Email = value
			case "license_id":
				rec.LicenseID = value
			case "location":
				rec.Location = value
			default:
				if value != "" {
					rec.Payload[header[i]] = value
				}
			}
		}
		if rec.Email == "" {
			return nil, fmt.Errorf("line %d: empty email", line)
		}
		out = append(out, rec)
	}
	return out, nil
}
