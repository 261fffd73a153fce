package apply

import (
	"fmt"
	"path/filepath"
	"strings"

	"telinv/internal/export"
	"telinv/internal/normalize"
)

// Lookups resolves identities against a prior export's entity cache:
// email→person id, location name→location id, queue name→queue id.
type Lookups struct {
	people    map[string]string
	locations map[string]string
	queues    map[string]string
}

// NewLookups builds lookup tables from already-loaded rows.
func NewLookups(people, locations, queues []normalize.Row) *Lookups {
	l := &Lookups{
		people:    make(map[string]string),
		locations: make(map[string]string),
		queues:    make(map[string]string),
	}
	for _, row := range people {
		email, okEmail := normalize.Extract(row, "email")
		id, okID := normalize.Extract(row, "person_id")
		if !okID {
			id, okID = normalize.Extract(row, "id")
		}
		if okEmail && okID {
			l.people[strings.ToLower(fmt.Sprint(email))] = fmt.Sprint(id)
		}
	}
	fill := func(dst map[string]string, rows []normalize.Row) {
		for _, row := range rows {
			name, okName := normalize.Extract(row, "name")
			id, okID := normalize.Extract(row, "id")
			if okName && okID {
				dst[strings.ToLower(fmt.Sprint(name))] = fmt.Sprint(id)
			}
		}
	}
	fill(l.locations, locations)
	fill(l.queues, queues)
	return l
}

// LoadLookups reads people.json, locations.json, and queues.json from a
// prior export directory. Missing files contribute empty tables.
func LoadLookups(dir string) (*Lookups, error) {
	read := func(name string) []normalize.Row {
		env, err := export.ReadModuleJSON(filepath.Join(dir, name))
		if err != nil {
			// Absent lookup file contributes an empty table.
			return nil
		}
		return env.Rows
	}
	people := read("people.json")
	locations := read("locations.json")
	queues := read("queues.json")
	if people == nil && locations == nil && queues == nil {
		return nil, fmt.Errorf("no lookup artifacts found in %s", dir)
	}
	return NewLookups(people, locations, queues), nil
}

// PersonID resolves an email to a person id.
func (l *Lookups) PersonID(email string) (string, bool) {
	id, ok := l.people[strings.ToLower(strings.TrimSpace(email))]
	return id, ok
}

// LocationID resolves a location name. When no match exists the raw input
// value is returned unresolved, per the secondary-reference fallback.
func (l *Lookups) LocationID(name string) string {
	if id, ok := l.locations[strings.ToLower(strings.TrimSpace(name))]; ok {
		return id
	}
	return name
}

// QueueID resolves a queue name, falling back to the raw value.
func (l *Lookups) QueueID(name string) string {
	if id, ok := l.queues[strings.ToLower(strings.TrimSpace(name))]; ok {
		return id
	}
	return name
}
