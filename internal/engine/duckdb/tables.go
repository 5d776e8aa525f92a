package duckdb

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Table maps a schema-qualified view onto parquet objects in the store.
type Table struct {
	Schema string
	Name   string
	Keys   []string
}

func (t Table) QualifiedName() string {
	return t.Schema + "." + t.Name
}

// ParseTables reads "schema.table=key|key,schema.other=key".
func ParseTables(definition string) ([]Table, error) {
	definition = strings.TrimSpace(definition)
	if definition == "" {
		return nil, nil
	}

	byName := map[string]*Table{}
	for _, entry := range strings.Split(definition, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, rawKeys, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("table entry %q: expected schema.table=key", entry)
		}
		schema, table, ok := strings.Cut(strings.TrimSpace(name), ".")
		if !ok || !identPattern.MatchString(schema) || !identPattern.MatchString(table) {
			return nil, fmt.Errorf("table entry %q: invalid table name %q", entry, name)
		}

		keys := make([]string, 0)
		for _, key := range strings.Split(rawKeys, "|") {
			if key = strings.TrimSpace(key); key != "" {
				keys = append(keys, key)
			}
		}
		if len(keys) == 0 {
			return nil, fmt.Errorf("table entry %q: at least one object key is required", entry)
		}

		qualified := strings.ToLower(schema) + "." + strings.ToLower(table)
		if existing, ok := byName[qualified]; ok {
			existing.Keys = append(existing.Keys, keys...)
			continue
		}
		byName[qualified] = &Table{Schema: strings.ToLower(schema), Name: strings.ToLower(table), Keys: keys}
	}

	tables := make([]Table, 0, len(byName))
	for _, table := range byName {
		tables = append(tables, *table)
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].QualifiedName() < tables[j].QualifiedName() })
	return tables, nil
}
