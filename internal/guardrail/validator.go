// Package guardrail decides whether generated SQL may reach the query engine.
//
// Checks are textual: keywords and terminators inside string literals or
// comments are treated like any other text. A false rejection is the accepted
// failure mode.
package guardrail

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/asklake/asklake/internal/observability"
)

const terminator = ";"

// BannedKeywords are rejected anywhere in a statement, subqueries included.
// MSCK covers Athena's MSCK REPAIR TABLE.
var BannedKeywords = []string{"UNLOAD", "CREATE", "DROP", "DELETE", "UPDATE", "INSERT", "GRANT", "MSCK", "ALTER"}

var (
	selectPattern = regexp.MustCompile(`(?is)^\s*select\b`)
	limitPattern  = regexp.MustCompile(`(?i)\blimit\b`)
	tablePattern  = regexp.MustCompile("(?i)\\b(?:from|join)\\s+([a-zA-Z0-9_.\"`']+)")
	bannedPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(BannedKeywords, "|") + `)\b`)
)

type Policy struct {
	AllowedSchemas []string
	RowLimit       int
}

// Validator is immutable after New and safe for concurrent use.
type Validator struct {
	allowed  map[string]struct{}
	rowLimit int
}

func New(policy Policy) (*Validator, error) {
	if policy.RowLimit <= 0 {
		return nil, fmt.Errorf("row limit must be positive, got %d", policy.RowLimit)
	}
	allowed := make(map[string]struct{}, len(policy.AllowedSchemas))
	for _, schema := range policy.AllowedSchemas {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			continue
		}
		allowed[schema] = struct{}{}
	}
	if len(allowed) == 0 {
		return nil, fmt.Errorf("schema allow-list must not be empty")
	}
	return &Validator{allowed: allowed, rowLimit: policy.RowLimit}, nil
}

func (v *Validator) RowLimit() int {
	return v.rowLimit
}

func (v *Validator) AllowedSchemas() []string {
	schemas := make([]string, 0, len(v.allowed))
	for schema := range v.allowed {
		schemas = append(schemas, schema)
	}
	sort.Strings(schemas)
	return schemas
}

// Validate returns the candidate normalized for execution or a
// *ValidationError. The only rewrite it performs is appending a LIMIT clause.
func (v *Validator) Validate(candidate string) (string, error) {
	sql := strings.TrimSpace(candidate)

	if !selectPattern.MatchString(sql) {
		return "", reject(KindNotSelect, "")
	}

	if strings.Contains(strings.TrimSuffix(sql, terminator), terminator) {
		return "", reject(KindMultipleStatements, "")
	}

	if !limitPattern.MatchString(sql) {
		sql = strings.TrimSpace(strings.TrimSuffix(sql, terminator)) + " LIMIT " + strconv.Itoa(v.rowLimit)
	}

	for _, match := range tablePattern.FindAllStringSubmatch(sql, -1) {
		schema, qualified := schemaOf(match[1])
		if !qualified {
			continue
		}
		if _, ok := v.allowed[schema]; !ok {
			return "", reject(KindSchemaNotAllowed, schema)
		}
	}

	if keyword := bannedPattern.FindString(sql); keyword != "" {
		return "", reject(KindBannedKeyword, strings.ToUpper(keyword))
	}

	return sql, nil
}

func reject(kind Kind, token string) error {
	observability.IncrementGuardrailRejection(string(kind))
	return &ValidationError{Kind: kind, Token: token}
}

// schemaOf returns the segment before the first dot of a table reference.
// Unqualified references resolve against the engine's default database and
// are reported as not qualified.
func schemaOf(reference string) (string, bool) {
	reference = trimQuotes(reference)
	before, _, found := strings.Cut(reference, ".")
	if !found {
		return "", false
	}
	return trimQuotes(before), true
}

func trimQuotes(value string) string {
	return strings.Trim(strings.TrimSpace(value), "\"`'")
}
