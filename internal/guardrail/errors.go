package guardrail

import "fmt"

type Kind string

const (
	KindNotSelect          Kind = "NotSelect"
	KindMultipleStatements Kind = "MultipleStatements"
	KindSchemaNotAllowed   Kind = "SchemaNotAllowed"
	KindBannedKeyword      Kind = "BannedKeyword"
)

// ValidationError is a permanent rejection of candidate SQL. Token names the
// offending schema or keyword when the kind has one.
type ValidationError struct {
	Kind  Kind
	Token string
}

var (
	ErrNotSelect          = &ValidationError{Kind: KindNotSelect}
	ErrMultipleStatements = &ValidationError{Kind: KindMultipleStatements}
	ErrSchemaNotAllowed   = &ValidationError{Kind: KindSchemaNotAllowed}
	ErrBannedKeyword      = &ValidationError{Kind: KindBannedKeyword}
)

func (e *ValidationError) Error() string {
	switch e.Kind {
	case KindNotSelect:
		return "only SELECT queries are allowed"
	case KindMultipleStatements:
		return "multiple statements are not allowed"
	case KindSchemaNotAllowed:
		return fmt.Sprintf("schema %q is not in the allow-list", e.Token)
	case KindBannedKeyword:
		return fmt.Sprintf("keyword %s is not allowed", e.Token)
	default:
		return fmt.Sprintf("sql rejected: %s", e.Kind)
	}
}

// Is matches on Kind so errors.Is(err, ErrSchemaNotAllowed) holds for any
// offending schema.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Token == "" || t.Token == e.Token)
}
