package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

const AnswersPrefix = "answers"

var keyComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildAnswerKey returns answers/yyyy/mm/dd/<id>.<ext> using the UTC date.
func BuildAnswerKey(answerID string, createdAt time.Time, ext string) (string, error) {
	if err := validateKeyComponent(answerID, "answer id"); err != nil {
		return "", err
	}
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if err := validateKeyComponent(ext, "extension"); err != nil {
		return "", err
	}

	ts := createdAt.UTC()
	return path.Join(
		AnswersPrefix,
		fmt.Sprintf("%04d", ts.Year()),
		fmt.Sprintf("%02d", ts.Month()),
		fmt.Sprintf("%02d", ts.Day()),
		answerID+"."+ext,
	), nil
}

func validateKeyComponent(value, field string) error {
	if !keyComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
