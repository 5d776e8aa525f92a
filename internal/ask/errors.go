package ask

import (
	"errors"
	"fmt"
)

var ErrQuestionRequired = errors.New("question is required")

type Stage string

const (
	StageTranslate Stage = "translate"
	StageValidate  Stage = "validate"
	StageExecute   Stage = "execute"
	StageSummarize Stage = "summarize"
)

// StageError records which pipeline step failed. errors.As still reaches the
// underlying typed error.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// StageOf returns the failed stage, or "" when err did not come from a stage.
func StageOf(err error) Stage {
	var staged *StageError
	if errors.As(err, &staged) {
		return staged.Stage
	}
	return ""
}
