package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind identifies the pipeline step a StepError came from.
type Kind string

const (
	KindScrape      Kind = "scrape"
	KindScoring     Kind = "scoring"
	KindDownload    Kind = "download"
	KindComposition Kind = "composition"
	KindPublish     Kind = "publish"
)

// ErrDuplicate is returned by the store when a video with the same source
// video id already exists.
var ErrDuplicate = stderrors.New("duplicate source video")

// StepError is a failure of one external step of the pipeline.
type StepError struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func newStepError(kind Kind, op string, err error, message string) *StepError {
	return &StepError{
		Kind:    kind,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

func Scrape(op string, err error, message string) *StepError {
	return newStepError(KindScrape, op, err, message)
}

func Scoring(op string, err error, message string) *StepError {
	return newStepError(KindScoring, op, err, message)
}

func Download(op string, err error, message string) *StepError {
	return newStepError(KindDownload, op, err, message)
}

func Composition(op string, err error, message string) *StepError {
	return newStepError(KindComposition, op, err, message)
}

func Publish(op string, err error, message string) *StepError {
	return newStepError(KindPublish, op, err, message)
}

// IsKind reports whether any StepError in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	var stepErr *StepError
	if !stderrors.As(err, &stepErr) {
		return false
	}
	return stepErr.Kind == kind
}

// QuotaExceededError means the destination platform refused the upload
// because its quota is exhausted. It is not a generic publish failure.
type QuotaExceededError struct {
	Op     string
	Reason string
	Err    error
}

func (e *QuotaExceededError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("quota exceeded (%s)", e.Reason)
	}
	return "quota exceeded"
}

func (e *QuotaExceededError) Unwrap() error {
	return e.Err
}

func QuotaExceeded(op string, err error, reason string) *QuotaExceededError {
	return &QuotaExceededError{Op: op, Reason: reason, Err: err}
}

func IsQuotaExceeded(err error) bool {
	var quotaErr *QuotaExceededError
	return stderrors.As(err, &quotaErr)
}
