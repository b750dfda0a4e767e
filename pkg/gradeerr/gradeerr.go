// Package gradeerr classifies the failures the grading pipeline reports to
// its callers. Every failure carries a Kind; callers match kinds with
// errors.Is against the package sentinels and pull details with errors.As.
package gradeerr

import (
	"errors"
	"fmt"
)

// Kind is the failure class of an Error.
type Kind uint8

const (
	// KindLoad: the sheet image is missing or cannot be decoded.
	KindLoad Kind = iota + 1
	// KindRecognition: the recognition engine failed.
	KindRecognition
	// KindParse: a malformed answer-key line. Recovered inside the store.
	KindParse
	// KindConfiguration: the answer key is empty or otherwise unusable.
	KindConfiguration
	// KindValidation: an edit supplied an invalid answer.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindLoad:
		return "load"
	case KindRecognition:
		return "recognition"
	case KindParse:
		return "parse"
	case KindConfiguration:
		return "configuration"
	case KindValidation:
		return "validation"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

var (
	ErrLoad          = errors.New("load error")
	ErrRecognition   = errors.New("recognition error")
	ErrParse         = errors.New("parse error")
	ErrConfiguration = errors.New("configuration error")
	ErrValidation    = errors.New("validation error")
)

func (k Kind) sentinel() error {
	switch k {
	case KindLoad:
		return ErrLoad
	case KindRecognition:
		return ErrRecognition
	case KindParse:
		return ErrParse
	case KindConfiguration:
		return ErrConfiguration
	case KindValidation:
		return ErrValidation
	}
	return nil
}

// Error is a classified pipeline failure. Question is set (non-zero) when the
// failure concerns a single question, e.g. a rejected edit.
type Error struct {
	Kind     Kind
	Op       string
	Question int
	Err      error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + " error"
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Question > 0 {
		msg += fmt.Sprintf(" (question %d)", e.Question)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel of e's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// New builds an Error of kind k.
func New(k Kind, op string, err error) *Error {
	return &Error{Kind: k, Op: op, Err: err}
}

// Question builds a validation Error naming question q.
func Question(op string, q int, err error) *Error {
	return &Error{Kind: KindValidation, Op: op, Question: q, Err: err}
}

// KindOf returns the kind of the first Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// QuestionOf returns the question named by the first Error in err's chain.
func QuestionOf(err error) (int, bool) {
	var e *Error
	if errors.As(err, &e) && e.Question > 0 {
		return e.Question, true
	}
	return 0, false
}
