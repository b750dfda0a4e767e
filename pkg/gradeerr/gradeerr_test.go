package gradeerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMatchesKindSentinel(t *testing.T) {
	err := fmt.Errorf("grade sheet: %w", New(KindLoad, "open", errors.New("no such file")))
	if !errors.Is(err, ErrLoad) {
		t.Fatalf("expected ErrLoad match, got %v", err)
	}
	if errors.Is(err, ErrValidation) {
		t.Fatalf("load error must not match ErrValidation")
	}
	if KindOf(err) != KindLoad {
		t.Fatalf("expected KindLoad got %v", KindOf(err))
	}
}

func TestQuestionCarriesNumber(t *testing.T) {
	err := Question("bulk update", 4, errors.New("answer must start with a letter"))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation kind")
	}
	q, ok := QuestionOf(err)
	if !ok || q != 4 {
		t.Fatalf("expected question 4 got %d ok=%v", q, ok)
	}
	want := "bulk update: validation error (question 4): answer must start with a letter"
	if err.Error() != want {
		t.Fatalf("message mismatch:\n got %q\nwant %q", err.Error(), want)
	}
}

func TestUnwrapReachesCause(t *testing.T) {
	cause := errors.New("tesseract init failed")
	err := New(KindRecognition, "recognize", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause in chain")
	}
	if _, ok := QuestionOf(err); ok {
		t.Fatalf("recognition error names no question")
	}
}
