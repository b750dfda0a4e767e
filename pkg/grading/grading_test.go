package grading

import (
	"errors"
	"math"
	"testing"

	"grader/pkg/answerkey"
	"grader/pkg/gradeerr"
)

func mustKey(t *testing.T, compact string) answerkey.Key {
	t.Helper()
	k, err := answerkey.Parse(compact)
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	return k
}

func TestGradeMixedSheet(t *testing.T) {
	res, err := Grade(mustKey(t, "BEC"), Confirmed{1: "B", 2: "A", 3: "C"})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	want := []Record{{1, "B", "B", true}, {2, "A", "E", false}, {3, "C", "C", true}}
	if len(res.Records) != len(want) {
		t.Fatalf("got %v", res.Records)
	}
	for i := range want {
		if res.Records[i] != want[i] {
			t.Fatalf("record %d: got %+v want %+v", i, res.Records[i], want[i])
		}
	}
	if res.CorrectCount != 2 || res.TotalQuestions != 3 {
		t.Fatalf("unexpected counts %+v", res)
	}
	if math.Abs(res.Percentage-200.0/3) > 1e-9 || res.DisplayPercentage() != "66.7" {
		t.Fatalf("unexpected percentage %v", res.Percentage)
	}
	if res.Score() != "2/3 (66.7%)" {
		t.Fatalf("unexpected score %q", res.Score())
	}
}

func TestGradeIdenticalSetIsPerfect(t *testing.T) {
	key := answerkey.DefaultKey()
	res, err := Grade(key, Confirmed(key.Map()))
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if res.CorrectCount != key.Len() || res.Percentage != 100 || res.DisplayPercentage() != "100.0" {
		t.Fatalf("expected perfect score got %+v", res)
	}
}

func TestGradeEmptyConfirmed(t *testing.T) {
	res, err := Grade(answerkey.DefaultKey(), Confirmed{})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	for _, r := range res.Records {
		if r.StudentAnswer != NoAnswer || r.Correct {
			t.Fatalf("expected blank record got %+v", r)
		}
	}
	if res.CorrectCount != 0 || res.Percentage != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestGradeNormalizesAnswers(t *testing.T) {
	res, _ := Grade(mustKey(t, "BE"), Confirmed{1: " b ", 2: "   ", 7: "Z"})
	if !res.Records[0].Correct || res.Records[0].StudentAnswer != "B" {
		t.Fatalf("lowercase answer not normalized: %+v", res.Records[0])
	}
	if res.Records[1].StudentAnswer != NoAnswer {
		t.Fatalf("blank answer not reported as %q: %+v", NoAnswer, res.Records[1])
	}
	if len(res.Records) != 2 {
		t.Fatalf("questions outside the key must be ignored: %+v", res.Records)
	}
}

func TestGradeEmptyKey(t *testing.T) {
	_, err := Grade(answerkey.Key{}, Confirmed{1: "A"})
	if !errors.Is(err, gradeerr.ErrConfiguration) {
		t.Fatalf("expected configuration error got %v", err)
	}
}
