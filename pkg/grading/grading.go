// Package grading scores a human-confirmed answer set against an answer key.
package grading

import (
	"errors"
	"fmt"
	"strings"

	"grader/pkg/answerkey"
	"grader/pkg/gradeerr"
)

// NoAnswer is recorded for questions left blank in the confirmed set.
const NoAnswer = "No Answer"

// Confirmed is the verified question -> answer mapping. Blank or missing
// entries mean the student gave no answer.
type Confirmed map[int]string

// Record is the outcome for one question.
type Record struct {
	Question      int    `json:"question"`
	StudentAnswer string `json:"student_answer"`
	CorrectAnswer string `json:"correct_answer"`
	Correct       bool   `json:"correct"`
}

// Result lists one Record per key question in ascending order.
type Result struct {
	Records        []Record `json:"records"`
	CorrectCount   int      `json:"correct_count"`
	TotalQuestions int      `json:"total_questions"`
	Percentage     float64  `json:"percentage"`
}

// DisplayPercentage formats Percentage with one decimal.
func (r Result) DisplayPercentage() string {
	return fmt.Sprintf("%.1f", r.Percentage)
}

// Score renders "correct/total (p%)".
func (r Result) Score() string {
	return fmt.Sprintf("%d/%d (%s%%)", r.CorrectCount, r.TotalQuestions, r.DisplayPercentage())
}

var errEmptyKey = errors.New("answer key has no questions")

// Grade compares confirmed with key question by question. Answers are
// trimmed and uppercased before an exact comparison. An empty key is a
// configuration error.
func Grade(key answerkey.Key, confirmed Confirmed) (Result, error) {
	n := key.Len()
	if n == 0 {
		return Result{}, gradeerr.New(gradeerr.KindConfiguration, "grade", errEmptyKey)
	}
	res := Result{Records: make([]Record, 0, n), TotalQuestions: n}
	for _, q := range key.Questions() {
		correct, _ := key.Answer(q)
		student := strings.ToUpper(strings.TrimSpace(confirmed[q]))
		rec := Record{Question: q, CorrectAnswer: correct}
		if student == "" {
			rec.StudentAnswer = NoAnswer
		} else {
			rec.StudentAnswer = student
			rec.Correct = student == correct
		}
		if rec.Correct {
			res.CorrectCount++
		}
		res.Records = append(res.Records, rec)
	}
	res.Percentage = float64(res.CorrectCount) / float64(n) * 100
	return res, nil
}
