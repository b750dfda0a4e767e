package grading

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"grader/pkg/answerkey"
	"grader/pkg/gradeerr"
)

// TestGradingFeatures executes the grading feature scenarios via godog.
func TestGradingFeatures(t *testing.T) {
	suite := godog.TestSuite{
		Name:                "grading",
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{filepath.Join("features", "grading.feature")},
			Strict:   true,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatalf("non-zero godog status")
	}
}

// InitializeScenario wires step definitions for the grading feature.
func InitializeScenario(ctx *godog.ScenarioContext) {
	state := &gradingState{}
	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		*state = gradingState{}
		return ctx, nil
	})

	ctx.Step(`^the answer key "([^"]*)"$`, state.givenKey)
	ctx.Step(`^an empty answer key$`, state.givenEmptyKey)
	ctx.Step(`^the confirmed answers are "([^"]*)"$`, state.whenConfirmed)
	ctx.Step(`^question (\d+) is marked correct with student answer "([^"]*)"$`, state.questionCorrect)
	ctx.Step(`^question (\d+) is marked wrong with student answer "([^"]*)" and correct answer "([^"]*)"$`, state.questionWrong)
	ctx.Step(`^every question shows "([^"]*)"$`, state.everyQuestionShows)
	ctx.Step(`^the score is (\d+) of (\d+) at "([^"]*)" percent$`, state.scoreIs)
	ctx.Step(`^grading fails with a configuration error$`, state.failsWithConfiguration)
}

type gradingState struct {
	key    answerkey.Key
	result Result
	err    error
}

func (s *gradingState) givenKey(compact string) error {
	k, err := answerkey.Parse(compact)
	if err != nil {
		return err
	}
	s.key = k
	return nil
}

func (s *gradingState) givenEmptyKey() error {
	s.key = answerkey.Key{}
	return nil
}

func (s *gradingState) whenConfirmed(list string) error {
	confirmed := Confirmed{}
	for _, pair := range strings.Split(list, ",") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		q, a, ok := strings.Cut(pair, ":")
		if !ok {
			return fmt.Errorf("bad pair %q", pair)
		}
		n, err := strconv.Atoi(strings.TrimSpace(q))
		if err != nil {
			return err
		}
		confirmed[n] = a
	}
	s.result, s.err = Grade(s.key, confirmed)
	return nil
}

func (s *gradingState) record(q int) (Record, error) {
	if s.err != nil {
		return Record{}, s.err
	}
	for _, r := range s.result.Records {
		if r.Question == q {
			return r, nil
		}
	}
	return Record{}, fmt.Errorf("no record for question %d", q)
}

func (s *gradingState) questionCorrect(q int, student string) error {
	r, err := s.record(q)
	if err != nil {
		return err
	}
	if !r.Correct || r.StudentAnswer != student {
		return fmt.Errorf("question %d: got %+v", q, r)
	}
	return nil
}

func (s *gradingState) questionWrong(q int, student, correct string) error {
	r, err := s.record(q)
	if err != nil {
		return err
	}
	if r.Correct || r.StudentAnswer != student || r.CorrectAnswer != correct {
		return fmt.Errorf("question %d: got %+v", q, r)
	}
	return nil
}

func (s *gradingState) everyQuestionShows(answer string) error {
	if s.err != nil {
		return s.err
	}
	for _, r := range s.result.Records {
		if r.StudentAnswer != answer {
			return fmt.Errorf("question %d shows %q", r.Question, r.StudentAnswer)
		}
	}
	return nil
}

func (s *gradingState) scoreIs(correct, total int, pct string) error {
	if s.err != nil {
		return s.err
	}
	r := s.result
	if r.CorrectCount != correct || r.TotalQuestions != total || r.DisplayPercentage() != pct {
		return fmt.Errorf("got %d of %d at %s", r.CorrectCount, r.TotalQuestions, r.DisplayPercentage())
	}
	return nil
}

func (s *gradingState) failsWithConfiguration() error {
	if !errors.Is(s.err, gradeerr.ErrConfiguration) {
		return fmt.Errorf("expected configuration error got %v", s.err)
	}
	return nil
}
