package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"grader/pkg/answerkey"
	"grader/pkg/extract"
	"grader/pkg/gradeerr"
	"grader/pkg/grading"
)

var (
	// ErrNotConfirmed means the verifier has no confirmed answers yet.
	ErrNotConfirmed = errors.New("answers not confirmed yet")
	// ErrKeyChanged means the answer key no longer has the questions a
	// proposal was written for.
	ErrKeyChanged = errors.New("answer key changed since the proposal was written")
)

// Verifier lets a human correct a proposal. The returned set covers every
// question in questions; blank entries mean no answer.
type Verifier interface {
	Verify(ctx context.Context, questions []int, proposal extract.Proposal) (grading.Confirmed, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, questions []int, proposal extract.Proposal) (grading.Confirmed, error)

func (f VerifierFunc) Verify(ctx context.Context, questions []int, proposal extract.Proposal) (grading.Confirmed, error) {
	return f(ctx, questions, proposal)
}

// AcceptProposal confirms the proposal as is.
var AcceptProposal = VerifierFunc(func(_ context.Context, questions []int, proposal extract.Proposal) (grading.Confirmed, error) {
	return Prefill(questions, proposal), nil
})

// Prefill expands proposal to every question, blank where nothing was read.
func Prefill(questions []int, proposal extract.Proposal) grading.Confirmed {
	c := make(grading.Confirmed, len(questions))
	for _, q := range questions {
		c[q] = proposal[q]
	}
	return c
}

// CheckConfirmed accepts only blank answers or a single letter A-Z (either
// case). The first bad entry in ascending question order is reported as a
// validation error naming its question.
func CheckConfirmed(c grading.Confirmed) error {
	const op = "confirm answers"
	qs := make([]int, 0, len(c))
	for q := range c {
		qs = append(qs, q)
	}
	sort.Ints(qs)
	for _, q := range qs {
		if q < 1 {
			return gradeerr.New(gradeerr.KindValidation, op, fmt.Errorf("question %d is not a positive number", q))
		}
		a := strings.TrimSpace(c[q])
		if a == "" {
			continue
		}
		if l, ok := answerkey.LeadingLetter(a); !ok || !strings.EqualFold(l, a) {
			return gradeerr.Question(op, q, fmt.Errorf("answer %q must be a single letter or blank", c[q]))
		}
	}
	return nil
}

// SidecarVerifier verifies through files next to the sheet image: it
// writes the proposal to <image>.proposed and grades once a human has
// saved the corrected answers as <image>.confirmed. Both use the answer key
// file format, with blank answers written as "n:".
type SidecarVerifier struct {
	Image string
}

func ProposedPath(image string) string  { return image + ".proposed" }
func ConfirmedPath(image string) string { return image + ".confirmed" }

// Verify returns the confirmed answers if they exist. Otherwise it writes
// the proposal (unless already written) and returns ErrNotConfirmed.
// Confirmed answers are refused with ErrKeyChanged when the proposal on disk
// was written for other questions than questions.
func (v SidecarVerifier) Verify(_ context.Context, questions []int, proposal extract.Proposal) (grading.Confirmed, error) {
	f, err := os.Open(ConfirmedPath(v.Image))
	if err == nil {
		defer f.Close()
		if err := v.checkProposedQuestions(questions); err != nil {
			return nil, err
		}
		entries, err := answerkey.ReadEntries(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", ConfirmedPath(v.Image), err)
		}
		found := map[int]string{}
		for _, e := range entries {
			found[e.Question] = strings.TrimSpace(e.Answer)
		}
		c := make(grading.Confirmed, len(questions))
		for _, q := range questions {
			c[q] = found[q]
		}
		if err := CheckConfirmed(c); err != nil {
			return nil, err
		}
		return c, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if _, err := os.Stat(ProposedPath(v.Image)); err == nil {
		return nil, ErrNotConfirmed
	}
	if err := WriteProposal(ProposedPath(v.Image), questions, proposal); err != nil {
		return nil, err
	}
	return nil, ErrNotConfirmed
}

// checkProposedQuestions compares questions with the ones listed in the
// proposal file. A missing proposal file is not checked.
func (v SidecarVerifier) checkProposedQuestions(questions []int) error {
	f, err := os.Open(ProposedPath(v.Image))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	entries, err := answerkey.ReadEntries(f)
	if err != nil {
		return fmt.Errorf("read %s: %w", ProposedPath(v.Image), err)
	}
	proposed := make([]int, 0, len(entries))
	for _, e := range entries {
		proposed = append(proposed, e.Question)
	}
	sort.Ints(proposed)
	if !slices.Equal(slices.Compact(proposed), questions) {
		return gradeerr.New(gradeerr.KindConfiguration, "verify "+filepath.Base(v.Image),
			fmt.Errorf("%w: proposal has %d questions, key has %d", ErrKeyChanged, len(proposed), len(questions)))
	}
	return nil
}

// WriteProposal writes one "n:answer" line per question to path.
func WriteProposal(path string, questions []int, proposal extract.Proposal) error {
	entries := make([]answerkey.Entry, 0, len(questions))
	for _, q := range questions {
		entries = append(entries, answerkey.Entry{Question: q, Answer: proposal[q]})
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := answerkey.WriteEntries(f, entries); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
