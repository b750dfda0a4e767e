// Package pipeline runs one answer sheet through preprocessing, answer
// extraction, human verification and grading, strictly in that order.
package pipeline

import (
	"context"
	"errors"
	"log"
	"path/filepath"

	"grader/pkg/answerkey"
	"grader/pkg/extract"
	"grader/pkg/gradeerr"
	"grader/pkg/grading"
	"grader/pkg/ocr"
	"grader/pkg/preprocess"
)

// Pipeline wires the grading stages together. The key is read from Store
// once per sheet, so edits made while a sheet is in flight do not affect it.
type Pipeline struct {
	Pre       *preprocess.Preprocessor
	Extractor *extract.Extractor
	Store     *answerkey.Store
}

func New(pre *preprocess.Preprocessor, ex *extract.Extractor, store *answerkey.Store) *Pipeline {
	return &Pipeline{Pre: pre, Extractor: ex, Store: store}
}

// WithRecognizer returns a copy of p whose extractor uses r with the same
// parameters.
func (p *Pipeline) WithRecognizer(r ocr.Recognizer) *Pipeline {
	cp := *p
	cp.Extractor = extract.New(r, p.Extractor.Params)
	return &cp
}

// Sheet is a sheet waiting for verification: the key snapshot it was read
// against and what recognition proposed.
type Sheet struct {
	Path           string
	Key            answerkey.Key
	Proposal       extract.Proposal
	RecognitionErr error
}

// Questions lists the key questions the verifier must cover.
func (s *Sheet) Questions() []int { return s.Key.Questions() }

// Grade scores confirmed against the sheet's key snapshot.
func (s *Sheet) Grade(confirmed grading.Confirmed) (grading.Result, error) {
	return grading.Grade(s.Key, confirmed)
}

// Propose snapshots the key, enhances the image and extracts answers. A
// load or configuration failure aborts; a recognition failure is kept on
// the Sheet with an empty proposal so that answers can be entered by hand.
func (p *Pipeline) Propose(ctx context.Context, path string) (*Sheet, error) {
	key := p.Store.Key()
	if key.Len() == 0 {
		return nil, gradeerr.New(gradeerr.KindConfiguration, "propose", errors.New("answer key has no questions"))
	}
	img, err := p.Pre.Process(path)
	if err != nil {
		return nil, err
	}
	proposal, recErr := p.Extractor.Extract(ctx, img, key)
	log.Printf("PROPOSED %s answers=%d/%d", filepath.Base(path), len(proposal), key.Len())
	return &Sheet{Path: path, Key: key, Proposal: proposal, RecognitionErr: recErr}, nil
}

// Outcome is everything a finished run produced.
type Outcome struct {
	Proposal       extract.Proposal
	Confirmed      grading.Confirmed
	Result         grading.Result
	RecognitionErr error
}

// GradeSheet runs the whole pipeline for the sheet at path, handing the
// proposal to v and grading only what v confirms.
func (p *Pipeline) GradeSheet(ctx context.Context, path string, v Verifier) (Outcome, error) {
	sheet, err := p.Propose(ctx, path)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Proposal: sheet.Proposal, RecognitionErr: sheet.RecognitionErr}
	confirmed, err := v.Verify(ctx, sheet.Questions(), sheet.Proposal)
	if err != nil {
		return out, err
	}
	out.Confirmed = confirmed
	out.Result, err = sheet.Grade(confirmed)
	return out, err
}
