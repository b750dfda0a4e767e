// Package extract turns recognizer detections into a proposed
// question -> answer mapping restricted to the answer key's questions.
package extract

import (
	"context"
	"image"
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"grader/pkg/answerkey"
	"grader/pkg/gradeerr"
	"grader/pkg/ocr"
)

// fragmentRE matches "12.B", "3B", "7 , A": digits, an optional dot or comma
// separator, then one letter.
var fragmentRE = regexp.MustCompile(`(\d+)\s*[.,]?\s*([A-Z])`)

// Proposal maps question numbers to detected letters. It is always a subset
// of the key's questions and is never nil when returned by this package.
type Proposal map[int]string

// Questions returns the proposed question numbers in ascending order.
func (p Proposal) Questions() []int {
	qs := make([]int, 0, len(p))
	for q := range p {
		qs = append(qs, q)
	}
	sort.Ints(qs)
	return qs
}

// Match is one question/answer pair found in a text fragment.
type Match struct {
	Question int
	Answer   string
}

// ParseFragment returns every question/answer pair in text, after trimming
// and uppercasing it. "X" yields nothing.
func ParseFragment(text string) []Match {
	text = strings.ToUpper(strings.TrimSpace(text))
	var out []Match
	for _, m := range fragmentRE.FindAllStringSubmatch(text, -1) {
		q, err := strconv.Atoi(m[1])
		if err != nil || q <= 0 {
			continue
		}
		out = append(out, Match{Question: q, Answer: m[2]})
	}
	return out
}

type candidate struct {
	answer string
	conf   float64
	box    image.Rectangle
}

// beats orders competing readings of one question: higher confidence, then
// the box nearer the top, then nearer the left, then the smaller letter.
func (c candidate) beats(o candidate) bool {
	if c.conf != o.conf {
		return c.conf > o.conf
	}
	if c.box.Min.Y != o.box.Min.Y {
		return c.box.Min.Y < o.box.Min.Y
	}
	if c.box.Min.X != o.box.Min.X {
		return c.box.Min.X < o.box.Min.X
	}
	return c.answer < o.answer
}

// Propose keeps the matches whose question belongs to key and resolves
// duplicates. The result does not depend on the order of dets.
func Propose(dets []ocr.Detection, key answerkey.Key) Proposal {
	best := map[int]candidate{}
	for _, d := range dets {
		for _, m := range ParseFragment(d.Text) {
			if !key.Contains(m.Question) {
				continue
			}
			c := candidate{answer: m.Answer, conf: d.Confidence, box: d.Box}
			if cur, ok := best[m.Question]; !ok || c.beats(cur) {
				best[m.Question] = c
			}
		}
	}
	out := make(Proposal, len(best))
	for q, c := range best {
		out[q] = c.answer
	}
	return out
}

// Extractor runs a recognizer over enhanced sheet images.
type Extractor struct {
	Recognizer ocr.Recognizer
	Params     ocr.Params
}

func New(r ocr.Recognizer, p ocr.Params) *Extractor {
	return &Extractor{Recognizer: r, Params: p}
}

// Extract proposes answers for img against key. When recognition fails it
// returns an empty proposal together with a recognition error; callers may
// continue with manual entry.
func (e *Extractor) Extract(ctx context.Context, img image.Image, key answerkey.Key) (Proposal, error) {
	dets, err := e.Recognizer.Recognize(ctx, img, e.Params)
	if err != nil {
		if gradeerr.KindOf(err) != gradeerr.KindRecognition {
			err = gradeerr.New(gradeerr.KindRecognition, "recognize", err)
		}
		log.Printf("WARN recognition failed: %v", err)
		return Proposal{}, err
	}
	p := Propose(dets, key)
	log.Printf("EXTRACT detections=%d proposed=%d/%d", len(dets), len(p), key.Len())
	return p, nil
}
