// Package answerkey holds the authoritative question -> letter mapping used to
// filter recognized answers and to grade confirmed ones, together with the
// file-backed Store that loads, validates, mutates and persists it.
package answerkey

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Placeholder is the answer given to a freshly added question.
const Placeholder = 'A'

// Key maps question numbers 1..Len() to single uppercase letters. The zero
// Key is empty. Keys are values: methods never mutate the receiver and
// Clone/Map hand out independent copies.
type Key struct {
	answers []rune // answers[q-1]
}

// DefaultKey is installed when no answer-key file exists yet.
func DefaultKey() Key {
	return Key{answers: []rune("BECBGAAAED")}
}

// FallbackKey replaces a key file that exists but cannot be used.
func FallbackKey() Key {
	return Key{answers: []rune("AAAAAAAAAA")}
}

// Parse builds a key from its compact form, one letter per question in
// order ("BEC" is 1:B 2:E 3:C). Lowercase letters are accepted.
func Parse(compact string) (Key, error) {
	compact = strings.TrimSpace(compact)
	out := make([]rune, 0, len(compact))
	for i, r := range compact {
		if !isLetter(r) {
			return Key{}, fmt.Errorf("answer key %q: position %d is not a letter", compact, i+1)
		}
		out = append(out, toUpper(r))
	}
	return Key{answers: out}, nil
}

// FromMap builds a key from question -> answer pairs. Questions must form the
// contiguous range 1..N and every answer must be exactly one letter.
func FromMap(m map[int]string) (Key, error) {
	if err := checkDomain(m); err != nil {
		return Key{}, err
	}
	out := make([]rune, len(m))
	for q, a := range m {
		a = strings.TrimSpace(a)
		if len(a) != 1 || !isLetter(rune(a[0])) {
			return Key{}, fmt.Errorf("question %d: answer %q is not a single letter", q, a)
		}
		out[q-1] = toUpper(rune(a[0]))
	}
	return Key{answers: out}, nil
}

// checkDomain verifies that the keys of m are exactly 1..len(m).
func checkDomain[V any](m map[int]V) error {
	qs := make([]int, 0, len(m))
	for q := range m {
		qs = append(qs, q)
	}
	sort.Ints(qs)
	for i, q := range qs {
		if q != i+1 {
			if q < 1 {
				return fmt.Errorf("question %d: question numbers start at 1", q)
			}
			return fmt.Errorf("question %d: missing, question numbers must be contiguous from 1", i+1)
		}
	}
	return nil
}

var errEmpty = errors.New("answer key is empty")

func (k Key) Len() int { return len(k.answers) }

// Contains reports whether q is one of the key's questions.
func (k Key) Contains(q int) bool { return q >= 1 && q <= len(k.answers) }

// Answer returns the correct letter for question q.
func (k Key) Answer(q int) (string, bool) {
	if !k.Contains(q) {
		return "", false
	}
	return string(k.answers[q-1]), true
}

// Questions lists the key's question numbers in ascending order.
func (k Key) Questions() []int {
	qs := make([]int, len(k.answers))
	for i := range qs {
		qs[i] = i + 1
	}
	return qs
}

func (k Key) Map() map[int]string {
	m := make(map[int]string, len(k.answers))
	for i, r := range k.answers {
		m[i+1] = string(r)
	}
	return m
}

func (k Key) Clone() Key {
	return Key{answers: append([]rune(nil), k.answers...)}
}

func (k Key) Equal(o Key) bool {
	if len(k.answers) != len(o.answers) {
		return false
	}
	for i := range k.answers {
		if k.answers[i] != o.answers[i] {
			return false
		}
	}
	return true
}

// String returns the compact form accepted by Parse.
func (k Key) String() string { return string(k.answers) }

// Entries returns the key as ascending file entries.
func (k Key) Entries() []Entry {
	out := make([]Entry, len(k.answers))
	for i, r := range k.answers {
		out[i] = Entry{Question: i + 1, Answer: string(r)}
	}
	return out
}

func (k Key) with(r rune) Key {
	return Key{answers: append(append(make([]rune, 0, len(k.answers)+1), k.answers...), r)}
}

func (k Key) withoutLast() Key {
	return Key{answers: append([]rune(nil), k.answers[:len(k.answers)-1]...)}
}

func isLetter(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')
}

func toUpper(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - 'a' + 'A'
	}
	return r
}

// LeadingLetter normalizes a free-form answer to its uppercase first letter.
// ok is false when s is blank or does not start with a letter.
func LeadingLetter(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || !isLetter(rune(s[0])) {
		return "", false
	}
	return string(toUpper(rune(s[0]))), true
}
