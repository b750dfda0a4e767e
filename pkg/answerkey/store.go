package answerkey

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"sort"
	"sync"

	"grader/pkg/gradeerr"
)

// ErrLastQuestion is returned when removing a question would empty the key.
var ErrLastQuestion = errors.New("answer key must keep at least one question")

// Store owns the canonical answer key and its file. It is safe for
// concurrent use; mutations are serialized and persisted before they become
// visible, so a failed save leaves the previous key in place.
type Store struct {
	mu       sync.RWMutex
	path     string
	key      Key
	def      Key
	fallback Key
}

type Option func(*Store)

// WithDefault overrides the key installed when the file does not exist.
func WithDefault(k Key) Option {
	return func(s *Store) { s.def = k.Clone() }
}

// WithFallback overrides the key installed when the file exists but is unusable.
func WithFallback(k Key) Option {
	return func(s *Store) { s.fallback = k.Clone() }
}

// Open creates a store for path and loads it.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{path: path, def: DefaultKey(), fallback: FallbackKey()}
	for _, o := range opts {
		o(s)
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

// Key returns a snapshot of the current key.
func (s *Store) Key() Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key.Clone()
}

// Load (re)reads the key file. A missing file installs the default key and
// an unusable one installs the fallback key; neither is written back. Load
// only fails when the key it would install is itself empty.
func (s *Store) Load() error {
	k, err := Load(s.path)
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case err == nil:
		s.key = k
		return nil
	case errors.Is(err, fs.ErrNotExist):
		if s.def.Len() == 0 {
			return gradeerr.New(gradeerr.KindConfiguration, "load answer key", fmt.Errorf("%s missing and default key is empty", s.path))
		}
		log.Printf("answer key %s not found; using default key (%d questions)", s.path, s.def.Len())
		s.key = s.def.Clone()
		return nil
	default:
		if s.fallback.Len() == 0 {
			return gradeerr.New(gradeerr.KindConfiguration, "load answer key", fmt.Errorf("%s unusable and fallback key is empty: %w", s.path, err))
		}
		log.Printf("WARN answer key %s unusable (%v); using fallback key (%d questions)", s.path, err, s.fallback.Len())
		s.key = s.fallback.Clone()
		return nil
	}
}

// Save persists the current key.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Save(s.path, s.key)
}

// commit persists next and installs it. Caller holds the write lock.
func (s *Store) commit(op string, next Key) error {
	if err := Save(s.path, next); err != nil {
		return fmt.Errorf("%s: persist answer key: %w", op, err)
	}
	s.key = next
	return nil
}

// AddQuestion appends question max+1 with the placeholder answer and
// returns its number.
func (s *Store) AddQuestion() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.key.with(Placeholder)
	if err := s.commit("add question", next); err != nil {
		return 0, err
	}
	return next.Len(), nil
}

// RemoveQuestion drops the highest-numbered question and returns its
// number. The last remaining question cannot be removed.
func (s *Store) RemoveQuestion() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.key.Len()
	if n <= 1 {
		return 0, gradeerr.Question("remove question", n, ErrLastQuestion)
	}
	if err := s.commit("remove question", s.key.withoutLast()); err != nil {
		return 0, err
	}
	return n, nil
}

// ApplyBulkUpdate replaces the whole key. Candidate questions must form
// 1..N; every answer must be non-blank and start with a letter. Entries are
// checked in ascending order and the first bad one aborts the update with a
// validation error naming its question. Accepted answers keep only their
// uppercase first letter.
func (s *Store) ApplyBulkUpdate(candidates map[int]string) error {
	const op = "update answer key"
	if len(candidates) == 0 {
		return gradeerr.New(gradeerr.KindValidation, op, errEmpty)
	}
	qs := make([]int, 0, len(candidates))
	for q := range candidates {
		qs = append(qs, q)
	}
	sort.Ints(qs)
	if qs[0] < 1 {
		return gradeerr.New(gradeerr.KindValidation, op, fmt.Errorf("question %d is not a positive number", qs[0]))
	}
	normalized := make(map[int]string, len(candidates))
	for i, q := range qs {
		if q != i+1 {
			return gradeerr.Question(op, i+1, errors.New("question numbers must be contiguous from 1"))
		}
		a, ok := LeadingLetter(candidates[q])
		if !ok {
			return gradeerr.Question(op, q, fmt.Errorf("answer %q must start with a letter (A-Z)", candidates[q]))
		}
		normalized[q] = a
	}
	next, err := FromMap(normalized)
	if err != nil {
		return gradeerr.New(gradeerr.KindValidation, op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(op, next)
}
