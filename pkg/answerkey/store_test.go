package answerkey

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"grader/pkg/gradeerr"
)

func writeKeyFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "answer_key.txt")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	return p
}

func mustParse(t *testing.T, compact string) Key {
	t.Helper()
	k, err := Parse(compact)
	if err != nil {
		t.Fatalf("parse %q: %v", compact, err)
	}
	return k
}

func TestOpenMissingFileInstallsDefault(t *testing.T) {
	p := filepath.Join(t.TempDir(), "answer_key.txt")
	s, err := Open(p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := s.Key().String(); got != "BECBGAAAED" {
		t.Fatalf("expected default key got %q", got)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Fatalf("default key must not be written on load, stat err=%v", err)
	}
}

func TestOpenMissingFileWithEmptyDefaultFails(t *testing.T) {
	p := filepath.Join(t.TempDir(), "answer_key.txt")
	_, err := Open(p, WithDefault(Key{}))
	if !errors.Is(err, gradeerr.ErrConfiguration) {
		t.Fatalf("expected configuration error got %v", err)
	}
}

func TestLoadDropsMalformedLines(t *testing.T) {
	p := writeKeyFile(t, "1:b\nnot a line\nx:C\n2 : e\n\n3:Cat\n4:9\n")
	s, err := Open(p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := s.Key().String(); got != "BEC" {
		t.Fatalf("expected BEC got %q", got)
	}
}

func TestLoadLastDuplicateWins(t *testing.T) {
	k, err := Decode(strings.NewReader("1:A\n2:B\n1:D\n"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if k.String() != "DB" {
		t.Fatalf("expected DB got %q", k.String())
	}
}

func TestLoadGappedFileUsesFallback(t *testing.T) {
	p := writeKeyFile(t, "1:A\n3:C\n")
	s, err := Open(p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !s.Key().Equal(FallbackKey()) {
		t.Fatalf("expected fallback key got %q", s.Key().String())
	}
	if _, err := Decode(strings.NewReader("1:A\n3:C\n")); !errors.Is(err, gradeerr.ErrConfiguration) {
		t.Fatalf("expected configuration error for gapped key got %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nested", "key.txt")
	for _, compact := range []string{"A", "BECBGAAAED", "ZYXWVUTSRQPONMLKJ"} {
		k := mustParse(t, compact)
		if err := Save(p, k); err != nil {
			t.Fatalf("save: %v", err)
		}
		got, err := Load(p)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if !got.Equal(k) {
			t.Fatalf("round trip mismatch: got %q want %q", got.String(), compact)
		}
	}
}

func TestSaveWritesAscendingLines(t *testing.T) {
	p := filepath.Join(t.TempDir(), "key.txt")
	if err := Save(p, mustParse(t, "bec")); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, _ := os.ReadFile(p)
	if string(data) != "1:B\n2:E\n3:C\n" {
		t.Fatalf("unexpected file content %q", data)
	}
	entries, _ := os.ReadDir(filepath.Dir(p))
	if len(entries) != 1 {
		t.Fatalf("temporary file left behind: %v", entries)
	}
}

func TestAddAndRemoveQuestion(t *testing.T) {
	p := writeKeyFile(t, "1:B\n2:E\n")
	s, err := Open(p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	n, err := s.AddQuestion()
	if err != nil || n != 3 {
		t.Fatalf("add: n=%d err=%v", n, err)
	}
	if a, _ := s.Key().Answer(3); a != "A" {
		t.Fatalf("expected placeholder A got %q", a)
	}
	onDisk, _ := Load(p)
	if onDisk.String() != "BEA" {
		t.Fatalf("add not persisted, disk=%q", onDisk.String())
	}
	for _, want := range []int{3, 2} {
		got, err := s.RemoveQuestion()
		if err != nil || got != want {
			t.Fatalf("remove: got %d err=%v want %d", got, err, want)
		}
	}
	_, err = s.RemoveQuestion()
	if !errors.Is(err, ErrLastQuestion) || !errors.Is(err, gradeerr.ErrValidation) {
		t.Fatalf("expected last-question guard got %v", err)
	}
	if s.Key().String() != "B" {
		t.Fatalf("key must keep one question, got %q", s.Key().String())
	}
}

func TestApplyBulkUpdateNormalizes(t *testing.T) {
	p := writeKeyFile(t, "1:B\n2:E\n3:C\n")
	s, _ := Open(p)
	if err := s.ApplyBulkUpdate(map[int]string{1: " d ", 2: "apple", 3: "C", 4: "e"}); err != nil {
		t.Fatalf("bulk update: %v", err)
	}
	if got := s.Key().String(); got != "DACE" {
		t.Fatalf("expected DACE got %q", got)
	}
	onDisk, _ := Load(p)
	if onDisk.String() != "DACE" {
		t.Fatalf("bulk update not persisted, disk=%q", onDisk.String())
	}
}

func TestApplyBulkUpdateRejectsInvalidAnswer(t *testing.T) {
	for _, bad := range []string{"", "   ", "1ABC", "?"} {
		p := writeKeyFile(t, "1:B\n2:E\n3:C\n")
		before, _ := os.ReadFile(p)
		s, _ := Open(p)
		err := s.ApplyBulkUpdate(map[int]string{1: "A", 2: bad, 3: "D"})
		if !errors.Is(err, gradeerr.ErrValidation) {
			t.Fatalf("answer %q: expected validation error got %v", bad, err)
		}
		if q, ok := gradeerr.QuestionOf(err); !ok || q != 2 {
			t.Fatalf("answer %q: expected question 2 reported got %d", bad, q)
		}
		if s.Key().String() != "BEC" {
			t.Fatalf("answer %q: key changed in memory to %q", bad, s.Key().String())
		}
		after, _ := os.ReadFile(p)
		if !bytes.Equal(before, after) {
			t.Fatalf("answer %q: key file changed", bad)
		}
	}
}

func TestApplyBulkUpdateReportsFirstInvalid(t *testing.T) {
	s, _ := Open(writeKeyFile(t, "1:B\n2:E\n3:C\n"))
	err := s.ApplyBulkUpdate(map[int]string{3: "", 1: "A", 2: "1"})
	if q, _ := gradeerr.QuestionOf(err); q != 2 {
		t.Fatalf("expected first invalid question 2 got %d (%v)", q, err)
	}
}

func TestApplyBulkUpdateRejectsGap(t *testing.T) {
	s, _ := Open(writeKeyFile(t, "1:B\n2:E\n3:C\n"))
	err := s.ApplyBulkUpdate(map[int]string{1: "A", 3: "C"})
	if q, _ := gradeerr.QuestionOf(err); q != 2 {
		t.Fatalf("expected missing question 2 reported got %v", err)
	}
	if s.Key().String() != "BEC" {
		t.Fatalf("key changed: %q", s.Key().String())
	}
}

func TestFailedPersistKeepsKey(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "key.txt")
	s, err := Open(p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	// A regular file in place of a parent directory makes every save fail.
	s.path = filepath.Join(p, "sub", "key.txt")
	if err := os.WriteFile(p, []byte("1:A\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddQuestion(); err == nil {
		t.Fatalf("expected persist error")
	}
	if s.Key().Len() != 10 {
		t.Fatalf("in-memory key changed after failed save: %q", s.Key().String())
	}
}

func TestKeySnapshotIsIndependent(t *testing.T) {
	s, _ := Open(writeKeyFile(t, "1:B\n2:E\n"))
	snap := s.Key()
	if _, err := s.AddQuestion(); err != nil {
		t.Fatalf("add: %v", err)
	}
	if snap.Len() != 2 {
		t.Fatalf("snapshot changed by later edit: %q", snap.String())
	}
}

func TestApplyBulkUpdateRejectsNonPositiveQuestion(t *testing.T) {
	s, _ := Open(writeKeyFile(t, "1:B\n2:E\n"))
	err := s.ApplyBulkUpdate(map[int]string{0: "A", 1: "B", 2: "C"})
	if !errors.Is(err, gradeerr.ErrValidation) || !strings.Contains(err.Error(), "question 0 is not a positive number") {
		t.Fatalf("expected non-positive question error got %v", err)
	}
	if s.Key().String() != "BE" {
		t.Fatalf("key changed: %q", s.Key().String())
	}
}

func TestConcurrentEditsStayConsistent(t *testing.T) {
	p := writeKeyFile(t, "1:B\n2:E\n3:C\n")
	s, err := Open(p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var wg sync.WaitGroup
	errs := make(chan error, 60)
	for i := 0; i < 20; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			// Every remove follows its own add, so the key never drops below
			// three questions.
			if _, err := s.AddQuestion(); err != nil {
				errs <- err
				return
			}
			if _, err := s.RemoveQuestion(); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			if k := s.Key(); k.Len() < 3 {
				errs <- fmt.Errorf("snapshot shrank to %q", k.String())
			}
		}()
		go func() {
			defer wg.Done()
			_ = s.Key().Questions()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent edit: %v", err)
	}
	if got := s.Key().String(); got != "BEC" {
		t.Fatalf("in-memory key = %q", got)
	}
	disk, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !disk.Equal(s.Key()) {
		t.Fatalf("disk key %q differs from memory %q", disk.String(), s.Key().String())
	}
}
