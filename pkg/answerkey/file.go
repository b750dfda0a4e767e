package answerkey

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"grader/pkg/gradeerr"
)

// Entry is one "<question>:<answer>" line. Answer may be blank in sidecar
// files written for verification; key files never contain blanks.
type Entry struct {
	Question int
	Answer   string
}

// ReadEntries parses "<integer>:<text>" lines. Lines without a separator or
// with a non-integer question are skipped; values are returned trimmed.
func ReadEntries(r io.Reader) ([]Entry, error) {
	var out []Entry
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		q, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			continue
		}
		out = append(out, Entry{Question: q, Answer: strings.TrimSpace(v)})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read entries: %w", err)
	}
	return out, nil
}

// WriteEntries writes entries one "<question>:<answer>" per line in the
// given order.
func WriteEntries(w io.Writer, entries []Entry) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		if _, err := fmt.Fprintf(bw, "%d:%s\n", e.Question, e.Answer); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Decode reads a key file. Malformed lines and lines whose value does not
// start with a letter are dropped; each value keeps only its uppercase first
// letter; a repeated question keeps its last value. The surviving questions
// must form 1..N, otherwise a configuration error is returned.
func Decode(r io.Reader) (Key, error) {
	entries, err := ReadEntries(r)
	if err != nil {
		return Key{}, err
	}
	m := make(map[int]string, len(entries))
	for _, e := range entries {
		a, ok := LeadingLetter(e.Answer)
		if !ok {
			continue
		}
		m[e.Question] = a
	}
	if len(m) == 0 {
		return Key{}, gradeerr.New(gradeerr.KindConfiguration, "decode answer key", errEmpty)
	}
	k, err := FromMap(m)
	if err != nil {
		return Key{}, gradeerr.New(gradeerr.KindConfiguration, "decode answer key", err)
	}
	return k, nil
}

// Load reads and decodes the key file at path. A missing file is reported
// with an error satisfying errors.Is(err, fs.ErrNotExist).
func Load(path string) (Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Key{}, err
	}
	return Decode(bytes.NewReader(data))
}

// Save writes k to path in ascending order, replacing prior content. The
// data goes to a temporary file in the same directory that is renamed over
// path, so a crash mid-write leaves the previous file intact.
func Save(path string, k Key) error {
	var buf bytes.Buffer
	if err := WriteEntries(&buf, k.Entries()); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes())
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()
	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
