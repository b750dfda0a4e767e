package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"grader/pkg/answerkey"
	"grader/pkg/extract"
	"grader/pkg/grading"
)

// promptVerifier asks for every question in turn. Enter keeps the proposed
// answer, "-" clears it, a letter replaces it and anything else is asked
// again. At end of input the remaining proposals are kept.
type promptVerifier struct {
	in  *bufio.Reader
	out io.Writer
}

func (v *promptVerifier) Verify(ctx context.Context, questions []int, proposal extract.Proposal) (grading.Confirmed, error) {
	fmt.Fprintln(v.out, "Confirm answers (Enter keeps, - clears):")
	c := make(grading.Confirmed, len(questions))
	eof := false
	for _, q := range questions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		def := proposal[q]
		if eof {
			c[q] = def
			continue
		}
		for {
			fmt.Fprintf(v.out, "  %d [%s]: ", q, def)
			line, err := v.in.ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return nil, err
			}
			if errors.Is(err, io.EOF) {
				eof = true
			}
			a, ok := promptAnswer(line, def)
			if ok || eof {
				if !ok {
					a = def
				}
				c[q] = a
				break
			}
			fmt.Fprintln(v.out, "  enter a single letter, - for no answer")
		}
	}
	return c, nil
}

// promptAnswer reports false for input that is neither empty, "-" nor a
// single letter.
func promptAnswer(line, def string) (string, bool) {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return def, true
	case "-":
		return "", true
	}
	if l, ok := answerkey.LeadingLetter(line); ok && len(line) == 1 {
		return l, true
	}
	return "", false
}

// parseAssignments reads "N=X" arguments.
func parseAssignments(args []string) (map[int]string, error) {
	if len(args) == 0 {
		return nil, errors.New("set needs at least one N=X assignment")
	}
	out := make(map[int]string, len(args))
	for _, a := range args {
		k, val, ok := strings.Cut(a, "=")
		if !ok {
			return nil, fmt.Errorf("bad assignment %q (want N=X)", a)
		}
		q, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("bad question number in %q", a)
		}
		out[q] = strings.TrimSpace(val)
	}
	return out, nil
}
