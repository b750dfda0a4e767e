// Command grade grades answer sheets from the terminal and edits the answer
// key.
//
//	grade [flags] sheet.png [sheet2.png ...]
//	grade key show|add|remove
//	grade key set 1=B 3=C
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"grader/pkg/answerkey"
	"grader/pkg/config"
	"grader/pkg/extract"
	"grader/pkg/gradeerr"
	"grader/pkg/ocr"
	"grader/pkg/ocr/tesseract"
	"grader/pkg/pipeline"
	"grader/pkg/preprocess"
)

func main() {
	yes := flag.Bool("yes", false, "accept the proposed answers without prompting")
	hocr := flag.String("hocr", "", "read detections from this hOCR file instead of running tesseract")
	noColor := flag.Bool("no-color", os.Getenv("NO_COLOR") != "", "disable colored output")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: grade [flags] sheet.png ...\n       grade key show|add|remove|set N=X ...")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	store, err := cfg.OpenStore()
	if err != nil {
		log.Fatalf("answer key: %v", err)
	}

	if flag.Arg(0) == "key" {
		if err := runKey(os.Stdout, store, flag.Args()[1:]); err != nil {
			log.Fatal(err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var rec ocr.Recognizer = tesseract.New()
	if *hocr != "" {
		rec = ocr.HOCRRecognizer{Path: *hocr}
	}
	p := pipeline.New(preprocess.New(cfg.PreprocessOptions()), extract.New(rec, cfg.OCRParams()), store)

	var v pipeline.Verifier = pipeline.AcceptProposal
	if !*yes {
		v = &promptVerifier{in: bufio.NewReader(os.Stdin), out: os.Stdout}
	}
	failed := 0
	for _, path := range flag.Args() {
		if err := gradeOne(ctx, os.Stdout, p, v, path, *noColor); err != nil {
			log.Printf("ERROR %s: %v", path, err)
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func gradeOne(ctx context.Context, w io.Writer, p *pipeline.Pipeline, v pipeline.Verifier, path string, noColor bool) error {
	fmt.Fprintf(w, "== %s\n", path)
	out, err := p.GradeSheet(ctx, path, v)
	if out.RecognitionErr != nil {
		fmt.Fprintln(w, stylize("Recognition failed; enter the answers by hand.", noColor, colorWarn))
	}
	if err != nil {
		if errors.Is(err, gradeerr.ErrLoad) {
			return fmt.Errorf("cannot read sheet image: %w", err)
		}
		return err
	}
	fmt.Fprintln(w, renderResult(out.Result, noColor))
	return nil
}

// runKey handles the "key" subcommands.
func runKey(w io.Writer, store *answerkey.Store, args []string) error {
	if len(args) == 0 {
		args = []string{"show"}
	}
	switch args[0] {
	case "show":
	case "add":
		q, err := store.AddQuestion()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "added question %d\n", q)
	case "remove":
		q, err := store.RemoveQuestion()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "removed question %d\n", q)
	case "set":
		updates, err := parseAssignments(args[1:])
		if err != nil {
			return err
		}
		next := store.Key().Map()
		for q, a := range updates {
			next[q] = a
		}
		if err := store.ApplyBulkUpdate(next); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown key command %q (want show, add, remove or set)", args[0])
	}
	fmt.Fprint(w, renderKey(store.Key()))
	return nil
}
