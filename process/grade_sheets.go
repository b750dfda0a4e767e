package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"grader/models"
	"grader/pkg/config"
	"grader/pkg/extract"
	"grader/pkg/grading"
	"grader/pkg/ocr"
	"grader/pkg/ocr/tesseract"
	"grader/pkg/pipeline"
	"grader/pkg/preprocess"
)

var verbose bool

// Main: scans a directory of answer sheet images. New sheets get a
// <image>.proposed file; once a human saves <image>.confirmed the sheet is
// graded, stored and moved to the processed directory. Optional watch mode.
func main() {
	dirFlag := flag.String("dir", "sheets", "directory to scan for answer sheet images")
	processed := flag.String("processed", "", "directory graded sheets are moved to (default <dir>/processed)")
	username := flag.String("user", "admin", "user the grade records are stored for")
	dryRun := flag.Bool("dry-run", false, "Skip all DB queries and writes; grade and move files only")
	watch := flag.Bool("watch", false, "Watch directory for new sheets and confirmations")
	flag.BoolVar(&verbose, "verbose", false, "Verbose per-file logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	store, err := cfg.OpenStore()
	if err != nil {
		log.Fatalf("answer key: %v", err)
	}
	b := &batch{
		dir:          *dirFlag,
		processedDir: *processed,
		pipeline: pipeline.New(
			preprocess.New(cfg.PreprocessOptions()),
			extract.New(tesseract.New(), cfg.OCRParams()),
			store,
		),
	}
	if b.processedDir == "" {
		b.processedDir = filepath.Join(b.dir, "processed")
	}
	if *dryRun {
		log.Printf("Dry-run: grading %s without storing results", b.dir)
	} else {
		b.db = mustInitDB(cfg)
		b.userID = resolveUser(b.db, *username)
	}

	ctx := context.Background()
	files := listImageFiles(b.dir)
	log.Printf("Scanning %d files (key: %d questions)", len(files), store.Key().Len())
	counts := map[sheetState]int{}
	for _, f := range files {
		counts[b.processSheet(ctx, f)]++
	}
	log.Printf("Done: graded=%d proposed=%d waiting=%d failed=%d",
		counts[stateGraded], counts[stateProposed], counts[stateWaiting], counts[stateFailed])

	if *watch {
		if err := watchDirectory(ctx, b); err != nil {
			log.Fatalf("watch failed: %v", err)
		}
	}
}

func logV(format string, args ...any) {
	if verbose {
		log.Printf(format, args...)
	}
}

func mustInitDB(cfg config.Config) *gorm.DB {
	if cfg.DBDSN == "" {
		log.Fatalf("DB_DSN must be set in environment to run this tool (or pass -dry-run)")
	}
	gdb, err := gorm.Open(postgres.Open(cfg.DBDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	return gdb
}

func resolveUser(db *gorm.DB, username string) uint {
	var u models.User
	if err := db.Where("username = ?", username).First(&u).Error; err != nil {
		log.Fatalf("user %q not found: %v", username, err)
	}
	return u.ID
}

type sheetState int

const (
	stateFailed sheetState = iota
	stateProposed
	stateWaiting
	stateGraded
)

// batch grades the sheets of one directory, one at a time.
type batch struct {
	dir          string
	processedDir string
	pipeline     *pipeline.Pipeline
	db           *gorm.DB // nil in dry-run
	userID       uint
}

// hocrPath is where `tesseract <image> <base> hocr` leaves its output.
func hocrPath(image string) string {
	return strings.TrimSuffix(image, filepath.Ext(image)) + ".hocr"
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// processSheet advances one sheet as far as its sidecar files allow.
func (b *batch) processSheet(ctx context.Context, name string) sheetState {
	path := filepath.Join(b.dir, name)
	switch {
	case exists(pipeline.ConfirmedPath(path)):
		return b.gradeConfirmed(ctx, name, path)
	case exists(pipeline.ProposedPath(path)):
		logV("WAIT confirmation %s", name)
		return stateWaiting
	}

	p := b.pipeline
	if h := hocrPath(path); exists(h) {
		logV("OCR source %s", filepath.Base(h))
		p = p.WithRecognizer(ocr.HOCRRecognizer{Path: h})
	}
	out, err := p.GradeSheet(ctx, path, pipeline.SidecarVerifier{Image: path})
	if out.RecognitionErr != nil {
		log.Printf("WARN recognition %s: %v (fill in %s by hand)", name, out.RecognitionErr, filepath.Base(pipeline.ProposedPath(path)))
	}
	if errors.Is(err, pipeline.ErrNotConfirmed) {
		log.Printf("NEW proposal file=%s answers=%d", name, len(out.Proposal))
		return stateProposed
	}
	if err != nil {
		log.Printf("WARN %s: %v", name, err)
		return stateFailed
	}
	// A confirmation appeared between the checks above and the verifier.
	return b.finish(name, path, out.Result)
}

// gradeConfirmed grades a sheet whose confirmation exists without running
// recognition again.
func (b *batch) gradeConfirmed(ctx context.Context, name, path string) sheetState {
	key := b.pipeline.Store.Key()
	confirmed, err := pipeline.SidecarVerifier{Image: path}.Verify(ctx, key.Questions(), nil)
	if err != nil {
		log.Printf("WARN read confirmation %s: %v", name, err)
		return stateFailed
	}
	res, err := grading.Grade(key, confirmed)
	if err != nil {
		log.Printf("WARN grade %s: %v", name, err)
		return stateFailed
	}
	return b.finish(name, path, res)
}

func (b *batch) finish(name, path string, res grading.Result) sheetState {
	log.Printf("GRADED file=%s score=%s", name, res.Score())
	for _, r := range res.Records {
		logV("  %d: %s (key %s) correct=%v", r.Question, r.StudentAnswer, r.CorrectAnswer, r.Correct)
	}
	storePath := filepath.ToSlash(filepath.Join(b.processedDir, name))
	if b.db != nil {
		rec := models.NewGradeRecord(b.userID, name, storePath, res)
		if err := b.db.Create(&rec).Error; err != nil {
			log.Printf("ERROR store grade %s: %v", name, err)
			return stateFailed
		}
		logV("stored grade record id=%d", rec.ID)
	}
	if err := moveToProcessed(path, b.processedDir); err != nil {
		log.Printf("WARN failed to move processed file %s: %v", name, err)
	} else {
		logV("moved processed %s to %s", name, b.processedDir)
	}
	return stateGraded
}

func listImageFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !isSupportedExt(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}

func isSupportedExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".bmp", ".gif", ".tif", ".tiff", ".webp":
		return true
	}
	return false
}
