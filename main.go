package main

import (
	"fmt"
	"log"
	"os"

	"grader/pkg/config"
	"grader/pkg/extract"
	"grader/pkg/ocr/tesseract"
	"grader/pkg/pipeline"
	"grader/pkg/preprocess"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.InsecureSecret() {
		log.Printf("WARN JWT_SECRET not set, using development secret")
	}

	db, err := openDB(cfg)
	if err != nil {
		log.Fatal("failed to connect postgres database: ", err)
	}

	// `./grader migrate` runs AutoMigrate and seeding then exits.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		migrateDB(db, true)
		fmt.Println("migration and seeding completed")
		return
	}
	migrateDB(db, cfg.AutoMigrate)
	ensureUploadBase(cfg.UploadBase)

	store, err := cfg.OpenStore()
	if err != nil {
		log.Fatalf("answer key: %v", err)
	}
	log.Printf("answer key %s: %d questions", store.Path(), store.Key().Len())

	p := pipeline.New(
		preprocess.New(cfg.PreprocessOptions()),
		extract.New(tesseract.New(), cfg.OCRParams()),
		store,
	)
	s := newServer(db, []byte(cfg.JWTSecret), p, cfg.UploadBase)

	r := gin.Default()
	s.setupRoutes(r)
	if err := r.Run(cfg.Addr); err != nil {
		log.Fatal(err)
	}
}
