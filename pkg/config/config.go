// Package config loads grader settings from an optional YAML file, a local
// .env file and the environment, in increasing order of precedence.
package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"grader/pkg/answerkey"
	"grader/pkg/ocr"
	"grader/pkg/preprocess"
)

// DefaultFile is read when GRADER_CONFIG is unset and the file exists.
const DefaultFile = "grader.yaml"

const devSecret = "dev-insecure-secret-change"

type Config struct {
	Addr          string `yaml:"addr"`
	DBDSN         string `yaml:"db_dsn"`
	AutoMigrate   bool   `yaml:"auto_migrate"`
	JWTSecret     string `yaml:"jwt_secret"`
	AnswerKeyFile string `yaml:"answer_key_file"`
	// DefaultKey replaces the built-in default key in compact form ("BECB...").
	DefaultKey string           `yaml:"default_key"`
	UploadBase string           `yaml:"upload_base"`
	Preprocess PreprocessConfig `yaml:"preprocess"`
	OCR        OCRConfig        `yaml:"ocr"`
}

type PreprocessConfig struct {
	BlockSize int     `yaml:"block_size"`
	Offset    float64 `yaml:"offset"`
	ClipLimit float64 `yaml:"clip_limit"`
	TileGrid  int     `yaml:"tile_grid"`
	MinHeight int     `yaml:"min_height"`
}

type OCRConfig struct {
	Language          string  `yaml:"language"`
	Allowlist         string  `yaml:"allowlist"`
	HeightTolerance   float64 `yaml:"height_tolerance"`
	WidthTolerance    float64 `yaml:"width_tolerance"`
	ContrastThreshold float64 `yaml:"contrast_threshold"`
}

func Default() Config {
	pre := preprocess.DefaultOptions()
	p := ocr.DefaultParams()
	return Config{
		Addr:          ":8081",
		AutoMigrate:   true,
		JWTSecret:     devSecret,
		AnswerKeyFile: "answer_key.txt",
		UploadBase:    "uploads",
		Preprocess: PreprocessConfig{
			BlockSize: pre.BlockSize,
			Offset:    pre.Offset,
			ClipLimit: pre.ClipLimit,
			TileGrid:  pre.TileGrid,
			MinHeight: pre.MinHeight,
		},
		OCR: OCRConfig{
			Language:          p.Language,
			Allowlist:         p.Allowlist,
			HeightTolerance:   p.HeightTolerance,
			WidthTolerance:    p.WidthTolerance,
			ContrastThreshold: p.ContrastThreshold,
		},
	}
}

// Parse decodes YAML over the defaults. Unknown fields are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return Config{}, fmt.Errorf("parse config: multiple YAML documents are not supported")
		}
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Load reads .env, then the YAML file named by GRADER_CONFIG (or
// grader.yaml when present), then applies environment overrides and
// validates the result.
func Load() (Config, error) {
	LoadDotEnv(".env")
	path := os.Getenv("GRADER_CONFIG")
	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if cfg, err = Parse(data); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"ADDR":            &c.Addr,
		"DB_DSN":          &c.DBDSN,
		"JWT_SECRET":      &c.JWTSecret,
		"ANSWER_KEY_FILE": &c.AnswerKeyFile,
		"UPLOAD_BASE":     &c.UploadBase,
		"OCR_LANG":        &c.OCR.Language,
	}
	for name, dst := range str {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("DB_AUTO_MIGRATE"); v != "" {
		switch strings.ToLower(v) {
		case "false", "0", "no":
			c.AutoMigrate = false
		case "true", "1", "yes":
			c.AutoMigrate = true
		default:
			return fmt.Errorf("DB_AUTO_MIGRATE: %q is not a boolean", v)
		}
	}
	return nil
}

// Validate checks value ranges and the default key.
func (c Config) Validate() error {
	var errs []error
	p := c.Preprocess
	if p.BlockSize < 3 || p.BlockSize%2 == 0 {
		errs = append(errs, fmt.Errorf("preprocess.block_size must be odd and >= 3, got %d", p.BlockSize))
	}
	if p.ClipLimit <= 0 {
		errs = append(errs, fmt.Errorf("preprocess.clip_limit must be positive, got %v", p.ClipLimit))
	}
	if p.TileGrid <= 0 {
		errs = append(errs, fmt.Errorf("preprocess.tile_grid must be positive, got %d", p.TileGrid))
	}
	if p.MinHeight < 0 {
		errs = append(errs, fmt.Errorf("preprocess.min_height must not be negative, got %d", p.MinHeight))
	}
	for name, v := range map[string]float64{
		"ocr.height_tolerance":   c.OCR.HeightTolerance,
		"ocr.width_tolerance":    c.OCR.WidthTolerance,
		"ocr.contrast_threshold": c.OCR.ContrastThreshold,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0,1], got %v", name, v))
		}
	}
	if c.AnswerKeyFile == "" {
		errs = append(errs, errors.New("answer_key_file must be set"))
	}
	if c.DefaultKey != "" {
		if _, err := answerkey.Parse(c.DefaultKey); err != nil {
			errs = append(errs, fmt.Errorf("default_key: %w", err))
		}
	}
	return errors.Join(errs...)
}

// InsecureSecret reports whether the JWT secret is the development fallback.
func (c Config) InsecureSecret() bool { return c.JWTSecret == devSecret }

func (c Config) PreprocessOptions() preprocess.Options {
	return preprocess.Options{
		BlockSize: c.Preprocess.BlockSize,
		Offset:    c.Preprocess.Offset,
		ClipLimit: c.Preprocess.ClipLimit,
		TileGrid:  c.Preprocess.TileGrid,
		MinHeight: c.Preprocess.MinHeight,
	}
}

func (c Config) OCRParams() ocr.Params {
	return ocr.Params{
		Allowlist:         c.OCR.Allowlist,
		Language:          c.OCR.Language,
		HeightTolerance:   c.OCR.HeightTolerance,
		WidthTolerance:    c.OCR.WidthTolerance,
		ContrastThreshold: c.OCR.ContrastThreshold,
	}
}

// OpenStore opens the answer key store, installing DefaultKey when set.
func (c Config) OpenStore() (*answerkey.Store, error) {
	var opts []answerkey.Option
	if c.DefaultKey != "" {
		k, err := answerkey.Parse(c.DefaultKey)
		if err != nil {
			return nil, fmt.Errorf("default_key: %w", err)
		}
		opts = append(opts, answerkey.WithDefault(k))
	}
	return answerkey.Open(c.AnswerKeyFile, opts...)
}

// LoadDotEnv loads key=value pairs from path into the environment without
// overwriting variables that are already set. Lines starting with # are
// ignored.
func LoadDotEnv(path string) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if eq := strings.IndexByte(line, '='); eq > 0 {
			key := strings.TrimSpace(line[:eq])
			val := strings.Trim(strings.TrimSpace(line[eq+1:]), `"`)
			if _, exists := os.LookupEnv(key); !exists {
				_ = os.Setenv(key, val)
			}
		}
	}
}
