package main

import (
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"grader/pkg/pipeline"
)

// maxProcessedBytes bounds the size of archived sheet images.
const maxProcessedBytes = 1_000_000

// moveToProcessed moves a graded sheet and its sidecar files into
// processedDir, downscaling images larger than maxProcessedBytes.
func moveToProcessed(srcFullPath, processedDir string) error {
	if err := os.MkdirAll(processedDir, 0o755); err != nil {
		return err
	}
	dst := filepath.Join(processedDir, filepath.Base(srcFullPath))
	if err := moveImage(srcFullPath, dst); err != nil {
		return err
	}
	for _, side := range []string{
		pipeline.ProposedPath(srcFullPath),
		pipeline.ConfirmedPath(srcFullPath),
		hocrPath(srcFullPath),
	} {
		if !exists(side) {
			continue
		}
		if err := moveFile(side, filepath.Join(processedDir, filepath.Base(side))); err != nil {
			return err
		}
	}
	return nil
}

func moveImage(src, dst string) error {
	fi, err := os.Stat(src)
	if err != nil {
		return err
	}
	if fi.Size() <= maxProcessedBytes {
		return moveFile(src, dst)
	}
	img, err := imaging.Open(src)
	if err != nil { // cannot decode, keep the original bytes
		return moveFile(src, dst)
	}
	// Size roughly scales with area.
	scale := math.Sqrt(float64(maxProcessedBytes) / float64(fi.Size()))
	scale = math.Max(0.1, math.Min(scale, 0.95))
	w := int(math.Max(1, math.Round(float64(img.Bounds().Dx())*scale)))
	h := int(math.Max(1, math.Round(float64(img.Bounds().Dy())*scale)))
	if err := imaging.Save(imaging.Resize(img, w, h, imaging.Lanczos), dst); err != nil {
		return moveFile(src, dst)
	}
	return os.Remove(src)
}

// moveFile renames src to dst, falling back to copy+remove across devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
