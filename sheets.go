package main

import (
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"grader/models"
	"grader/pkg/gradeerr"
	"grader/pkg/grading"
	"grader/pkg/pipeline"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	sessionTTL   = time.Hour
	maxSheetSize = 10 * 1024 * 1024
)

var sheetExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".bmp": true, ".gif": true, ".tif": true, ".tiff": true, ".webp": true}

// session is a sheet awaiting confirmation by the user who uploaded it.
type session struct {
	sheet    *pipeline.Sheet
	username string
	fileName string
	created  time.Time
}

type sessionStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]*session
	now   func() time.Time
}

func newSessionStore(ttl time.Duration) *sessionStore {
	return &sessionStore{ttl: ttl, items: map[string]*session{}, now: time.Now}
}

func (st *sessionStore) put(s *session) string {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sweepLocked()
	id := uuid.NewString()
	s.created = st.now()
	st.items[id] = s
	return id
}

// take removes and returns the session if it belongs to username.
func (st *sessionStore) take(id, username string) (*session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sweepLocked()
	s, ok := st.items[id]
	if !ok || s.username != username {
		return nil, false
	}
	delete(st.items, id)
	return s, true
}

func (st *sessionStore) sweepLocked() {
	cutoff := st.now().Add(-st.ttl)
	for id, s := range st.items {
		if s.created.Before(cutoff) {
			delete(st.items, id)
		}
	}
}

// uploadSheetHandler stores the uploaded sheet, proposes answers and opens
// a verification session.
func (s *server) uploadSheetHandler(c *gin.Context) {
	username := c.GetString("username")
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file missing"})
		return
	}
	if file.Size > maxSheetSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large (max 10MB)"})
		return
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !sheetExts[ext] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported image type " + ext})
		return
	}
	dir := filepath.Join(s.uploadBase, sanitizeName(username))
	if err := os.MkdirAll(dir, 0755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "mkdir failed"})
		return
	}
	fullPath := filepath.Join(dir, uuid.NewString()+ext)
	if err := c.SaveUploadedFile(file, fullPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}

	sheet, err := s.pipeline.Propose(c.Request.Context(), fullPath)
	if err != nil {
		_ = os.Remove(fullPath)
		status := http.StatusInternalServerError
		if errors.Is(err, gradeerr.ErrLoad) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	id := s.sessions.put(&session{sheet: sheet, username: username, fileName: file.Filename})
	resp := gin.H{
		"session_id":        id,
		"questions":         sheet.Questions(),
		"proposal":          pipeline.Prefill(sheet.Questions(), sheet.Proposal),
		"recognition_error": nil,
	}
	if sheet.RecognitionErr != nil {
		resp["recognition_error"] = sheet.RecognitionErr.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// confirmSheetHandler grades the confirmed answers of an open session.
// Answers must be blank or a single letter; a rejected request leaves the
// session open.
func (s *server) confirmSheetHandler(c *gin.Context) {
	var req struct {
		Answers grading.Confirmed `json:"answers"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := pipeline.CheckConfirmed(req.Answers); err != nil {
		body := gin.H{"error": err.Error()}
		if q, ok := gradeerr.QuestionOf(err); ok {
			body["question"] = q
		}
		c.JSON(http.StatusBadRequest, body)
		return
	}
	sess, ok := s.sessions.take(c.Param("id"), c.GetString("username"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	res, err := sess.sheet.Grade(req.Answers)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	log.Printf("GRADED %s user=%s score=%s", sess.fileName, sess.username, res.Score())

	resp := gin.H{"score": res.Score(), "result": res}
	if user, ok := s.userFromContext(c); ok {
		rec := models.NewGradeRecord(user.ID, sess.fileName, sess.sheet.Path, res)
		if err := s.db.Create(&rec).Error; err != nil {
			log.Printf("WARN failed to store grade for %s: %v", sess.fileName, err)
		} else {
			resp["record_id"] = rec.ID
		}
	}
	c.JSON(http.StatusOK, resp)
}

// sanitizeName keeps a username usable as a directory name.
func sanitizeName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
	if s == "" {
		return "_"
	}
	return s
}
