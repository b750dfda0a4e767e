package main

import (
	"net/http"

	"grader/models"
	"grader/pkg/answerkey"
	"grader/pkg/pipeline"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// server holds what the handlers share. db may be nil, in which case the
// account endpoints are unavailable and graded sheets are not stored.
type server struct {
	db         *gorm.DB
	jwtSecret  []byte
	pipeline   *pipeline.Pipeline
	store      *answerkey.Store
	uploadBase string
	sessions   *sessionStore
}

func newServer(db *gorm.DB, secret []byte, p *pipeline.Pipeline, uploadBase string) *server {
	return &server{
		db:         db,
		jwtSecret:  secret,
		pipeline:   p,
		store:      p.Store,
		uploadBase: uploadBase,
		sessions:   newSessionStore(sessionTTL),
	}
}

func (s *server) setupRoutes(r *gin.Engine) {
	r.POST("/register", s.registerHandler)
	r.POST("/login", s.loginHandler)
	authGroup := r.Group("")
	authGroup.Use(jwtAuthMiddleware(s.jwtSecret))
	authGroup.GET("/me", meHandler)
	authGroup.POST("/sheets", s.uploadSheetHandler)
	authGroup.POST("/sheets/:id/confirm", s.confirmSheetHandler)
	authGroup.GET("/results", s.listResultsHandler)
	authGroup.GET("/results/:id", s.getResultHandler)
	authGroup.GET("/key", s.getKeyHandler)
	admin := authGroup.Group("")
	admin.Use(requireRole(models.RoleAdministrator))
	admin.POST("/key/questions", s.addQuestionHandler)
	admin.DELETE("/key/questions/last", s.removeQuestionHandler)
	admin.PUT("/key", s.updateKeyHandler)
}

func meHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"username": c.GetString("username"), "role": c.GetString("role")})
}

func (s *server) requireDB(c *gin.Context) bool {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not configured"})
		return false
	}
	return true
}

// userFromContext fetches the user named by the token.
func (s *server) userFromContext(c *gin.Context) (*models.User, bool) {
	uname := c.GetString("username")
	if uname == "" || s.db == nil {
		return nil, false
	}
	var user models.User
	if err := s.db.Where("username = ?", uname).First(&user).Error; err != nil {
		return nil, false
	}
	return &user, true
}

func (s *server) registerHandler(c *gin.Context) {
	if !s.requireDB(c) {
		return
	}
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := registerUser(s.db, req.Username, req.Password); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user registered successfully"})
}

func (s *server) loginHandler(c *gin.Context) {
	if !s.requireDB(c) {
		return
	}
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, role, err := authenticate(s.db, req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	token, err := issueToken(s.jwtSecret, user.Username, role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "login successful", "token": token})
}

// listResultsHandler lists recent graded sheets; admin sees all.
func (s *server) listResultsHandler(c *gin.Context) {
	if !s.requireDB(c) {
		return
	}
	user, ok := s.userFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var items []models.GradeRecord
	q := s.db.Model(&models.GradeRecord{})
	if c.GetString("role") != models.RoleAdministrator {
		q = q.Where("user_id = ?", user.ID)
	}
	if err := q.Order("id desc").Limit(200).Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, items)
}

// getResultHandler returns one graded sheet with its per-question items if
// the caller owns it or is an administrator.
func (s *server) getResultHandler(c *gin.Context) {
	if !s.requireDB(c) {
		return
	}
	user, ok := s.userFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var rec models.GradeRecord
	if err := s.db.Preload("Items", models.ItemsByQuestion).First(&rec, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if c.GetString("role") != models.RoleAdministrator && rec.UserID != user.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	res := rec.Result()
	c.JSON(http.StatusOK, gin.H{"id": rec.ID, "file_name": rec.FileName, "created_at": rec.CreatedAt, "score": res.Score(), "result": res})
}
