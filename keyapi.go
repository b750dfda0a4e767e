package main

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"grader/pkg/answerkey"
	"grader/pkg/gradeerr"

	"github.com/gin-gonic/gin"
)

func keyJSON(k answerkey.Key) gin.H {
	return gin.H{"questions": k.Len(), "answers": k.Map()}
}

func (s *server) getKeyHandler(c *gin.Context) {
	c.JSON(http.StatusOK, keyJSON(s.store.Key()))
}

func (s *server) addQuestionHandler(c *gin.Context) {
	n, err := s.store.AddQuestion()
	if err != nil {
		keyError(c, err)
		return
	}
	log.Printf("KEY add question=%d by=%s", n, c.GetString("username"))
	c.JSON(http.StatusOK, gin.H{"added": n, "key": keyJSON(s.store.Key())})
}

func (s *server) removeQuestionHandler(c *gin.Context) {
	n, err := s.store.RemoveQuestion()
	if err != nil {
		keyError(c, err)
		return
	}
	log.Printf("KEY remove question=%d by=%s", n, c.GetString("username"))
	c.JSON(http.StatusOK, gin.H{"removed": n, "key": keyJSON(s.store.Key())})
}

// updateKeyHandler replaces the whole key: {"answers":{"1":"B","2":"E"}}.
func (s *server) updateKeyHandler(c *gin.Context) {
	var req struct {
		Answers map[string]string `json:"answers" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	candidates := make(map[int]string, len(req.Answers))
	for k, v := range req.Answers {
		q, err := strconv.Atoi(k)
		if err != nil || q <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "question " + strconv.Quote(k) + " is not a positive number"})
			return
		}
		candidates[q] = v
	}
	if err := s.store.ApplyBulkUpdate(candidates); err != nil {
		keyError(c, err)
		return
	}
	log.Printf("KEY update questions=%d by=%s", len(candidates), c.GetString("username"))
	c.JSON(http.StatusOK, keyJSON(s.store.Key()))
}

// keyError maps store failures to HTTP responses. Validation failures name
// the offending question.
func keyError(c *gin.Context, err error) {
	if errors.Is(err, gradeerr.ErrValidation) {
		body := gin.H{"error": err.Error()}
		if q, ok := gradeerr.QuestionOf(err); ok {
			body["question"] = q
		}
		c.JSON(http.StatusBadRequest, body)
		return
	}
	log.Printf("WARN key update failed: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
