package models

import (
	"sort"
	"time"

	"gorm.io/gorm"

	"grader/pkg/grading"
)

// GradeRecord is one graded answer sheet.
type GradeRecord struct {
	ID             uint `gorm:"primaryKey"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	UserID         uint        `gorm:"index;not null"`
	FileName       string      `gorm:"size:255;not null"`
	StorePath      string      `gorm:"column:store_path;size:512"` // where the sheet image was kept
	CorrectCount   int         `gorm:"not null"`
	TotalQuestions int         `gorm:"not null"`
	Percentage     float64     `gorm:"not null"`
	Items          []GradeItem `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// GradeItem is the outcome of one question on a graded sheet.
type GradeItem struct {
	ID            uint   `gorm:"primaryKey"`
	GradeRecordID uint   `gorm:"index;not null"`
	Question      int    `gorm:"not null"`
	StudentAnswer string `gorm:"size:16;not null"`
	CorrectAnswer string `gorm:"size:1;not null"`
	Correct       bool   `gorm:"not null"`
}

// NewGradeRecord copies a grading result into a storable record.
func NewGradeRecord(userID uint, fileName, storePath string, res grading.Result) GradeRecord {
	rec := GradeRecord{
		UserID:         userID,
		FileName:       fileName,
		StorePath:      storePath,
		CorrectCount:   res.CorrectCount,
		TotalQuestions: res.TotalQuestions,
		Percentage:     res.Percentage,
		Items:          make([]GradeItem, 0, len(res.Records)),
	}
	for _, r := range res.Records {
		rec.Items = append(rec.Items, GradeItem{
			Question:      r.Question,
			StudentAnswer: r.StudentAnswer,
			CorrectAnswer: r.CorrectAnswer,
			Correct:       r.Correct,
		})
	}
	return rec
}

// ItemsByQuestion orders preloaded grade items by question number:
// db.Preload("Items", models.ItemsByQuestion).
func ItemsByQuestion(db *gorm.DB) *gorm.DB {
	return db.Order("question")
}

// Result rebuilds the grading result stored in rec, records in ascending
// question order whatever order the items were loaded in.
func (rec GradeRecord) Result() grading.Result {
	res := grading.Result{
		CorrectCount:   rec.CorrectCount,
		TotalQuestions: rec.TotalQuestions,
		Percentage:     rec.Percentage,
		Records:        make([]grading.Record, 0, len(rec.Items)),
	}
	for _, it := range rec.Items {
		res.Records = append(res.Records, grading.Record{
			Question:      it.Question,
			StudentAnswer: it.StudentAnswer,
			CorrectAnswer: it.CorrectAnswer,
			Correct:       it.Correct,
		})
	}
	sort.Slice(res.Records, func(i, j int) bool { return res.Records[i].Question < res.Records[j].Question })
	return res
}
