package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"gorm.io/gorm"

	"grader/models"
)

// Summary aggregates the graded sheets of one user over a period.
type Summary struct {
	Sheets      int
	MeanPercent float64
	Best        float64
	Worst       float64
	// Misses counts wrong or blank answers per question number.
	Misses map[int]int
}

// Summarize folds records into a Summary. Best and Worst are zero when
// there are no records.
func Summarize(records []models.GradeRecord) Summary {
	s := Summary{Sheets: len(records), Misses: map[int]int{}}
	if len(records) == 0 {
		return s
	}
	s.Best, s.Worst = records[0].Percentage, records[0].Percentage
	var sum float64
	for _, r := range records {
		sum += r.Percentage
		if r.Percentage > s.Best {
			s.Best = r.Percentage
		}
		if r.Percentage < s.Worst {
			s.Worst = r.Percentage
		}
		for _, it := range r.Items {
			if !it.Correct {
				s.Misses[it.Question]++
			}
		}
	}
	s.MeanPercent = sum / float64(len(records))
	return s
}

// HardestQuestions returns the n questions missed most often, ties broken
// by question number.
func (s Summary) HardestQuestions(n int) []int {
	qs := make([]int, 0, len(s.Misses))
	for q := range s.Misses {
		qs = append(qs, q)
	}
	sort.Slice(qs, func(i, j int) bool {
		if s.Misses[qs[i]] != s.Misses[qs[j]] {
			return s.Misses[qs[i]] > s.Misses[qs[j]]
		}
		return qs[i] < qs[j]
	})
	if len(qs) > n {
		qs = qs[:n]
	}
	return qs
}

// MonthRange parses month (YYYY-MM) into its UTC [start, end) bounds.
func MonthRange(month string) (time.Time, time.Time, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid month format, expected YYYY-MM: %w", err)
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), nil
}

// RunReport writes a month-bounded grading report for username (month in
// YYYY-MM) to w and optionally lists every graded sheet.
func RunReport(db *gorm.DB, w io.Writer, username, month string, list bool) error {
	var user models.User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		return fmt.Errorf("user not found: %w", err)
	}
	start, end, err := MonthRange(month)
	if err != nil {
		return err
	}

	var rows []models.GradeRecord
	if err := db.Preload("Items", models.ItemsByQuestion).
		Where("user_id = ? AND created_at >= ? AND created_at < ?", user.ID, start, end).
		Order("id").Find(&rows).Error; err != nil {
		return fmt.Errorf("fetch grades failed: %w", err)
	}
	s := Summarize(rows)

	fmt.Fprintf(w, "Report for user=%s month=%s (UTC):\n", user.Username, month)
	fmt.Fprintf(w, "  sheets=%d mean=%.1f%% best=%.1f%% worst=%.1f%%\n", s.Sheets, s.MeanPercent, s.Best, s.Worst)
	for _, q := range s.HardestQuestions(5) {
		fmt.Fprintf(w, "  question %d missed %d time(s)\n", q, s.Misses[q])
	}
	if list {
		for _, r := range rows {
			fmt.Fprintf(w, "%d|%s|%s|%s\n", r.ID, r.FileName, r.Result().Score(), r.CreatedAt.Format(time.RFC3339))
		}
	}
	return nil
}
