package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"grader/pkg/answerkey"
	"grader/pkg/grading"
)

const (
	colorOK    = lipgloss.Color("42")
	colorBad   = lipgloss.Color("196")
	colorWarn  = lipgloss.Color("220")
	colorMuted = lipgloss.Color("244")
)

// stylize applies optional color styling.
func stylize(text string, noColor bool, color lipgloss.Color) string {
	if noColor {
		return text
	}
	return lipgloss.NewStyle().Foreground(color).Render(text)
}

// renderResult shows the final score above one row per question.
func renderResult(res grading.Result, noColor bool) string {
	title := "Final Score: " + res.Score()
	if !noColor {
		title = lipgloss.NewStyle().Bold(true).Render(title)
	}
	rows := []string{title, stylize(fmt.Sprintf("%4s  %-10s  %-3s", "Q", "Answer", "Key"), noColor, colorMuted)}
	for _, r := range res.Records {
		mark := stylize("✓", noColor, colorOK)
		if !r.Correct {
			mark = stylize("✗", noColor, colorBad)
		}
		rows = append(rows, fmt.Sprintf("%4d  %-10s  %-3s %s", r.Question, r.StudentAnswer, r.CorrectAnswer, mark))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func renderKey(k answerkey.Key) string {
	var b strings.Builder
	fmt.Fprintf(&b, "answer key (%d questions): %s\n", k.Len(), k.String())
	for _, e := range k.Entries() {
		fmt.Fprintf(&b, "%d:%s\n", e.Question, e.Answer)
	}
	return b.String()
}
