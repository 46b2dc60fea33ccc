package poller

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/yourusername/launchpad/internal/jobs"
)

// Theme は進捗表示の配色です。
type Theme struct {
	Stage   lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// DefaultTheme は既定の配色です。
var DefaultTheme = Theme{
	Stage:   lipgloss.Color("#5FAFD7"),
	Success: lipgloss.Color("#00D787"),
	Error:   lipgloss.Color("#FF005F"),
	Hint:    lipgloss.Color("#6C6C6C"),
}

var stageLabels = map[jobs.Stage]string{
	jobs.StageStoringConfig:       "Storing configuration",
	jobs.StageCreatingVectorIndex: "Building knowledge base",
	jobs.StageUpdatingConfig:      "Updating configuration",
	jobs.StageDeployingAgent:      "Deploying agent",
	jobs.StageFinalizingAgent:     "Finalizing",
	jobs.StageCompleted:           "Completed",
	jobs.StageFailed:              "Failed",
}

// Label はステージの表示名を返します。
func Label(stage jobs.Stage) string {
	if label, ok := stageLabels[stage]; ok {
		return label
	}
	return string(stage)
}

// Render は1件の状態を1行に整形します。
func (t Theme) Render(st jobs.Status) string {
	var b strings.Builder
	switch st.Stage {
	case jobs.StageCompleted:
		b.WriteString(lipgloss.NewStyle().Foreground(t.Success).Bold(true).Render("✓ " + Label(st.Stage)))
	case jobs.StageFailed:
		b.WriteString(lipgloss.NewStyle().Foreground(t.Error).Bold(true).Render("✗ " + Label(st.Stage)))
		if st.Error != "" {
			b.WriteString(": " + st.Error)
		}
	default:
		b.WriteString(lipgloss.NewStyle().Foreground(t.Stage).Render(fmt.Sprintf("[%s]", Label(st.Stage))))
		if st.Total > 0 {
			fmt.Fprintf(&b, " %d/%d", st.Current, st.Total)
		}
		if st.Message != "" {
			b.WriteString(" " + st.Message)
		}
	}
	if !st.UpdatedAt.IsZero() {
		b.WriteString(" " + lipgloss.NewStyle().Foreground(t.Hint).Italic(true).Render(st.UpdatedAt.Local().Format("15:04:05")))
	}
	return b.String()
}
