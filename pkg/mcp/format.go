package mcp

import (
	"fmt"
	"strings"

	"github.com/pario-ai/imagine/pkg/models"
)

// formatSessions formats namespaces as a text table.
func formatSessions(infos []models.NamespaceInfo) string {
	if len(infos) == 0 {
		return "No sessions found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-42s %5s %-20s\n", "Session ID", "Keys", "Updated")
	b.WriteString(strings.Repeat("-", 69) + "\n")
	for _, info := range infos {
		fmt.Fprintf(&b, "%-42s %5d %-20s\n", info.Name, info.Keys, info.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

// formatLogs formats log entries as a text table.
func formatLogs(entries []models.LogEntry) string {
	if len(entries) == 0 {
		return "No logs available."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%4s  %-7s %9s  %-40s %s\n", "#", "Status", "Time (ms)", "Prompt", "Result")
	b.WriteString(strings.Repeat("-", 100) + "\n")
	for i, e := range entries {
		result := e.ImageURL
		if e.Status == models.StatusFailed {
			result = "error: " + e.Error
		}
		if strings.HasPrefix(result, "data:") {
			result = "(inline image)"
		}
		fmt.Fprintf(&b, "%4d  %-7s %9d  %-40s %s\n", i+1, e.Status, e.GenerationTime, clip(e.Prompt, 40), result)
	}
	return b.String()
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
