package web

import (
	"html/template"
	"strings"

	"github.com/pario-ai/imagine/pkg/models"
)

var templateFuncs = template.FuncMap{
	"imageSrc":   imageSrc,
	"usageClass": usageClass,
}

// imageSrc marks provider image references as safe for src attributes.
// html/template rejects data: URLs unless they are typed.
func imageSrc(s string) template.URL {
	switch {
	case strings.HasPrefix(s, "https://"), strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "data:image/"):
		return template.URL(s) // #nosec G203
	default:
		return template.URL("#")
	}
}

// usageClass colours the usage badge: green under half the quota, yellow
// under 80%, red beyond.
func usageClass(u models.UsageInfo) string {
	if u.DailyQuota <= 0 {
		return "usage-high"
	}
	pct := float64(u.Used) / float64(u.DailyQuota) * 100
	switch {
	case pct < 50:
		return "usage-low"
	case pct < 80:
		return "usage-mid"
	default:
		return "usage-high"
	}
}

func hasImage(logs []models.LogEntry) bool {
	for _, e := range logs {
		if e.ImageURL != "" {
			return true
		}
	}
	return false
}
