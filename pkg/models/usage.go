package models

// UsageInfo is the normalized quota report returned by GET /usage.
type UsageInfo struct {
	DailyQuota int64 `json:"dailyQuota"`
	Used       int64 `json:"used"`
}

// Remaining returns the quota left for today, never negative.
func (u UsageInfo) Remaining() int64 {
	if u.Used >= u.DailyQuota {
		return 0
	}
	return u.DailyQuota - u.Used
}

// ProviderUsage is the raw usage payload of the remote usage provider.
// Pointers distinguish absent fields from zero.
type ProviderUsage struct {
	DailyQuota *int64 `json:"daily_quota"`
	Used       *int64 `json:"used"`
}
