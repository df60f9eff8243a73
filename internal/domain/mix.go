package domain

import "time"

// DayLayout is the civil-date layout used for DailyMix.Date and DayOutcome.Day.
const DayLayout = "2006-01-02"

// WeakDomain is a domain whose rolling accuracy is under the weakness threshold.
type WeakDomain struct {
	Domain   string  `json:"domain"`
	Accuracy float64 `json:"accuracy"`
}

// MixItem is one entry of a daily mix bucket.
type MixItem struct {
	ContentID        string      `json:"content_id"`
	Kind             ContentKind `json:"kind"`
	Domain           string      `json:"domain"`
	Band             Band        `json:"band"`
	EstimatedSeconds int         `json:"estimated_seconds"`

	// Review-only fields.
	CardID             string `json:"card_id,omitempty"`
	OverdueDays        int    `json:"overdue_days,omitempty"`
	NeedsFocusedReview bool   `json:"needs_focused_review,omitempty"`
}

// MixBucket is one of the three daily content buckets.
type MixBucket struct {
	Items                []MixItem `json:"items"`
	EstimatedTimeMinutes float64   `json:"estimated_time_minutes"`
	Reasoning            string    `json:"reasoning"`
}

// EstimatedSeconds sums the item estimates of the bucket.
func (b MixBucket) EstimatedSeconds() int {
	total := 0
	for _, item := range b.Items {
		total += item.EstimatedSeconds
	}
	return total
}

// DailyMix is the once-per-day content plan. It is disposable and never a
// source of truth for mastery.
type DailyMix struct {
	Date                string       `json:"date"`
	GeneratedAt         time.Time    `json:"generated_at"`
	TargetBand          Band         `json:"target_band"`
	BasedOnBand         Band         `json:"based_on_band"`
	IsRecoveryDay       bool         `json:"is_recovery_day"`
	WeakDomains         []WeakDomain `json:"weak_domains"`
	NewContent          MixBucket    `json:"new_content"`
	InterleavingContent MixBucket    `json:"interleaving_content"`
	SRSReviews          MixBucket    `json:"srs_reviews"`
	Invalidated         bool         `json:"invalidated,omitempty"`
}

// TotalMinutes returns the estimated time across all buckets.
func (m DailyMix) TotalMinutes() float64 {
	return m.NewContent.EstimatedTimeMinutes +
		m.InterleavingContent.EstimatedTimeMinutes +
		m.SRSReviews.EstimatedTimeMinutes
}
