package model

import "time"

// CrawlSummary is the outcome of one asset-discovery traversal.
type CrawlSummary struct {
	// Seeds are the URLs the crawl started from.
	Seeds []string `json:"seeds"`

	// Visited is the number of distinct URLs taken off the worklist.
	Visited int `json:"visited"`

	// Fetched is the number of URLs that were retrieved successfully.
	Fetched int `json:"fetched"`

	// Failed is the number of URLs whose fetch failed.
	Failed int `json:"failed"`

	// Skipped is the number of fetched assets with an unrecognized content type.
	Skipped int `json:"skipped"`

	// Persisted is the number of files written to the output directory.
	Persisted int `json:"persisted"`

	// References counts discovered references per mechanism, duplicates included.
	References map[string]int `json:"references"`

	// FailedURLs lists the URLs whose fetch failed, in failure order.
	FailedURLs []string `json:"failed_urls,omitempty"`

	// Truncated is true when the crawl stopped at the URL ceiling.
	Truncated bool `json:"truncated"`

	// StartedAt and FinishedAt bound the crawl.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewCrawlSummary returns an empty summary for the given seeds.
func NewCrawlSummary(seeds []string) *CrawlSummary {
	return &CrawlSummary{
		Seeds:      append([]string(nil), seeds...),
		References: make(map[string]int),
		StartedAt:  time.Now(),
	}
}

// CountReference records one discovered reference.
func (s *CrawlSummary) CountReference(m Mechanism) {
	s.References[m.String()]++
}

// TotalReferences returns the number of discovered references across all mechanisms.
func (s *CrawlSummary) TotalReferences() int {
	total := 0
	for _, n := range s.References {
		total += n
	}
	return total
}

// Duration returns how long the crawl ran. It is zero until FinishedAt is set.
func (s *CrawlSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
