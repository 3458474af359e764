// Package changelog watches the upstream product changelog feed for entries
// that may announce API changes before they reach the specification.
package changelog

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/bencmd88/venicegate/internal/fsutil"
)

// TokenEnv names the environment variable holding the feed bearer token.
const TokenEnv = "VENICE_CHANGELOG_TOKEN"

const (
	maxEntries   = 20
	alertExcerpt = 500
)

// DefaultKeywords mark an entry as API relevant when any of them appears,
// case-insensitively, in its title or content.
var DefaultKeywords = []string{
	"api", "endpoint", "parameter", "response", "schema",
	"model", "deprecat", "remov", "add", "chang", "updat",
	"chat", "completion", "image", "billing", "character",
	"authentication", "rate limit", "token", "pricing",
}

// Entry is one changelog item.
type Entry struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Date      string    `json:"date"`
	Link      string    `json:"link,omitempty"`
	Content   string    `json:"content"`
	Relevant  bool      `json:"is_api_relevant"`
	Published time.Time `json:"published,omitempty"`
}

// Cache is the persisted view of the last fetch.
type Cache struct {
	Entries   []Entry   `json:"entries"`
	LastFetch time.Time `json:"last_fetch"`
	EntryIDs  []string  `json:"entry_ids"`
}

// Report summarises one check of the feed.
type Report struct {
	Status          string    `json:"status"`
	Timestamp       time.Time `json:"timestamp"`
	Total           int       `json:"total_entries"`
	New             int       `json:"new_entries"`
	RelevantNew     int       `json:"api_relevant_new"`
	NewEntries      []Entry   `json:"new_entries_data"`
	RelevantEntries []Entry   `json:"api_relevant_entries"`
}

// Monitor fetches the feed and diffs it against the cache.
type Monitor struct {
	url       string
	token     string
	cachePath string
	keywords  []string
	client    *http.Client
	logger    *zap.Logger
	now       func() time.Time
}

// NewMonitor creates a Monitor. Empty keywords select DefaultKeywords.
func NewMonitor(url, token, cachePath string, keywords []string, timeout time.Duration, logger *zap.Logger) *Monitor {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		url:       url,
		token:     token,
		cachePath: cachePath,
		keywords:  keywords,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock overrides the time source.
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
}

// Check fetches the feed, reports entries not seen before and replaces the cache.
func (m *Monitor) Check(ctx context.Context) (*Report, error) {
	return m.check(ctx, true)
}

// Preview is Check without updating the cache.
func (m *Monitor) Preview(ctx context.Context) (*Report, error) {
	return m.check(ctx, false)
}

func (m *Monitor) check(ctx context.Context, save bool) (*Report, error) {
	entries, err := m.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	var cache Cache
	if _, err := fsutil.ReadJSONIfExists(m.cachePath, &cache); err != nil {
		m.logger.Warn("ignoring unreadable changelog cache", zap.String("path", m.cachePath), zap.Error(err))
		cache = Cache{}
	}
	seen := make(map[string]bool, len(cache.EntryIDs))
	for _, id := range cache.EntryIDs {
		seen[id] = true
	}

	now := m.now()
	report := &Report{Status: "success", Timestamp: now, Total: len(entries)}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
		if seen[e.ID] {
			continue
		}
		report.NewEntries = append(report.NewEntries, e)
		if e.Relevant {
			report.RelevantEntries = append(report.RelevantEntries, e)
		}
	}
	report.New = len(report.NewEntries)
	report.RelevantNew = len(report.RelevantEntries)

	if !save {
		return report, nil
	}
	sort.Strings(ids)
	if err := fsutil.WriteJSON(m.cachePath, Cache{Entries: entries, LastFetch: now, EntryIDs: ids}); err != nil {
		return nil, fmt.Errorf("save changelog cache: %w", err)
	}
	m.logger.Info("checked changelog",
		zap.Int("total", report.Total),
		zap.Int("new", report.New),
		zap.Int("api_relevant_new", report.RelevantNew),
	)
	return report, nil
}

// Fetch downloads and parses the feed, keeping at most the first 20 items.
func (m *Monitor) Fetch(ctx context.Context) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		return nil, fmt.Errorf("changelog request: %w", err)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.5")
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch changelog %s: %w", m.url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch changelog %s: unexpected status %s", m.url, resp.Status)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse changelog feed: %w", err)
	}

	items := feed.Items
	if len(items) > maxEntries {
		items = items[:maxEntries]
	}
	entries := make([]Entry, 0, len(items))
	for i, item := range items {
		entries = append(entries, m.entry(i, item))
	}
	return entries, nil
}

func (m *Monitor) entry(i int, item *gofeed.Item) Entry {
	content := strings.TrimSpace(item.Content)
	if content == "" {
		content = strings.TrimSpace(item.Description)
	}
	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = truncate(content, 100)
	}

	e := Entry{
		ID:       EntryID(title, content),
		Title:    title,
		Link:     item.Link,
		Content:  content,
		Relevant: Relevant(title+"\n"+content, m.keywords),
	}
	switch {
	case item.PublishedParsed != nil:
		e.Published = item.PublishedParsed.UTC()
		e.Date = e.Published.Format("2006-01-02")
	case item.Published != "":
		e.Date = item.Published
	default:
		e.Date = fmt.Sprintf("entry_%d", i)
	}
	return e
}

// EntryID is a stable 12-hex-digit id derived from an entry's text.
func EntryID(title, content string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(title+"\n"+content))[:12]
}

// Relevant reports whether text contains any keyword, ignoring case.
func Relevant(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// Alerts renders one Markdown alert per API-relevant new entry.
func Alerts(r *Report) []string {
	alerts := make([]string, 0, len(r.RelevantEntries))
	for _, e := range r.RelevantEntries {
		var b strings.Builder
		fmt.Fprintf(&b, "# API Change Alert: %s\n\n", e.Title)
		fmt.Fprintf(&b, "**Date**: %s\n", e.Date)
		if e.Link != "" {
			fmt.Fprintf(&b, "**Link**: %s\n", e.Link)
		}
		fmt.Fprintf(&b, "\n## Content\n\n%s\n\n", truncate(e.Content, alertExcerpt))
		b.WriteString("## Recommended Actions\n\n")
		b.WriteString("1. Review the change for impact on the client\n")
		b.WriteString("2. Check whether any endpoints or parameters are affected\n")
		b.WriteString("3. Run `venicegate monitor` to compare the published specification\n")
		fmt.Fprintf(&b, "\n**Change ID**: %s\n", e.ID)
		alerts = append(alerts, b.String())
	}
	return alerts
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
