package social

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"crypto-quant-trader/internal/logger"
	"crypto-quant-trader/internal/types"
)

// Scraper fetches recent posts for a tracked account from a public
// timeline mirror. It implements the Feed capability consumed by the
// sentiment service; delivery order carries no guarantee beyond recency
// within a batch.
type Scraper struct {
	baseURL string
	timeout time.Duration
}

// timelineSelectors are the CSS selectors for a nitter-style mirror.
type timelineSelectors struct {
	post      string
	text      string
	timestamp string
	stats     string
}

var defaultSelectors = timelineSelectors{
	post:      "div.timeline-item",
	text:      "div.tweet-content",
	timestamp: "span.tweet-date a",
	stats:     "span.tweet-stat",
}

func NewScraper(baseURL string, timeout time.Duration) *Scraper {
	if baseURL == "" {
		baseURL = "https://nitter.net"
	}
	return &Scraper{baseURL: baseURL, timeout: timeout}
}

// FetchRecent scrapes up to limit recent posts for one account.
func (s *Scraper) FetchRecent(ctx context.Context, account string, limit int) ([]types.Post, error) {
	var posts []types.Post

	c := colly.NewCollector(
		colly.AllowedDomains(getDomain(s.baseURL)),
		colly.MaxDepth(1),
		colly.Async(false),
	)
	c.SetRequestTimeout(s.timeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	})

	c.OnHTML(defaultSelectors.post, func(e *colly.HTMLElement) {
		if len(posts) >= limit {
			return
		}
		text := strings.TrimSpace(e.ChildText(defaultSelectors.text))
		if text == "" {
			return
		}

		createdAt := time.Now()
		if raw := e.ChildAttr(defaultSelectors.timestamp, "title"); raw != "" {
			if ts, err := parseTimelineDate(raw); err == nil {
				createdAt = ts
			}
		}

		likes, reposts := 0, 0
		e.DOM.Find(defaultSelectors.stats).Each(func(i int, sel *goquery.Selection) {
			n := parseStatCount(sel.Text())
			if sel.Find(".icon-heart").Length() > 0 {
				likes = n
			}
			if sel.Find(".icon-retweet").Length() > 0 {
				reposts = n
			}
		})

		posts = append(posts, types.Post{
			ID:        e.ChildAttr(defaultSelectors.timestamp, "href"),
			Account:   account,
			Text:      text,
			CreatedAt: createdAt,
			Likes:     likes,
			Reposts:   reposts,
		})
	})

	c.OnError(func(r *colly.Response, err error) {
		logger.ErrorWithErr(ctx, "Timeline scraping error", err, "account", account, "url", r.Request.URL.String())
	})

	if err := c.Visit(fmt.Sprintf("%s/%s", s.baseURL, url.PathEscape(account))); err != nil {
		return nil, fmt.Errorf("%w: fetch timeline for %s: %v", types.ErrExternalService, account, err)
	}
	c.Wait()

	logger.Debug(ctx, "Timeline fetched", "account", account, "posts", len(posts))
	return posts, nil
}

func parseTimelineDate(raw string) (time.Time, error) {
	for _, layout := range []string{"Jan 2, 2006 · 3:04 PM UTC", time.RFC3339} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

func parseStatCount(raw string) int {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

func getDomain(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return baseURL
	}
	return u.Host
}
