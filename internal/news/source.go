// Package news scrapes a headline listing, remembers what it has seen and
// hands each cycle the items fetched since the last completed cycle.
package news

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"tradecouncil/internal/decision"
	"tradecouncil/internal/logger"
	"tradecouncil/internal/pkg/text"
	"tradecouncil/internal/store"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	DefaultURL      = "https://cointelegraph.com/tags/bitcoin"
	DefaultMaxItems = 5
	DefaultTimeout  = 20 * time.Second
	// DefaultArticleInterval spaces out article page requests.
	DefaultArticleInterval = time.Second

	summaryLimit = 500
	userAgent    = "Mozilla/5.0 (compatible; tradecouncil/1.0)"
)

// Listing selectors.
const (
	itemSelector    = "li.posts-listing__item"
	titleSelector   = "h3.post-card-inline__title"
	linkSelector    = "a.post-card-inline__figure-link"
	excerptSelector = "p.post-card-inline__text"
	contentSelector = "div.post-content"
)

type Config struct {
	Enabled bool
	URL     string
	// MaxItems caps the items handed to one cycle.
	MaxItems int
	Timeout  time.Duration
	// FetchArticles follows each new headline to read its body as summary.
	FetchArticles   bool
	ArticleInterval time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.URL) == "" {
		c.URL = DefaultURL
	}
	if c.MaxItems <= 0 {
		c.MaxItems = DefaultMaxItems
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ArticleInterval <= 0 {
		c.ArticleInterval = DefaultArticleInterval
	}
	return c
}

// Store is what the source needs from persistence.
type Store interface {
	store.NewsStore
	LastCompletedCycle(ctx context.Context) (store.CycleRecord, bool, error)
}

type Article struct {
	Title   string
	URL     string
	Summary string
}

type Source struct {
	cfg     Config
	client  *resty.Client
	store   Store
	limiter *rate.Limiter
	now     func() time.Time
}

// NewSource builds a Source. st may be nil, in which case nothing is
// deduplicated across cycles.
func NewSource(cfg Config, st Store) *Source {
	cfg = cfg.withDefaults()
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", userAgent)
	return &Source{
		cfg:     cfg,
		client:  client,
		store:   st,
		limiter: rate.NewLimiter(rate.Every(cfg.ArticleInterval), 1),
		now:     time.Now,
	}
}

// Latest returns the news for this cycle. It never fails: a disabled or
// broken source yields whatever is already stored, possibly nothing.
func (s *Source) Latest(ctx context.Context) []decision.NewsItem {
	if s == nil || !s.cfg.Enabled {
		return nil
	}
	since := s.lastCycleEnd(ctx)

	articles, err := s.Scrape(ctx)
	if err != nil {
		logger.Warnf("news: scrape %s failed: %v", s.cfg.URL, err)
	}
	fresh := s.remember(ctx, articles)

	if s.store == nil {
		return toItems(fresh, s.cfg.MaxItems)
	}
	recs, err := s.store.RecentNews(ctx, since, s.cfg.MaxItems)
	if err != nil {
		logger.Warnf("news: load recent failed: %v", err)
		return toItems(fresh, s.cfg.MaxItems)
	}
	out := make([]decision.NewsItem, 0, len(recs))
	for _, r := range recs {
		out = append(out, decision.NewsItem{Title: r.Title, Summary: r.Summary})
	}
	return out
}

func (s *Source) lastCycleEnd(ctx context.Context) time.Time {
	if s.store == nil {
		return time.Time{}
	}
	last, ok, err := s.store.LastCompletedCycle(ctx)
	if err != nil {
		logger.Warnf("news: last completed cycle lookup failed: %v", err)
		return time.Time{}
	}
	if !ok {
		return time.Time{}
	}
	return last.EndedAt
}

// remember stores articles not seen before and returns them.
func (s *Source) remember(ctx context.Context, articles []Article) []Article {
	if len(articles) == 0 {
		return nil
	}
	fps := make([]string, 0, len(articles))
	for _, a := range articles {
		fps = append(fps, Fingerprint(a.Title))
	}
	known := map[string]bool{}
	if s.store != nil {
		k, err := s.store.KnownNewsFingerprints(ctx, fps)
		if err != nil {
			logger.Warnf("news: fingerprint lookup failed: %v", err)
		} else {
			known = k
		}
	}
	now := s.now().UTC()
	var (
		fresh []Article
		recs  []store.NewsRecord
	)
	for i, a := range articles {
		fp := fps[i]
		if known[fp] {
			continue
		}
		known[fp] = true
		if s.cfg.FetchArticles && a.URL != "" {
			if err := s.limiter.Wait(ctx); err != nil {
				logger.Debugf("news: article %s skipped: %v", a.URL, err)
			} else if body, err := s.articleBody(ctx, a.URL); err != nil {
				logger.Debugf("news: article %s: %v", a.URL, err)
			} else if body != "" {
				a.Summary = body
			}
		}
		a.Summary = text.TruncateRunes(a.Summary, summaryLimit)
		fresh = append(fresh, a)
		recs = append(recs, store.NewsRecord{
			Fingerprint: fp,
			Title:       a.Title,
			Summary:     a.Summary,
			URL:         a.URL,
			FetchedAt:   now,
		})
	}
	if s.store != nil && len(recs) > 0 {
		if err := s.store.SaveNews(ctx, recs); err != nil {
			logger.Warnf("news: save %d items failed: %v", len(recs), err)
		}
	}
	if len(fresh) > 0 {
		logger.Infof("news: %d new of %d scraped", len(fresh), len(articles))
	}
	return fresh
}

// Scrape reads the listing page in page order.
func (s *Source) Scrape(ctx context.Context) ([]Article, error) {
	doc, err := s.document(ctx, s.cfg.URL)
	if err != nil {
		return nil, err
	}
	base, _ := url.Parse(s.cfg.URL)
	var out []Article
	doc.Find(itemSelector).Each(func(_ int, item *goquery.Selection) {
		title := strings.TrimSpace(item.Find(titleSelector).First().Text())
		href, ok := item.Find(linkSelector).First().Attr("href")
		if title == "" || !ok {
			return
		}
		out = append(out, Article{
			Title:   title,
			URL:     resolve(base, href),
			Summary: strings.TrimSpace(item.Find(excerptSelector).First().Text()),
		})
	})
	return out, nil
}

func (s *Source) articleBody(ctx context.Context, link string) (string, error) {
	doc, err := s.document(ctx, link)
	if err != nil {
		return "", err
	}
	body := doc.Find(contentSelector).First()
	var parts []string
	body.Find("p").Each(func(_ int, p *goquery.Selection) {
		if t := strings.Join(strings.Fields(p.Text()), " "); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		return strings.Join(strings.Fields(body.Text()), " "), nil
	}
	return strings.Join(parts, " "), nil
}

func (s *Source) document(ctx context.Context, link string) (*goquery.Document, error) {
	resp, err := s.client.R().SetContext(ctx).Get(link)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", link, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("fetch %s: HTTP %d", link, resp.StatusCode())
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", link, err)
	}
	return doc, nil
}

// Fingerprint identifies a headline regardless of case and spacing.
func Fingerprint(title string) string {
	norm := strings.ToLower(strings.Join(strings.Fields(title), " "))
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	ref, err := url.Parse(href)
	if err != nil || base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func toItems(articles []Article, limit int) []decision.NewsItem {
	if limit > 0 && len(articles) > limit {
		articles = articles[:limit]
	}
	out := make([]decision.NewsItem, 0, len(articles))
	for _, a := range articles {
		out = append(out, decision.NewsItem{Title: a.Title, Summary: a.Summary})
	}
	return out
}
