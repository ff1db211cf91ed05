package feed

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/RadhiFadlillah/whatlanggo"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/umputun/feedrank/pkg/domain"
)

// Parser fetches and parses RSS/Atom feeds. Summaries are stripped of any
// HTML markup and each item carries a language, detected from the text
// when the feed does not declare one.
type Parser struct {
	client    *http.Client
	userAgent string
	sanitizer *bluemonday.Policy
}

// NewParser creates a new feed parser
func NewParser(timeout time.Duration, userAgent string) *Parser {
	return &Parser{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent: userAgent,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// Parse fetches and parses a feed from the given URL
func (p *Parser) Parse(ctx context.Context, url string) (*domain.ParsedFeed, error) {
	body, err := p.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer body.Close()

	parsed, err := gofeed.NewParser().Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	feedLang := normalizeLang(parsed.Language)
	result := &domain.ParsedFeed{
		Title:       parsed.Title,
		Description: parsed.Description,
		Link:        parsed.Link,
		Language:    feedLang,
		Items:       make([]domain.ParsedItem, 0, len(parsed.Items)),
	}

	for _, item := range parsed.Items {
		if item.Title == "" || item.Link == "" {
			continue // malformed items are skipped, not fatal
		}

		parsedItem := domain.ParsedItem{
			Title:   p.cleanText(item.Title),
			Link:    item.Link,
			Summary: p.cleanText(item.Description),
			Content: p.cleanText(item.Content),
		}

		if item.PublishedParsed != nil {
			parsedItem.Published = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			parsedItem.Published = *item.UpdatedParsed
		}

		parsedItem.Language = feedLang
		if parsedItem.Language == "" {
			parsedItem.Language = detectLanguage(parsedItem.Title + " " + parsedItem.Summary)
		}

		result.Items = append(result.Items, parsedItem)
	}

	return result, nil
}

// cleanText strips HTML markup and collapses whitespace
func (p *Parser) cleanText(s string) string {
	if s == "" {
		return ""
	}
	cleaned := html.UnescapeString(p.sanitizer.Sanitize(s))
	return strings.Join(strings.Fields(cleaned), " ")
}

// fetch retrieves content from a URL
func (p *Parser) fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", p.userAgent)
	addBrowserHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch URL: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return resp.Body, nil
}

// iso3to1 maps the detector's ISO 639-3 output to the 639-1 codes the
// rest of the pipeline uses; uncommon languages keep their 639-3 code
var iso3to1 = map[string]string{
	"eng": "en", "cmn": "zh", "spa": "es", "fra": "fr", "deu": "de",
	"rus": "ru", "jpn": "ja", "kor": "ko", "por": "pt", "ita": "it",
	"nld": "nl", "arb": "ar", "hin": "hi", "tur": "tr", "ukr": "uk",
}

// detectLanguage guesses the language code of the given text, empty when
// detection is unreliable
func detectLanguage(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	code := whatlanggo.LangToString(info.Lang)
	if short, ok := iso3to1[code]; ok {
		return short
	}
	return code
}

// normalizeLang reduces feed-level language declarations like "en-US" to a
// bare ISO 639-1 code
func normalizeLang(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if idx := strings.IndexAny(lang, "-_"); idx > 0 {
		lang = lang[:idx]
	}
	if len(lang) != 2 {
		return ""
	}
	return lang
}
