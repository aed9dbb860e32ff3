package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
)

const (
	// FetchTimeout bounds each page request
	FetchTimeout = 30 * time.Second

	// Retry policy for transient fetch failures
	fetchMaxAttempts = 2
	fetchRetryDelay  = 2 * time.Second

	// MaxFetchedContentLen caps extracted text so fetched context cannot
	// blow up prompt size
	MaxFetchedContentLen = 8000
)

// PageContent is the readable text extracted from a fetched URL
type PageContent struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	FetchedAt time.Time `json:"fetched_at"`
}

// FetchURLContent downloads a page and extracts its readable text for use
// as question context
func FetchURLContent(ctx context.Context, rawURL string) (*PageContent, error) {
	pageURL, err := validateFetchURL(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers to mimic a browser
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	client := &http.Client{
		Timeout: FetchTimeout,
	}

	// Execute request with retry logic
	var resp *http.Response
	for attempt := 0; attempt < fetchMaxAttempts; attempt++ {
		resp, err = client.Do(req)
		if err == nil {
			break
		}

		if attempt < fetchMaxAttempts-1 {
			log.Warn().
				Str("url", pageURL.String()).
				Int("attempt", attempt+1).
				Err(err).
				Msg("fetch attempt failed, retrying")
			time.Sleep(fetchRetryDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s after %d attempts: %w", pageURL, fetchMaxAttempts, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d for %s", resp.StatusCode, pageURL)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	content := extractPageContent(doc)
	content.URL = pageURL.String()
	content.FetchedAt = time.Now().UTC()

	log.Info().
		Str("url", pageURL.String()).
		Int("text_len", len(content.Text)).
		Msg("fetched url content")

	return content, nil
}

// validateFetchURL accepts only absolute http(s) URLs
func validateFetchURL(rawURL string) (*url.URL, error) {
	pageURL, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if pageURL.Scheme != "http" && pageURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", pageURL.Scheme)
	}
	if pageURL.Host == "" {
		return nil, fmt.Errorf("url has no host")
	}
	return pageURL, nil
}

// extractPageContent pulls the title and readable text out of a document.
// Headings, paragraphs and list items are collected in document order;
// script, style and navigation chrome are stripped first.
func extractPageContent(doc *goquery.Document) *PageContent {
	doc.Find("script, style, noscript, nav, header, footer, iframe").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())

	var parts []string
	doc.Find("h1, h2, h3, p, li").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text != "" {
			parts = append(parts, text)
		}
	})

	text := strings.Join(parts, "\n")
	if text == "" {
		// Fallback: whole-body text with whitespace collapsed
		text = strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	}

	if utf8.RuneCountInString(text) > MaxFetchedContentLen {
		runes := []rune(text)
		text = string(runes[:MaxFetchedContentLen-3]) + "..."
	}

	return &PageContent{
		Title: title,
		Text:  text,
	}
}

// questionWithContext appends fetched page content to a question so the
// council can ground its answers in it
func questionWithContext(question string, content *PageContent) string {
	if content == nil || content.Text == "" {
		return question
	}

	var b strings.Builder
	b.WriteString(question)
	b.WriteString("\n\nContext from ")
	b.WriteString(content.URL)
	if content.Title != "" {
		b.WriteString(" (")
		b.WriteString(content.Title)
		b.WriteString(")")
	}
	b.WriteString(":\n")
	b.WriteString(content.Text)
	return b.String()
}
