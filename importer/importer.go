// CLAUDE:SUMMARY Article importer: fetches a page, isolates its main content, and converts it to markdown.
// Package importer turns an external article URL into sanitized
// markdown plus metadata, ready for the editor to refine.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/hazyhaar/encart/horosafe"
)

// ErrNoContent means the page yielded no usable article body.
var ErrNoContent = errors.New("importer: no usable content")

// Article is the result of a successful import.
type Article struct {
	Title    string `json:"title"`
	Markdown string `json:"markdown"`
	URL      string `json:"url"`
}

// Importer fetches and converts remote articles.
type Importer struct {
	client       *http.Client
	mdConverter  *converter.Converter
	logger       *slog.Logger
	urlValidator func(string) error
}

// Option customizes an Importer.
type Option func(*Importer)

// WithHTTPClient replaces the fetch client.
func WithHTTPClient(c *http.Client) Option {
	return func(i *Importer) { i.client = c }
}

// WithURLValidator replaces the URL validator.
func WithURLValidator(fn func(string) error) Option {
	return func(i *Importer) { i.urlValidator = fn }
}

// New creates an Importer.
func New(logger *slog.Logger, opts ...Option) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	imp := &Importer{
		client: &http.Client{Timeout: 30 * time.Second},
		mdConverter: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		logger:       logger,
		urlValidator: horosafe.ValidateURL,
	}
	for _, opt := range opts {
		opt(imp)
	}
	return imp
}

// Import fetches url and returns its main content as markdown.
func (i *Importer) Import(ctx context.Context, url string) (*Article, error) {
	if err := i.urlValidator(url); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "encart-importer/1.0")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch: page returned %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return nil, fmt.Errorf("fetch: unsupported content type %q", ct)
	}
	body, err := horosafe.LimitedReadAll(resp.Body, horosafe.MaxResponseBody)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	title, content, err := extractMain(body)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrNoContent
	}

	markdown, err := i.mdConverter.ConvertString(content, converter.WithDomain(url))
	if err != nil {
		return nil, fmt.Errorf("convert: %w", err)
	}
	if strings.TrimSpace(markdown) == "" {
		return nil, ErrNoContent
	}

	i.logger.Info("article imported", "url", url, "title", title, "bytes", len(markdown))
	return &Article{Title: title, Markdown: markdown, URL: url}, nil
}
