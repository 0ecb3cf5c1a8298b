package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/isbn-finder/config"
	"github.com/gocolly/colly/v2"
)

// Fetcher issues catalog requests through one shared colly collector.
// Each call runs on a clone so callbacks never leak between lookups,
// while the transport, cookie store and per-domain limits stay shared.
type Fetcher struct {
	collector      *colly.Collector
	transport      *contextTransport
	acceptLanguage string
	Metrics        *Metrics
	logger         *slog.Logger
}

// NewFetcher builds a fetcher configured from cfg. A nil metrics disables instrumentation.
func NewFetcher(cfg *config.Config, metrics *Metrics) (*Fetcher, error) {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	transport := newContextTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})
	collector.WithTransport(transport)

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: max(1, len(cfg.EnabledSources())),
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	return &Fetcher{
		collector:      collector,
		transport:      transport,
		acceptLanguage: cfg.AcceptLanguage,
		Metrics:        metrics,
		logger:         slog.Default(),
	}, nil
}

// WithTransport swaps the HTTP transport used by every subsequent request.
func (f *Fetcher) WithTransport(transport http.RoundTripper) {
	f.transport = newContextTransport(transport)
	f.collector.WithTransport(f.transport)
}

// FetchHTML loads target and parses it as an HTML document.
func (f *Fetcher) FetchHTML(ctx context.Context, source, target string) (*goquery.Document, error) {
	resp, err := f.do(ctx, source, http.MethodGet, target, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", target, err)
	}
	return doc, nil
}

// FetchBody returns the raw response body of target.
func (f *Fetcher) FetchBody(ctx context.Context, source, target string) ([]byte, error) {
	resp, err := f.do(ctx, source, http.MethodGet, target, "application/json,*/*;q=0.8")
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Probe issues a HEAD request and reports whether target answered with a success status.
func (f *Fetcher) Probe(ctx context.Context, source, target string) error {
	_, err := f.do(ctx, source, http.MethodHead, target, "*/*")
	return err
}

func (f *Fetcher) do(ctx context.Context, source, method, target, accept string) (*colly.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	callID, release := f.transport.bind(ctx)
	defer release()

	c := f.collector.Clone()
	var (
		response   *colly.Response
		statusCode int
	)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		r.Headers.Set(callHeader, callID)
		r.Headers.Set("Accept", accept)
		if f.acceptLanguage != "" {
			r.Headers.Set("Accept-Language", f.acceptLanguage)
		}
		r.Ctx.Put("start", time.Now())
		f.Metrics.IncRequest(source, "started")
	})

	c.OnResponse(func(r *colly.Response) {
		response = r
		f.Metrics.IncRequest(source, "completed")
		if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
			f.Metrics.ObserveDuration(source, time.Since(start))
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			statusCode = r.StatusCode
		}
	})

	var err error
	if method == http.MethodHead {
		err = c.Head(target)
	} else {
		err = c.Visit(target)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		classified := classifyError(err, statusCode)
		category := ErrorType(classified)
		f.Metrics.IncError(source, category)
		f.logger.Debug("source request failed",
			slog.String("source", source),
			slog.String("url", target),
			slog.String("category", category),
			slog.Any("error", err),
		)
		return nil, classified
	}
	if response == nil {
		return nil, fmt.Errorf("no response for %s", target)
	}
	return response, nil
}
