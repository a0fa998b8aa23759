// Package fetch performs single outbound profile requests. Failures come back
// as *Error values and never escape as panics.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout      = 15 * time.Second
	DefaultMaxBodyBytes = 512 * 1024
	DefaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

type Response struct {
	Status    int
	Body      string
	LatencyMS int64
}

type Options struct {
	// Transport defaults to a clone of http.DefaultTransport.
	Transport    http.RoundTripper
	UserAgent    string
	MaxBodyBytes int64
	// RequestsPerSecond of zero disables the limiter.
	RequestsPerSecond float64
	Burst             int
}

type Client struct {
	http      *http.Client
	userAgent string
	maxBody   int64
	limiter   *rate.Limiter
	tracer    trace.Tracer
	now       func() time.Time
}

func NewClient(opts Options) *Client {
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	c := &Client{
		http:      &http.Client{Transport: transport},
		userAgent: opts.UserAgent,
		maxBody:   opts.MaxBodyBytes,
		tracer:    otel.Tracer("handleprobe/fetch"),
		now:       time.Now,
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c
}

// Fetch GETs url within timeout. Redirects are followed and the body is
// decoded to UTF-8 and capped at the configured size.
func (c *Client) Fetch(ctx context.Context, url string, timeout time.Duration) (Response, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, span := c.tracer.Start(ctx, "fetch", trace.WithAttributes(attribute.String("url.full", url)))
	defer span.End()

	resp, err := c.fetch(ctx, url, timeout)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, err
	}
	span.SetAttributes(
		attribute.Int("http.response.status_code", resp.Status),
		attribute.Int64("handleprobe.latency_ms", resp.LatencyMS),
	)
	return resp, nil
}

func (c *Client) fetch(parent context.Context, url string, timeout time.Duration) (Response, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if parent.Err() != nil {
				return Response{}, classify(parent, url, err)
			}
			// The limiter refuses waits that would overrun the deadline.
			return Response{}, &Error{Kind: KindTimeout, URL: url, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{}, &Error{Kind: KindNetwork, URL: url, Err: err}
	}
	c.addHeaders(req)

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, classify(parent, url, err)
	}
	defer resp.Body.Close()

	body, err := c.readBody(resp)
	if err != nil {
		return Response{}, classify(parent, url, err)
	}
	return Response{
		Status:    resp.StatusCode,
		Body:      body,
		LatencyMS: c.now().Sub(start).Milliseconds(),
	}, nil
}

func (c *Client) readBody(resp *http.Response) (string, error) {
	limited := io.LimitReader(resp.Body, c.maxBody)
	reader, err := charset.NewReader(limited, resp.Header.Get("Content-Type"))
	if err != nil {
		// Unknown charset: fall back to the raw bytes.
		reader = limited
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(data), nil
}

// Accept-Encoding is left to the transport so gzip is decoded transparently.
func (c *Client) addHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
}
