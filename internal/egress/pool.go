// Package egress retries failed checks through alternate network paths.
//
// Responses that come back through a backup path are classified with
// rules.Heuristic instead of the site's registry rule. That loses precision
// (markers are ignored) in exchange for an answer when the primary path is
// blocked; an Indeterminate heuristic verdict counts as a failed retry.
package egress

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"handleprobe/internal/fetch"
	"handleprobe/internal/rules"
)

const (
	DefaultTimeout          = 8 * time.Second
	DefaultRetryProbability = 0.3
)

var ErrNoEndpoints = errors.New("no backup egress endpoints configured")

// Rand is the randomness the pool draws from; inject a seeded source in tests.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

type Config struct {
	// Endpoints are socks5://, socks5h://, http(s):// proxies or
	// relay+http(s):// relays that take the target as ?url=.
	Endpoints        []string
	RetryProbability float64
	Fetch            fetch.Options
}

type Result struct {
	fetch.Response
	Endpoint string
	Verdict  rules.Verdict
}

type endpoint struct {
	name   string
	relay  *url.URL
	client *fetch.Client
}

func (e *endpoint) target(raw string) string {
	if e.relay == nil {
		return raw
	}
	u := *e.relay
	q := u.Query()
	q.Set("url", raw)
	u.RawQuery = q.Encode()
	return u.String()
}

type Pool struct {
	endpoints   []*endpoint
	probability float64

	mu  sync.Mutex
	rng Rand
}

func NewPool(cfg Config, rng Rand) (*Pool, error) {
	if rng == nil {
		return nil, errors.New("egress: random source is required")
	}
	if cfg.RetryProbability < 0 || cfg.RetryProbability > 1 {
		return nil, fmt.Errorf("egress: retry probability %v outside [0,1]", cfg.RetryProbability)
	}
	p := &Pool{probability: cfg.RetryProbability, rng: rng}
	for _, raw := range cfg.Endpoints {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		ep, err := newEndpoint(raw, cfg.Fetch)
		if err != nil {
			return nil, err
		}
		p.endpoints = append(p.endpoints, ep)
	}
	return p, nil
}

func newEndpoint(raw string, opts fetch.Options) (*endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("egress endpoint %q: %w", raw, err)
	}
	base := http.DefaultTransport.(*http.Transport).Clone()
	ep := &endpoint{name: u.Redacted()}

	switch u.Scheme {
	case "socks5", "socks5h":
		var auth *proxy.Auth
		if u.User != nil {
			pass, _ := u.User.Password()
			auth = &proxy.Auth{User: u.User.Username(), Password: pass}
		}
		dialer, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("egress endpoint %s: %w", ep.name, err)
		}
		ctxDialer, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("egress endpoint %s: proxy dialer does not support context", ep.name)
		}
		base.Proxy = nil
		base.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return ctxDialer.DialContext(ctx, network, addr)
		}
	case "http", "https":
		base.Proxy = http.ProxyURL(u)
	case "relay+http", "relay+https":
		relay := *u
		relay.Scheme = strings.TrimPrefix(u.Scheme, "relay+")
		ep.relay = &relay
	default:
		return nil, fmt.Errorf("egress endpoint %s: unsupported scheme %q", ep.name, u.Scheme)
	}

	opts.Transport = base
	ep.client = fetch.NewClient(opts)
	return ep, nil
}

func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.endpoints)
}

// ShouldRetry draws once against the configured retry probability.
func (p *Pool) ShouldRetry() bool {
	if p.Len() == 0 || p.probability <= 0 {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64() < p.probability
}

func (p *Pool) pick() *endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.endpoints[p.rng.IntN(len(p.endpoints))]
}

// FetchViaBackup fetches target through one endpoint picked uniformly at
// random and classifies the response heuristically.
func (p *Pool) FetchViaBackup(ctx context.Context, target string, timeout time.Duration) (Result, error) {
	if p.Len() == 0 {
		return Result{}, ErrNoEndpoints
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ep := p.pick()
	resp, err := ep.client.Fetch(ctx, ep.target(target), timeout)
	if err != nil {
		return Result{Endpoint: ep.name}, err
	}
	return Result{
		Response: resp,
		Endpoint: ep.name,
		Verdict:  rules.Heuristic(resp.Status, resp.Body),
	}, nil
}
