package leak

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/orhun/dnsleaktest-tui/internal/model"
	"go.uber.org/zap"
)

const DefaultService = "bash.ws"

// fanOutProbes is the number of per-index subdomain lookups the service
// expects before it can attribute resolvers to the session.
const fanOutProbes = 10

var (
	ErrSessionUnavailable = errors.New("leak test session unavailable")
	ErrVerdictUnavailable = errors.New("leak test verdict unavailable")
)

type Options struct {
	Service string
	Client  *http.Client
	Logger  *zap.Logger
}

// Prober runs the three-phase DNS-leak protocol: acquire a session id, fan
// out per-index subdomain requests so the service can observe which
// resolvers performed the lookups, then fetch the verdict.
type Prober struct {
	opts Options
}

func New(opts Options) *Prober {
	if opts.Service == "" {
		opts.Service = DefaultService
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Prober{opts: opts}
}

// wireRecord matches the service's JSON field names.
type wireRecord struct {
	IP          string `json:"ip"`
	Country     string `json:"country"`
	CountryName string `json:"country_name"`
	ASN         string `json:"asn"`
	Type        string `json:"type"`
}

func (p *Prober) Probe(ctx context.Context) ([]model.LeakRecord, error) {
	id, err := p.sessionID(ctx)
	if err != nil {
		return nil, err
	}
	p.opts.Logger.Debug("leak test session acquired", zap.String("id", id))

	p.fanOut(ctx, id)

	raw, err := p.verdict(ctx, id)
	if err != nil {
		return nil, err
	}

	records := make([]model.LeakRecord, 0, len(raw))
	for _, r := range raw {
		records = append(records, model.LeakRecord{
			IP:             r.IP,
			Country:        r.Country,
			CountryDisplay: countryDisplay(r.CountryName, r.Country),
			ASN:            r.ASN,
			Kind:           r.Type,
		})
	}
	return records, nil
}

func (p *Prober) sessionID(ctx context.Context) (string, error) {
	body, err := p.get(ctx, fmt.Sprintf("https://%s/id", p.opts.Service))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	id := strings.TrimSpace(string(body))
	if id == "" {
		return "", fmt.Errorf("%w: empty session id", ErrSessionUnavailable)
	}
	return id, nil
}

// fanOut issues the per-index probes concurrently and discards every
// outcome: some subdomains legitimately fail to resolve through some paths,
// and only the server-side observation matters.
func (p *Prober) fanOut(ctx context.Context, id string) {
	var wg sync.WaitGroup
	for i := 0; i < fanOutProbes; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			url := fmt.Sprintf("https://%d.%s.%s", i, id, p.opts.Service)
			if _, err := p.get(ctx, url); err != nil {
				p.opts.Logger.Debug("fan-out probe failed",
					zap.Int("index", i),
					zap.Error(err),
				)
			}
		}(i)
	}
	wg.Wait()
}

func (p *Prober) verdict(ctx context.Context, id string) ([]wireRecord, error) {
	body, err := p.get(ctx, fmt.Sprintf("https://%s/dnsleak/test/%s?json", p.opts.Service, id))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerdictUnavailable, err)
	}
	var records []wireRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrVerdictUnavailable, err)
	}
	return records, nil
}

func (p *Prober) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.opts.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}
	return body, nil
}
