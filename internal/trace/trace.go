package trace

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/orhun/dnsleaktest-tui/internal/engine"
	"github.com/orhun/dnsleaktest-tui/internal/model"
	"go.uber.org/zap"
)

// Fixed probe parameters. Changing any of them is a recompilation, not a
// runtime option.
const (
	probePort     = 33434
	packetSize    = 52
	firstTTL      = 1
	maxTTL        = 64
	rounds        = 3
	roundWait     = 100 * time.Millisecond
	typeOfService = 0
)

var ErrUnknownHost = errors.New("unknown host")

// EngineError carries the probing engine's own failure detail, e.g. a socket
// permission problem surfaced in its final snapshot.
type EngineError struct {
	Detail string
}

func (e *EngineError) Error() string {
	return "traceroute engine: " + e.Detail
}

type Resolver interface {
	Lookup(ctx context.Context, hostname string) ([]netip.Addr, error)
	ReverseLookup(ctx context.Context, addr netip.Addr) string
}

type Engine interface {
	Run(ctx context.Context) error
	Snapshot() engine.Snapshot
}

type Options struct {
	Resolver Resolver
	// NewEngine builds the probing engine for a resolved target. Defaults to
	// the UDP engine with the fixed parameters above.
	NewEngine func(target netip.Addr) Engine
	Logger    *zap.Logger
}

type Tracer struct {
	opts Options
}

func New(opts Options) *Tracer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.NewEngine == nil {
		logger := opts.Logger
		opts.NewEngine = func(target netip.Addr) Engine {
			return engine.New(target, probeConfig(logger))
		}
	}
	return &Tracer{opts: opts}
}

func probeConfig(logger *zap.Logger) engine.Config {
	return engine.Config{
		FirstTTL:     firstTTL,
		MaxTTL:       maxTTL,
		Port:         probePort,
		PacketSize:   packetSize,
		Rounds:       rounds,
		MinRoundWait: roundWait,
		MaxRoundWait: roundWait,
		TOS:          typeOfService,
		Logger:       logger,
	}
}

// Run resolves hostname, drives the engine through all configured rounds and
// reconciles the final snapshot into the hop table. It blocks for the whole
// probing campaign.
func (t *Tracer) Run(ctx context.Context, hostname string) (model.TraceResult, error) {
	addrs, err := t.opts.Resolver.Lookup(ctx, hostname)
	if err != nil {
		return model.TraceResult{}, fmt.Errorf("resolving %s: %w", hostname, err)
	}
	if len(addrs) == 0 {
		return model.TraceResult{}, fmt.Errorf("%w: %s", ErrUnknownHost, hostname)
	}

	addr := addrs[0]
	if len(addrs) > 1 {
		t.opts.Logger.Warn("hostname has multiple addresses, using the first",
			zap.String("hostname", hostname),
			zap.Stringer("addr", addr),
			zap.Int("count", len(addrs)),
		)
	}

	eng := t.opts.NewEngine(addr)
	if err := eng.Run(ctx); err != nil {
		return model.TraceResult{}, &EngineError{Detail: err.Error()}
	}
	snap := eng.Snapshot()
	if snap.Err != "" {
		return model.TraceResult{}, &EngineError{Detail: snap.Err}
	}

	return model.TraceResult{
		Summary: fmt.Sprintf("Traceroute to %s (%s), %d hops max, %d byte packets",
			hostname, addr, maxTTL, packetSize),
		Hops: Reconcile(ctx, t.opts.Resolver, snap),
	}, nil
}

// Reconcile flattens a snapshot into display rows: a TTL that drew no
// responses still gets one blank row, a TTL with k addresses gets k rows
// with the TTL printed only on the first. It holds no state of its own, so
// re-running it on the same snapshot yields the same rows.
func Reconcile(ctx context.Context, resolver Resolver, snap engine.Snapshot) []model.Hop {
	hops := []model.Hop{}
	for _, probed := range snap.Hops {
		ttl := strconv.Itoa(probed.TTL)
		samples := formatSamples(probed.Samples)

		if len(probed.Addrs) == 0 {
			hops = append(hops, model.Hop{TTL: ttl, Samples: samples})
			continue
		}
		for i, addr := range probed.Addrs {
			hop := model.Hop{
				Host:    resolver.ReverseLookup(ctx, addr),
				Address: addr.String(),
				Samples: samples,
			}
			if i == 0 {
				hop.TTL = ttl
			}
			hops = append(hops, hop)
		}
	}
	return hops
}

func formatSamples(samples []time.Duration) string {
	parts := make([]string, 0, len(samples))
	for _, s := range samples {
		parts = append(parts, fmt.Sprintf("%.3f ms", float64(s)/float64(time.Millisecond)))
	}
	return strings.Join(parts, "  ")
}
