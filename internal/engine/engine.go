package engine

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds the probing parameters for a traceroute campaign. All fields
// are fixed for the lifetime of a Tracer.
type Config struct {
	FirstTTL     int
	MaxTTL       int
	Port         int // fixed destination port
	PacketSize   int // full IP packet size in bytes
	Rounds       int
	MinRoundWait time.Duration
	MaxRoundWait time.Duration
	TOS          int
	Timeout      time.Duration // per-probe reply wait
	Logger       *zap.Logger
}

// Snapshot is the engine's final aggregated state after all configured
// rounds complete. A fatal socket error is recorded in Err rather than
// aborting with a partial hop list.
type Snapshot struct {
	Err  string
	Hops []HopProbes
}

// HopProbes aggregates every response observed for one TTL across rounds:
// responding addresses in first-seen order and one latency sample per round
// that produced a reply.
type HopProbes struct {
	TTL     int
	Addrs   []netip.Addr
	Samples []time.Duration
}

type reply struct {
	from    netip.Addr
	rtt     time.Duration
	reached bool
	timeout bool
}

// Tracer drives repeated probing rounds against a single target. The probe
// function is a field so tests can exercise the round/aggregation logic
// without sockets.
type Tracer struct {
	target netip.Addr
	cfg    Config
	probe  func(ctx context.Context, ttl int) (reply, error)

	mu        sync.Mutex
	perTTL    map[int]*HopProbes
	reachTTL  int // 0 until the destination answered
	maxProbed int
	errText   string
}

func New(target netip.Addr, cfg Config) *Tracer {
	if cfg.FirstTTL == 0 {
		cfg.FirstTTL = 1
	}
	if cfg.MaxTTL == 0 {
		cfg.MaxTTL = 30
	}
	if cfg.Rounds == 0 {
		cfg.Rounds = 1
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	t := &Tracer{
		target: target,
		cfg:    cfg,
		perTTL: map[int]*HopProbes{},
	}
	prober := newUDPProber(target, cfg)
	t.probe = prober.probe
	return t
}

// Run blocks for the whole campaign: Rounds sequential TTL walks with
// MinRoundWait spacing between them. Once the destination has answered at
// some TTL, later rounds stop there. A fatal socket error ends the campaign
// and is also recorded in the snapshot.
func (t *Tracer) Run(ctx context.Context) error {
	for round := 0; round < t.cfg.Rounds; round++ {
		if round > 0 {
			select {
			case <-ctx.Done():
				t.fail(ctx.Err().Error())
				return ctx.Err()
			case <-time.After(t.cfg.MinRoundWait):
			}
		}
		if err := t.runRound(ctx, round); err != nil {
			t.fail(err.Error())
			return err
		}
	}
	return nil
}

func (t *Tracer) runRound(ctx context.Context, round int) error {
	for ttl := t.cfg.FirstTTL; ttl <= t.flightLimit(); ttl++ {
		rep, err := t.probe(ctx, ttl)
		if err != nil {
			return err
		}
		t.record(ttl, rep)
		if rep.reached {
			t.cfg.Logger.Debug("destination reached",
				zap.Int("round", round),
				zap.Int("ttl", ttl),
				zap.Duration("rtt", rep.rtt),
			)
			break
		}
	}
	return nil
}

func (t *Tracer) flightLimit() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reachTTL > 0 {
		return t.reachTTL
	}
	return t.cfg.MaxTTL
}

func (t *Tracer) record(ttl int, rep reply) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ttl > t.maxProbed {
		t.maxProbed = ttl
	}
	if rep.timeout {
		return
	}

	hop, ok := t.perTTL[ttl]
	if !ok {
		hop = &HopProbes{TTL: ttl}
		t.perTTL[ttl] = hop
	}
	seen := false
	for _, addr := range hop.Addrs {
		if addr == rep.from {
			seen = true
			break
		}
	}
	if !seen {
		hop.Addrs = append(hop.Addrs, rep.from)
	}
	hop.Samples = append(hop.Samples, rep.rtt)

	if rep.reached && (t.reachTTL == 0 || ttl < t.reachTTL) {
		t.reachTTL = ttl
	}
}

func (t *Tracer) fail(detail string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errText = detail
}

// Snapshot returns the aggregated per-TTL view. Every probed TTL up to the
// reached hop (or the highest probed TTL when the destination never
// answered) gets an entry, responses or not.
func (t *Tracer) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	limit := t.maxProbed
	if t.reachTTL > 0 {
		limit = t.reachTTL
	}

	snap := Snapshot{Err: t.errText}
	for ttl := t.cfg.FirstTTL; ttl <= limit; ttl++ {
		if hop, ok := t.perTTL[ttl]; ok {
			snap.Hops = append(snap.Hops, HopProbes{
				TTL:     hop.TTL,
				Addrs:   append([]netip.Addr{}, hop.Addrs...),
				Samples: append([]time.Duration{}, hop.Samples...),
			})
			continue
		}
		snap.Hops = append(snap.Hops, HopProbes{TTL: ttl})
	}
	return snap
}
