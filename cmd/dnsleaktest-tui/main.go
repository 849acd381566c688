package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/mattn/go-isatty"
	"github.com/orhun/dnsleaktest-tui/internal/analyze"
	"github.com/orhun/dnsleaktest-tui/internal/leak"
	"github.com/orhun/dnsleaktest-tui/internal/model"
	"github.com/orhun/dnsleaktest-tui/internal/output"
	"github.com/orhun/dnsleaktest-tui/internal/resolver"
	"github.com/orhun/dnsleaktest-tui/internal/trace"
	"github.com/orhun/dnsleaktest-tui/internal/tui"
	"go.uber.org/zap"
)

var Version = "dev"

type CLI struct {
	Target  string           `default:"discord.com" help:"Traceroute target hostname."`
	JSON    bool             `help:"Print the report as JSON instead of starting the TUI."`
	Verbose bool             `help:"Enable verbose logging."`
	Debug   bool             `help:"Enable debug logging."`
	Version kong.VersionFlag `help:"Print version."`
}

func main() {
	cli := CLI{}
	kong.Parse(&cli,
		kong.Name("dnsleaktest-tui"),
		kong.Description("Run a DNS leak test and a traceroute, presented as terminal tables."),
		kong.Vars{"version": Version},
	)

	logger, err := newLogger(cli.Verbose, cli.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cli, logger); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cli CLI, logger *zap.Logger) error {
	ctx := context.Background()

	fmt.Println("Collecting DNS leak test data...")
	prober := leak.New(leak.Options{Logger: logger})
	leakRecords, err := prober.Probe(ctx)
	if err != nil {
		return err
	}

	fmt.Println("Running traceroute...")
	res, err := resolver.New(resolver.Options{Logger: logger})
	if err != nil {
		return err
	}
	tracer := trace.New(trace.Options{Resolver: res, Logger: logger})
	traceResult, err := tracer.Run(ctx, cli.Target)
	if err != nil {
		return err
	}

	verdict := analyze.Classify(leakRecords)

	if cli.JSON {
		rendered, err := output.RenderJSON(model.Report{Leak: leakRecords, Trace: traceResult, Verdict: verdict})
		if err != nil {
			return err
		}
		fmt.Println(rendered)
		return nil
	}

	if !isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Println(output.RenderPretty(model.Report{Leak: leakRecords, Trace: traceResult, Verdict: verdict}))
		return nil
	}

	return tui.Run(leakRecords, traceResult, verdict)
}

func newLogger(verbose bool, debug bool) (*zap.Logger, error) {
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return cfg.Build()
}
