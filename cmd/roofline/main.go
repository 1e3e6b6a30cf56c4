package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/jessevdk/go-flags"
	"github.com/tebeka/atexit"
	"github.com/zyedidia/roofline"
	"github.com/zyedidia/roofline/utrace"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var errPrefix = color.New(color.FgRed, color.Bold).SprintFunc()

func fatal(a ...interface{}) {
	fmt.Fprint(os.Stderr, errPrefix("error: "))
	fmt.Fprintln(os.Stderr, a...)
	atexit.Exit(1)
}

func must(desc string, err error) {
	if err != nil {
		for _, e := range multierr.Errors(err) {
			fmt.Fprintln(os.Stderr, errPrefix(desc+":"), e)
		}
		atexit.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	cfg.DisableStacktrace = true
	cfg.DisableCaller = !verbose
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return cfg.Build()
}

func metricsWriter(w io.Writer) roofline.MetricsWriter {
	if opts.Csv {
		return roofline.NewCSVWriter(w)
	}
	return roofline.NewTableWriter(w)
}

func newParser() *flags.Parser {
	p := flags.NewParser(&opts, flags.PassDoubleDash|flags.PrintErrors)
	p.Usage = "[OPTIONS] COMMAND [ARGS]"
	return p
}

// parseArgs parses the command line into opts. Values from the --config file
// only fill the options the command line left at their default.
func parseArgs(p *flags.Parser, argv []string) ([]string, error) {
	args, err := p.ParseArgs(argv)
	if err != nil {
		return nil, err
	}
	if opts.Config != "" {
		ini := flags.NewIniParser(p)
		ini.ParseAsDefaults = true
		if err := ini.ParseFile(opts.Config); err != nil {
			return nil, err
		}
	}
	return args, nil
}

func main() {
	flagparser := newParser()
	args, err := parseArgs(flagparser, os.Args[1:])
	var ferr *flags.Error
	if errors.As(err, &ferr) {
		// already printed
		os.Exit(1)
	}
	must("config", err)

	if opts.Version {
		fmt.Println("roofline version", roofline.Version)
		os.Exit(0)
	}

	if len(args) <= 0 || opts.Help {
		flagparser.WriteHelp(os.Stdout)
		os.Exit(0)
	}

	logger, err := newLogger(opts.Verbose)
	must("logger", err)
	atexit.Register(func() {
		logger.Sync()
	})
	roofline.SetLogger(logger)
	utrace.SetLogger(logger.Named("utrace"))

	cfg, err := config()
	must("config", err)
	must("config", cfg.Validate())

	target := args[0]
	args = args[1:]

	eng, err := roofline.Run(target, args, cfg)
	if errors.Is(err, roofline.ErrNoROIStart) || errors.Is(err, roofline.ErrNoROIEnd) || errors.Is(err, roofline.ErrUnbalancedROI) {
		ctr := eng.Counters()
		fatal(fmt.Sprintf("%v (starts: %d, ends: %d); no report written", err, ctr.Starts(), ctr.Ends()))
	}
	must("run", err)

	if opts.Summary {
		out := io.Writer(os.Stdout)
		if opts.SummaryOutput != "" {
			f, err := os.Create(opts.SummaryOutput)
			must("summary", err)
			atexit.Register(func() {
				f.Close()
			})
			out = f
		}

		w := metricsWriter(out)
		threads := eng.Reports().Threads()
		if opts.SortKey == "" {
			roofline.WriteSummary(w, threads, cfg.Timing)
		} else {
			must("summary", roofline.WriteSortedSummary(w, threads, cfg.Timing, opts.SortKey, opts.ReverseSort))
		}
	}
	atexit.Exit(0)
}
