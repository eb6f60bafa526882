package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/kr/pretty"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/blake2b"

	"github.com/ascrivener/jitseed/pkg/config"
	"github.com/ascrivener/jitseed/pkg/execmem"
	"github.com/ascrivener/jitseed/pkg/hostfn"
	"github.com/ascrivener/jitseed/pkg/jit"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	demo := flag.String("demo", "answer", "Program to run: answer, call or frame")
	argList := flag.String("args", "5,6", "Comma separated int32 arguments for the call and frame demos")
	logLevel := flag.String("log.level", "", "Log level (debug, info, warn, error); overrides the config file")
	dump := flag.Bool("dump", false, "Print the resolved configuration and exit")
	showMetrics := flag.Bool("metrics", false, "Log executable memory metrics before exiting")

	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid flags: %v\n", err)
			os.Exit(1)
		}
	}

	if *dump {
		pretty.Println(cfg)
		return
	}

	logger := newLogger(cfg.LogLevel)

	args, err := parseArgs(*argList)
	if err != nil {
		level.Error(logger).Log("msg", "invalid -args", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	provider := execmem.NewProvider(
		execmem.WithLogger(log.With(logger, "component", "execmem")),
		execmem.WithRegisterer(reg),
	)

	result, err := run(logger, provider, cfg, *demo, args)
	if *showMetrics {
		logMetrics(logger, reg)
	}
	if err != nil {
		level.Error(logger).Log("msg", "demo failed", "demo", *demo, "err", err)
		os.Exit(1)
	}

	fmt.Printf("Result: %d\n", result)
}

func newLogger(lvl string) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = level.NewFilter(logger, level.Allow(level.ParseDefault(lvl, level.InfoValue())))
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}

// run assembles the selected program, loads it into executable memory and
// invokes it once.
func run(logger log.Logger, provider execmem.Provider, cfg config.Config, demo string, args []int32) (int32, error) {
	var (
		code       []byte
		invokeArgs []int32
		err        error
	)

	switch demo {
	case "answer":
		code = jit.ConstProgram(42)

	case "call":
		if err := needs386(demo); err != nil {
			return 0, err
		}
		target, cleanup, err := registerSum(logger, len(args))
		if err != nil {
			return 0, err
		}
		defer cleanup()

		code, err = jit.CallProgram(target, args, cfg.ArgSpace())
		if err != nil {
			return 0, err
		}

	case "frame":
		if err := needs386(demo); err != nil {
			return 0, err
		}
		code, err = jit.SumArgsProgram(len(args))
		if err != nil {
			return 0, err
		}
		invokeArgs = args

	default:
		return 0, fmt.Errorf("unknown demo %q", demo)
	}

	digest := blake2b.Sum256(code)
	buf, err := jit.FromBytes(provider, code)
	if err != nil {
		return 0, err
	}
	defer buf.Close()

	level.Info(logger).Log(
		"msg", "code loaded",
		"demo", demo,
		"code_digest", fmt.Sprintf("%x", digest[:8]),
		"code_size", humanize.IBytes(uint64(buf.Len())),
		"region_size", humanize.IBytes(uint64(buf.RegionSize())),
	)
	level.Debug(logger).Log("msg", "code bytes", "hex", fmt.Sprintf("% x", code))

	return buf.InvokeArgs(invokeArgs...)
}

// needs386 rejects demos whose code moves esp as a 32-bit register.
func needs386(demo string) error {
	if runtime.GOARCH != "386" {
		return fmt.Errorf("demo %q runs 32-bit stack code and needs a 386 build, not %s", demo, runtime.GOARCH)
	}
	return nil
}

// registerSum exposes a Go function that adds its arguments and logs what it
// received, as a native entry point of the given arity.
func registerSum(logger log.Logger, arity int) (jit.NativeCallTarget, func(), error) {
	received := func(args ...int32) int32 {
		var sum int32
		for _, v := range args {
			sum += v
		}
		level.Info(logger).Log("msg", "host function called", "args", fmt.Sprint(args), "sum", sum)
		return sum
	}

	var (
		target jit.NativeCallTarget
		err    error
	)
	switch arity {
	case 0:
		target, err = hostfn.Register0(func() int32 { return received() })
	case 1:
		target, err = hostfn.Register1(func(a int32) int32 { return received(a) })
	case 2:
		target, err = hostfn.Register2(func(a, b int32) int32 { return received(a, b) })
	case 3:
		target, err = hostfn.Register3(func(a, b, c int32) int32 { return received(a, b, c) })
	default:
		return 0, nil, jit.ErrTooManyArgs
	}
	if err != nil {
		return 0, nil, fmt.Errorf("register host function: %w", err)
	}
	cleanup := func() {
		if err := hostfn.Unregister(target); err != nil {
			level.Warn(logger).Log("msg", "failed to unregister host function", "target", fmt.Sprintf("%#x", target), "err", err)
		}
	}
	return target, cleanup, nil
}

func parseArgs(s string) ([]int32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	fields := strings.Split(s, ",")
	if len(fields) > jit.MaxArgs {
		return nil, jit.ErrTooManyArgs
	}

	args := make([]int32, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseInt(strings.TrimSpace(f), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", f, err)
		}
		args = append(args, int32(v))
	}
	return args, nil
}

func logMetrics(logger log.Logger, reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		level.Warn(logger).Log("msg", "failed to gather metrics", "err", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var v float64
			switch {
			case m.GetCounter() != nil:
				v = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				v = m.GetGauge().GetValue()
			}
			level.Info(logger).Log("metric", mf.GetName(), "value", v)
		}
	}
}
