// Command propagate runs scripted event propagation scenarios written in YAML.
//
//	propagate run [--trace] [--log-level LEVEL] [--no-color] [--report] FILE...
//	propagate check [--no-color] FILE...
//	propagate phases
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/saylorsolutions/propagate/cli"
	"github.com/saylorsolutions/propagate/env"
	"github.com/saylorsolutions/propagate/event"
	"github.com/saylorsolutions/propagate/scenario"
	"github.com/saylorsolutions/propagate/signalx"
	"github.com/saylorsolutions/propagate/slogx"
	flag "github.com/spf13/pflag"
)

const (
	envLogLevel = "PROPAGATE_LOG_LEVEL"
	envTrace    = "PROPAGATE_TRACE"
	envNoColor  = "PROPAGATE_NO_COLOR"
)

const (
	exitOK = iota
	exitFailed
	exitUsage
)

var errFailed = errors.New("scenarios failed")

var phaseDescriptions = map[event.Phase]string{
	event.PhaseNone:      "No dispatch is running",
	event.PhaseCapturing: "Ancestors, from the root toward the target, running capture listeners",
	event.PhaseAtTarget:  "The target, running capture listeners and then bubble listeners",
	event.PhaseBubbling:  "Ancestors, from the target toward the root, running bubble listeners",
}

func main() {
	ctx, stop := signalx.Interrupt(context.Background())
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type app struct {
	ctx    context.Context
	stdout io.Writer
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{ctx: ctx, stdout: stdout}
	set := a.commands()
	printer := set.Printer()
	printer.Redirect(stderr)
	if set.RespondUsage(args, "Runs event propagation scenarios written in YAML.") {
		return exitOK
	}
	err := set.Exec(args)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, &cli.UsageError{}):
		return exitUsage
	case errors.Is(err, errFailed):
		return exitFailed
	default:
		printer.Println(printer.Style("error:", cli.StyleRed, cli.StyleBold), err)
		return exitFailed
	}
}

func (a *app) commands() *cli.CommandSet {
	set := cli.NewCommandSet("propagate")
	set.PreExec(configureColor)

	run := set.AddCommand("run", "Runs scenario files, reporting PASS or FAIL for each", "r").
		Usage("[FLAGS] FILE...").
		Does(a.run)
	flags := run.Flags()
	flags.Bool("trace", env.Bool(envTrace, false), "Prints the engine's trace of each scenario after its result ($"+envTrace+")")
	flags.String("log-level", strings.ToLower(slogx.LevelName(env.Level(envLogLevel, slog.LevelInfo))),
		"Engine log level: trace, debug, checkpoint, info, warn, or error ($"+envLogLevel+")")
	flags.Bool("report", false, "Writes a YAML report of every step to STDOUT")
	addColorFlag(flags)

	check := set.AddCommand("check", "Parses and validates scenario files without running them", "c").
		Usage("[FLAGS] FILE...").
		Does(a.check)
	addColorFlag(check.Flags())

	set.AddCommand("phases", "Prints the event phases in traversal order").Does(a.phases)
	return set
}

func addColorFlag(flags *flag.FlagSet) {
	flags.Bool("no-color", env.Bool(envNoColor, false), "Disables styled output ($"+envNoColor+")")
}

func configureColor(flags *flag.FlagSet, printer *cli.Printer) error {
	if flags.Lookup("no-color") != nil && cli.MustGet(flags.GetBool("no-color")) {
		printer.SetColor(false)
	}
	return nil
}

func (a *app) run(flags *flag.FlagSet, printer *cli.Printer) error {
	files := flags.Args()
	if err := cli.RequireArgs(files, 1, "FILE..."); err != nil {
		return err
	}
	level, err := slogx.ParseLevel(cli.MustGet(flags.GetString("log-level")))
	if err != nil {
		return cli.NewUsageError("%w", err)
	}
	var (
		trace    = cli.MustGet(flags.GetBool("trace"))
		report   = cli.MustGet(flags.GetBool("report"))
		recorder = slogx.NewRecorder(slogx.LevelTrace)
		handler  slog.Handler
	)
	handler = slog.NewTextHandler(printer.Writer(), &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: slogx.ReplaceLevelNames,
	})
	if trace {
		handler = slogx.MergeHandlers(handler, recorder)
	}
	log := slog.New(slogx.Dedupe(handler))

	var failed int
	for i, path := range files {
		if err := a.ctx.Err(); err != nil {
			printer.Printf("Interrupted, skipping %d remaining scenario(s)\n", len(files)-i)
			return err
		}
		recorder.Reset()
		if !a.runFile(path, log.With("file", path), printer, report) {
			failed++
		}
		if trace {
			printTrace(printer, recorder.Records())
		}
	}
	printer.Printf("%d passed, %d failed\n", len(files)-failed, failed)
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errFailed, failed, len(files))
	}
	return nil
}

func (a *app) runFile(path string, log *slog.Logger, printer *cli.Printer, writeReport bool) bool {
	s, err := scenario.Load(path)
	if err != nil {
		printer.Printf("%s %s\n    %v\n", printer.Style("FAIL", cli.StyleRed, cli.StyleBold), path, err)
		return false
	}
	report, err := scenario.Run(s, scenario.WithLogger(log))
	if report == nil {
		printer.Printf("%s %s\n    %v\n", printer.Style("FAIL", cli.StyleRed, cli.StyleBold), path, err)
		return false
	}
	if report.Passed {
		printer.Printf("%s %s (%s)\n", printer.Style("PASS", cli.StyleGreen, cli.StyleBold), report.Name, path)
	} else {
		printer.Printf("%s %s (%s)\n", printer.Style("FAIL", cli.StyleRed, cli.StyleBold), report.Name, path)
		for _, step := range report.Steps {
			for _, failure := range step.Failures {
				printer.Printf("    step %d (%s): %s\n", step.Index, step.Op, failure)
			}
		}
	}
	if writeReport {
		data, err := report.YAML()
		if err != nil {
			printer.Printf("    failed to write report: %v\n", err)
			return false
		}
		_, _ = fmt.Fprintf(a.stdout, "---\n%s", data)
	}
	return report.Passed
}

func printTrace(printer *cli.Printer, records []slogx.Record) {
	for _, rec := range records {
		var line strings.Builder
		fmt.Fprintf(&line, "    %-10s %s", slogx.LevelName(rec.Level), rec.Message)
		for _, key := range slices.Sorted(maps.Keys(rec.Attrs)) {
			if key == "file" {
				continue
			}
			fmt.Fprintf(&line, " %s=%s", key, rec.Attrs[key])
		}
		printer.Println(printer.Style(line.String(), cli.StyleDim))
	}
}

func (a *app) check(flags *flag.FlagSet, printer *cli.Printer) error {
	files := flags.Args()
	if err := cli.RequireArgs(files, 1, "FILE..."); err != nil {
		return err
	}
	var failed int
	for _, path := range files {
		s, err := scenario.Load(path)
		if err != nil {
			failed++
			printer.Printf("%s %s\n    %v\n", printer.Style("INVALID", cli.StyleRed, cli.StyleBold), path, err)
			continue
		}
		printer.Printf("%s %s (%s, %d steps)\n", printer.Style("OK", cli.StyleGreen, cli.StyleBold), s.Name, path, len(s.Steps))
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d invalid", errFailed, failed, len(files))
	}
	return nil
}

func (a *app) phases(_ *flag.FlagSet, printer *cli.Printer) error {
	for _, phase := range event.Phases() {
		printer.Printf("%d  %-10s %s\n", int(phase), phase, phaseDescriptions[phase])
	}
	return nil
}
