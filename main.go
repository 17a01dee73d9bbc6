package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/fatih/color"
	"github.com/tliron/commonlog"

	"mosbol/grammar"
	"mosbol/internal/ai"
	"mosbol/internal/errors"
	"mosbol/internal/ir"
)

func main() {
	verbose := flag.Bool("v", false, "enable debug logging")
	dumpPath := flag.String("dump", "", "write a compressed per-phase IR dump to this file")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Println("Usage: mosbol [-v] [-dump file] <file.mir>")
		os.Exit(1)
	}
	path := flag.Arg(0)

	if *verbose {
		commonlog.Configure(1, nil)
	} else {
		commonlog.Configure(0, nil)
	}

	source, err := os.ReadFile(path)
	if err != nil {
		color.Red("Failed to read file: %s", err)
		os.Exit(1)
	}

	file, err := grammar.ParseSource(path, string(source))
	if err != nil {
		reportParseError(path, string(source), err)
		os.Exit(1)
	}

	g, err := ir.Build(file)
	if err != nil {
		reporter := errors.NewReporter(path, string(source))
		fmt.Print(reporter.Format(errors.Diagnostic{
			Level:   errors.Error,
			Code:    errors.ErrorBuild,
			Message: err.Error(),
		}))
		os.Exit(1)
	}

	opts := ai.Options{}
	if *dumpPath != "" {
		f, err := os.Create(*dumpPath)
		if err != nil {
			color.Red("Failed to create dump file: %s", err)
			os.Exit(1)
		}
		defer f.Close()
		dump, err := ai.NewPhaseDump(f)
		if err != nil {
			color.Red("Failed to set up dump: %s", err)
			os.Exit(1)
		}
		defer dump.Close()
		opts.Dump = dump
	}

	updated, err := ai.OptimizeOpts(g, opts)
	if err != nil {
		code := errors.ErrorInvariant
		if err == ai.ErrCapacity {
			code = errors.ErrorCapacity
		}
		color.Red("%s[%s]: %s", "error", code, err)
		os.Exit(1)
	}

	fmt.Print(ir.Print(g))

	if updated {
		color.Green("✅ Optimized %s", path)
	} else {
		color.Green("✅ No changes needed for %s", path)
	}
}

// reportParseError prints a friendly caret-style parse error message.
func reportParseError(path, src string, err error) {
	pe, ok := err.(participle.Error)
	if !ok {
		color.Red("Unexpected error: %s", err)
		return
	}

	pos := pe.Position()
	lines := strings.Split(src, "\n")
	if pos.Line <= 0 || pos.Line > len(lines) {
		color.Red("Syntax error at unknown location: %s", err)
		return
	}

	reporter := errors.NewReporter(path, src)
	fmt.Print(reporter.Format(errors.Diagnostic{
		Level:   errors.Error,
		Code:    errors.ErrorSyntax,
		Message: pe.Message(),
		Line:    pos.Line,
		Column:  pos.Column,
	}))
}
