// Command bankctl inspects, merges and exports question bank files.
//
//	bankctl stats  [-bank path]
//	bankctl merge  [-out path] input.json...
//	bankctl export [-bank path] [-out file.xlsx] [-subject name]...
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/p-n-ai/examino/internal/bank"
	"github.com/p-n-ai/examino/internal/platform/config"
	"github.com/p-n-ai/examino/internal/platform/logging"
)

const writeTimeout = 30 * time.Second

type subjectList []string

func (l *subjectList) String() string { return strings.Join(*l, ",") }
func (l *subjectList) Set(v string) error {
	if v = strings.TrimSpace(v); v != "" {
		*l = append(*l, v)
	}
	return nil
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	slog.SetDefault(logging.NewWithWriter(stderr, config.LogConfig{Level: cfg.Log.Level, Format: "text"}))

	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	switch args[0] {
	case "stats":
		err = runStats(ctx, cfg, args[1:], stdout, stderr)
	case "merge":
		err = runMerge(ctx, args[1:], stdout, stderr)
	case "export":
		err = runExport(ctx, cfg, args[1:], stdout, stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", args[0], err)
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: bankctl <stats|merge|export> [flags]")
}

func runStats(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("bank", cfg.Bank.Path, "question bank file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := bank.New(bank.Config{Path: *path})
	if err != nil {
		return err
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		return err
	}
	return printJSON(stdout, stats)
}

func runMerge(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("merge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", "question_bank.json", "merged bank file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("at least one input file is required")
	}

	readers := make([]io.Reader, 0, fs.NArg())
	for _, name := range fs.Args() {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()
		readers = append(readers, f)
	}

	doc, res, err := bank.Merge(readers...)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := doc.Encode(&buf); err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := bank.WriteFileAtomic(wctx, *out, buf.Bytes()); err != nil {
		return err
	}

	return printJSON(stdout, struct {
		bank.MergeResult
		Path string `json:"path"`
	}{MergeResult: res, Path: *out})
}

func runExport(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("bank", cfg.Bank.Path, "question bank file")
	out := fs.String("out", "question_bank.xlsx", "workbook to write")
	var subjects subjectList
	fs.Var(&subjects, "subject", "subject to export (repeatable, default all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := bank.New(bank.Config{Path: *path})
	if err != nil {
		return err
	}
	doc, err := s.Load(ctx)
	if err != nil {
		return err
	}
	known := make(map[string]bool)
	for _, name := range doc.Subjects() {
		known[name] = true
	}
	for _, name := range subjects {
		if !known[name] {
			return fmt.Errorf("subject %q is not in %s", name, *path)
		}
	}

	var buf bytes.Buffer
	if err := bank.ExportXLSX(&buf, doc, subjects...); err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := bank.WriteFileAtomic(wctx, *out, buf.Bytes()); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s\n", *out)
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
