// Command cpk-tool lists and extracts files from CPK archives.
//
// Usage:
//
//	cpk-tool [-v] [-log-format text|json] list <input>
//	cpk-tool [-v] [-log-format text|json] extract <input> <target|all> [-o <dir>]
//	cpk-tool [-v] [-log-format text|json] replace <input> <target> <replacement> [-o <output>]
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/arloliu/cpk"
)

func main() {
	verbose := flag.Bool("v", false, "enable debug logging")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	flag.Parse()

	// Configure slog
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if *logFormat == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, opts)))
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
	}

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}

	var err error
	switch args[0] {
	case "list":
		err = runList(args[1:])
	case "extract":
		err = runExtract(args[1:])
	case "replace":
		err = runReplace(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		usage()
		os.Exit(1)
	}

	if err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  cpk-tool [flags] list <input>")
	fmt.Fprintln(os.Stderr, "  cpk-tool [flags] extract <input> <target|all> [-o <dir>]")
	fmt.Fprintln(os.Stderr, "  cpk-tool [flags] replace <input> <target> <replacement> [-o <output>]")
	flag.PrintDefaults()
}

func runList(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("list: expected <input>")
	}

	archive := cpk.New()
	if err := archive.Read(args[0]); err != nil {
		return err
	}

	for _, entry := range archive.FileTable {
		if entry.FileType == "FILE" {
			fmt.Println(entry.FullPath())
		}
	}

	return nil
}

func runExtract(args []string) error {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	outputDir := fs.String("o", "", "output directory")
	if len(args) < 2 {
		return fmt.Errorf("extract: expected <input> <target|all>")
	}
	input, target := args[0], args[1]
	if err := fs.Parse(args[2:]); err != nil {
		return err
	}

	archive := cpk.New()
	if err := archive.Read(input); err != nil {
		return err
	}

	var opts []cpk.ExtractOption
	if *outputDir != "" {
		opts = append(opts, cpk.WithOutputDir(*outputDir))
	}

	if strings.EqualFold(target, "all") {
		slog.Info("extracting all files", "input", input)
		return archive.ExtractAll(input, opts...)
	}

	slog.Info("extracting file", "input", input, "target", target)

	return archive.ExtractFile(input, target, opts...)
}

func runReplace(args []string) error {
	fs := flag.NewFlagSet("replace", flag.ContinueOnError)
	output := fs.String("o", "", "output CPK file (defaults to modifying input)")
	if len(args) < 3 {
		return fmt.Errorf("replace: expected <input> <target> <replacement>")
	}
	input, target, replacement := args[0], args[1], args[2]
	if err := fs.Parse(args[3:]); err != nil {
		return err
	}

	outputPath := *output
	if outputPath == "" {
		outputPath = input
	}

	archive := cpk.New()
	if err := archive.Read(input); err != nil {
		return err
	}

	return archive.Replace(input, target, replacement, outputPath)
}
