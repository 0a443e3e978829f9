// xmlbox reformats XML documents. Each file argument, or standard input
// when none is given, is parsed and written to standard output with the
// requested layout. With --tree the intermediate box tree is printed as
// YAML instead.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/KimNorgaard/go-xmlbox"
	"github.com/KimNorgaard/go-xmlbox/internal/parser"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type config struct {
	indent          int
	sortKeys        bool
	noEmptyElements bool
	header          bool
	tree            bool
	context         int
	verbose         bool
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var cfg config
	flagSet := pflag.NewFlagSet("xmlbox", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.IntVarP(&cfg.indent, "indent", "i", 2, "spaces per nesting level, 0 writes a single line")
	flagSet.BoolVarP(&cfg.sortKeys, "sort-keys", "s", false, "order attributes and elements by key")
	flagSet.BoolVar(&cfg.noEmptyElements, "no-empty-elements", false, "write empty elements as <k></k>")
	flagSet.BoolVar(&cfg.header, "header", false, "prefix the output with an XML declaration")
	flagSet.BoolVar(&cfg.tree, "tree", false, "print the box tree as YAML instead of XML")
	flagSet.IntVar(&cfg.context, "context", 20, "codepoints of input shown around a syntax error")
	flagSet.BoolVarP(&cfg.verbose, "verbose", "v", false, "log debug output")
	flagSet.Usage = func() {
		fmt.Fprintf(stderr, "usage: xmlbox [flags] [file ...]\n\n")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	level := slog.LevelWarn
	if cfg.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	files := flagSet.Args()
	if len(files) == 0 {
		files = []string{"-"}
	}
	status := 0
	for _, name := range files {
		if err := process(name, stdin, stdout, &cfg, logger); err != nil {
			logger.Error("cannot process document", "file", name, "error", err)
			status = 1
		}
	}
	return status
}

func process(name string, stdin io.Reader, stdout io.Writer, cfg *config, logger *slog.Logger) error {
	data, err := read(name, stdin)
	if err != nil {
		return err
	}
	logger.Debug("read document", "file", name, "bytes", len(data))

	if cfg.tree {
		return dumpTree(data, stdout, cfg)
	}

	opts := []xmlbox.Option{
		xmlbox.Indent(cfg.indent),
		xmlbox.ErrorContextLength(cfg.context),
		xmlbox.Logger(logger),
	}
	if cfg.sortKeys {
		opts = append(opts, xmlbox.SortedKeys())
	}
	if cfg.noEmptyElements {
		opts = append(opts, xmlbox.NoEmptyElements())
	}
	if cfg.header {
		opts = append(opts, xmlbox.Header())
	}
	out, err := xmlbox.Format(data, opts...)
	if err != nil {
		return err
	}
	if _, err := stdout.Write(out); err != nil {
		return err
	}
	_, err = io.WriteString(stdout, "\n")
	return err
}

func read(name string, stdin io.Reader) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(name)
}

func dumpTree(data []byte, stdout io.Writer, cfg *config) error {
	p := parser.New(data, parser.Options{TrimValueWhitespaces: true, ContextLength: cfg.context})
	doc := p.Parse()
	if errs := p.Errors(); len(errs) > 0 {
		return errs
	}
	root := &yaml.Node{
		Kind: yaml.MappingNode,
		Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Value: doc.RootName},
			doc.Tree.YAML(doc.Root),
		},
	}
	enc := yaml.NewEncoder(stdout)
	indent := cfg.indent
	if indent <= 0 {
		indent = 2
	}
	enc.SetIndent(indent)
	if err := enc.Encode(root); err != nil {
		return err
	}
	return enc.Close()
}
