// Command reglang2msl translates a RegLang source file into an MSL program.
//
// Usage:
//
//	reglang2msl <input_file> <output_file>
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/luan-xiaokun/reglang2msl/pkg/reglang"
	"github.com/luan-xiaokun/reglang2msl/pkg/translator"
)

// cliConfig mirrors the optional YAML configuration file.
type cliConfig struct {
	Verbose bool `yaml:"verbose"`
	LogJSON bool `yaml:"log_json"`
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		verbose    bool
		configPath string
	)

	cmd := &cobra.Command{
		Use:          "reglang2msl <input_file> <output_file>",
		Short:        "Translate RegLang regulatory rules into MSL automata",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := cliConfig{}
			if configPath != "" {
				data, err := os.ReadFile(configPath)
				if err != nil {
					return fmt.Errorf("reading config file: %w", err)
				}
				if err := yaml.Unmarshal(data, &cfg); err != nil {
					return fmt.Errorf("parsing config file: %w", err)
				}
			}
			if verbose {
				cfg.Verbose = true
			}
			return translate(args[0], args[1], cfg)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	cmd.Flags().StringVar(&configPath, "config", "", "path to an optional YAML configuration file")
	return cmd
}

func newLogger(cfg cliConfig) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func translate(inputPath, outputPath string, cfg cliConfig) error {
	logger := newLogger(cfg)

	source, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("reading input file: %w", err)
	}

	parser, err := reglang.NewParser()
	if err != nil {
		return err
	}
	ast, err := parser.Parse(string(source))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", inputPath, err)
	}
	logger.Debug("parsed input", "path", inputPath)

	generator := translator.NewCodeGenerator(translator.WithLogger(logger))
	mslCode, err := generator.Generate(ast)
	if err != nil {
		return fmt.Errorf("translating %s: %w", inputPath, err)
	}

	if err := os.WriteFile(outputPath, []byte(mslCode), 0o644); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}
	logger.Debug("wrote output", "path", outputPath, "bytes", len(mslCode))
	return nil
}
