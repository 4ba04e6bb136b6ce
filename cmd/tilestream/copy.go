package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/eak1mov/go-tilestream/config"
	"github.com/eak1mov/go-tilestream/tile"
	"github.com/google/subcommands"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

type copyCmd struct {
	inputKind  string
	inputPath  string
	outputKind string
	outputPath string
}

func (c *copyCmd) Name() string     { return "copy" }
func (c *copyCmd) Synopsis() string { return "copy raw payloads between stores" }
func (c *copyCmd) Usage() string {
	return "tilestream copy -i <path> -o <path> [-ik <kind> | -ok <kind>]\n"
}
func (c *copyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.inputPath, "i", "", "Input path")
	f.StringVar(&c.inputKind, "ik", "", "Input kind (dir, sqlite, pack)")
	f.StringVar(&c.outputPath, "o", "", "Output path")
	f.StringVar(&c.outputKind, "ok", "", "Output kind (dir, sqlite, redis)")
}

func (c *copyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if c.inputPath == "" || c.outputPath == "" {
		log.Println("both -i and -o are required")
		return subcommands.ExitUsageError
	}

	cfg, l, err := loadConfig()
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	defer l.Sync()

	inputCfg := cfg.Store
	inputCfg.Path, inputCfg.Kind = c.inputPath, deduceKind(c.inputKind, c.inputPath)
	outputCfg := cfg.Store
	outputCfg.Path, outputCfg.Kind = c.outputPath, deduceKind(c.outputKind, c.outputPath)

	if err := copyPayloads(ctx, inputCfg, outputCfg, l); err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// copyPayloads copies stored bytes as they are, compressed or not.
func copyPayloads(ctx context.Context, inputCfg, outputCfg config.Store, l *zap.Logger) error {
	input, err := openRawStore(ctx, inputCfg, l)
	if err != nil {
		return err
	}
	defer closeStore(input)

	reader, ok := input.(tile.Visitor)
	if !ok {
		return fmt.Errorf("store kind %q cannot be enumerated", inputCfg.Kind)
	}

	output, err := openRawStore(ctx, outputCfg, l)
	if err != nil {
		return err
	}
	defer closeStore(output)

	bar := progressbar.NewOptions(-1, progressbar.OptionShowIts(), progressbar.OptionShowCount())
	defer fmt.Println()
	defer bar.Finish()

	var visitErr error
	for idx, data := range tile.IterPayloads(reader, &visitErr) {
		if err := output.Put(ctx, idx, data); err != nil {
			return fmt.Errorf("copy tile %v: %w", idx, err)
		}
		bar.Add(1)
	}
	return visitErr
}
