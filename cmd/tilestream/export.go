package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/eak1mov/go-tilestream/config"
	"github.com/eak1mov/go-tilestream/index"
	"github.com/eak1mov/go-tilestream/tile"
	"github.com/google/subcommands"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

type exportCmd struct {
	inputKind  string
	inputPath  string
	outputPath string
}

func (c *exportCmd) Name() string     { return "export" }
func (c *exportCmd) Synopsis() string { return "export a store into a packed tile archive" }
func (c *exportCmd) Usage() string {
	return "tilestream export -i <path> -o <path> [-ik <kind>]\n" +
		"Writes <path> with the payloads and <path>.idx with the index.\n"
}
func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.inputPath, "i", "", "Input path")
	f.StringVar(&c.inputKind, "ik", "", "Input kind (dir, sqlite)")
	f.StringVar(&c.outputPath, "o", "", "Output data file path")
}

func (c *exportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
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

	n, err := exportPack(ctx, inputCfg, c.outputPath, l)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	l.Info("archive written", zap.String("path", c.outputPath), zap.Int("tiles", n))
	return subcommands.ExitSuccess
}

func exportPack(ctx context.Context, inputCfg config.Store, outputPath string, l *zap.Logger) (int, error) {
	input, err := openRawStore(ctx, inputCfg, l)
	if err != nil {
		return 0, err
	}
	defer closeStore(input)

	reader, ok := input.(tile.Visitor)
	if !ok {
		return 0, fmt.Errorf("store kind %q cannot be enumerated", inputCfg.Kind)
	}

	writer, err := index.NewWriter(outputPath)
	if err != nil {
		return 0, err
	}
	defer writer.Close()

	count := 0
	bar := progressbar.NewOptions(-1, progressbar.OptionShowIts(), progressbar.OptionShowCount())
	var visitErr error
	for idx, data := range tile.IterPayloads(reader, &visitErr) {
		if err = writer.WriteTile(idx, data); err != nil {
			break
		}
		count++
		bar.Add(1)
	}
	bar.Finish()
	fmt.Println()

	if err = errors.Join(err, visitErr); err != nil {
		return 0, err
	}
	return count, writer.Finalize()
}
