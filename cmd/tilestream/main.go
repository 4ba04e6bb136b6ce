package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
)

var envFile = flag.String("env", "", "Path of a .env file to load before reading the environment")

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&seedCmd{}, "")
	subcommands.Register(&copyCmd{}, "")
	subcommands.Register(&exportCmd{}, "")
	subcommands.Register(&simulateCmd{}, "")
	subcommands.Register(&serveCmd{}, "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}
