package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/netwrench/netwrench/internal/commands"
	"github.com/netwrench/netwrench/internal/log"
)

var (
	version = "dev"
	commit  = "n/a"
	date    = "n/a"
)

func main() {
	ctx := &commands.AppContext{}

	// Define flags
	flag.StringVar(&ctx.ConfigPath, "config", "/etc/netwrench/netwrench.conf", "Path to configuration file")
	flag.BoolVar(&ctx.Verbose, "verbose", false, "Enable debug logging")

	// Custom usage message
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Declarative Network Tuning Manager\n")
		fmt.Fprintf(os.Stderr, "Version: %s (Commit: %s, Date: %s)\n\n", version, commit, date)
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <command>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  validate                Validate a change request against the policy catalog\n")
		fmt.Fprintf(os.Stderr, "  render                  Render a change request into its command set\n")
		fmt.Fprintf(os.Stderr, "  apply                   Apply a change request (checkpoint, execute, roll back on failure)\n")
		fmt.Fprintf(os.Stderr, "  checkpoint              Manage checkpoints (list, show, create, rollback, delete, prune)\n")
		fmt.Fprintf(os.Stderr, "  interfaces              Get available interfaces list\n")
		fmt.Fprintf(os.Stderr, "  resolve                 Resolve a hostname the way DSCP rules would see it\n")
		fmt.Fprintf(os.Stderr, "  self-check              Run self-check\n")
		fmt.Fprintf(os.Stderr, "  serve                   Run the HTTP API server\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if ctx.Verbose {
		log.SetVerbose(true)
	}

	// Ensure cfg file exists
	if _, err := os.Stat(ctx.ConfigPath); errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Configuration file not found: %s", ctx.ConfigPath)
	}

	cmds := []commands.Runner{
		commands.CreateValidateCommand(),
		commands.CreateRenderCommand(),
		commands.CreateApplyCommand(),
		commands.CreateCheckpointCommand(),
		commands.CreateInterfacesCommand(),
		commands.CreateResolveCommand(),
		commands.CreateSelfCheckCommand(),
		commands.CreateServeCommand(version),
	}

	args := flag.Args()

	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	subcommand := args[0]
	for _, cmd := range cmds {
		if cmd.Name() == subcommand {
			if err := cmd.Init(args[1:], ctx); err != nil {
				log.Fatalf("Failed to initialize command: %v", err)
			}

			if err := cmd.Run(); err != nil {
				log.Fatalf("Failed to run command: %v", err)
			}

			os.Exit(0)
		}
	}

	log.Fatalf("Unknown subcommand: %s", subcommand)
}
