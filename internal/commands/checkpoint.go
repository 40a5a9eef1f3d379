package commands

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/netwrench/netwrench/internal/log"
)

func CreateCheckpointCommand() *CheckpointCommand {
	gc := &CheckpointCommand{
		fs: flag.NewFlagSet("checkpoint", flag.ExitOnError),
	}

	gc.fs.StringVar(&gc.Interface, "iface", "", "Interface to checkpoint (create action)")
	gc.fs.StringVar(&gc.Label, "label", "", "Checkpoint label (create action)")
	gc.fs.IntVar(&gc.Keep, "keep", 0, "How many checkpoints to retain (prune action, default from config)")
	gc.fs.BoolVar(&gc.JSON, "json", false, "Print results as JSON")

	gc.fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: checkpoint [options] <list|show|create|rollback|delete|prune> [id]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		gc.fs.PrintDefaults()
	}

	return gc
}

type CheckpointCommand struct {
	fs     *flag.FlagSet
	core   *Core
	action string
	id     string

	Interface string
	Label     string
	Keep      int
	JSON      bool
}

func (g *CheckpointCommand) Name() string {
	return g.fs.Name()
}

func (g *CheckpointCommand) Init(args []string, ctx *AppContext) error {
	if err := g.fs.Parse(args); err != nil {
		return err
	}

	rest := g.fs.Args()
	if len(rest) < 1 {
		g.fs.Usage()
		return fmt.Errorf("no checkpoint action given")
	}
	g.action = rest[0]

	switch g.action {
	case "show", "rollback", "delete":
		if len(rest) < 2 {
			return fmt.Errorf("checkpoint %s requires a checkpoint id", g.action)
		}
		g.id = rest[1]
	case "list", "prune":
	case "create":
		if g.Interface == "" {
			return fmt.Errorf("checkpoint create requires -iface")
		}
	default:
		return fmt.Errorf("unknown checkpoint action: %s", g.action)
	}

	cfg, err := loadAndValidateConfigOrFail(ctx.ConfigPath)
	if err != nil {
		return err
	}

	if g.Keep == 0 {
		g.Keep = cfg.Checkpoints.Keep
	}

	if g.core, err = buildCore(cfg, true); err != nil {
		return err
	}

	return nil
}

func (g *CheckpointCommand) Run() error {
	defer g.core.Close()
	ctx := context.Background()

	switch g.action {
	case "list":
		return g.runList(ctx)
	case "show":
		return g.runShow(ctx)
	case "create":
		return g.runCreate(ctx)
	case "rollback":
		return g.runRollback(ctx)
	case "delete":
		if err := g.core.Store.Delete(ctx, g.id); err != nil {
			return err
		}
		log.Infof("Checkpoint %s deleted", g.id)
		return nil
	case "prune":
		removed, err := g.core.Store.Prune(ctx, g.Keep)
		if err != nil {
			return err
		}
		log.Infof("Pruned %d checkpoint(s), keeping the newest %d", removed, g.Keep)
		return nil
	}

	return nil
}

func (g *CheckpointCommand) runList(ctx context.Context) error {
	checkpoints, err := g.core.Store.List(ctx)
	if err != nil {
		return err
	}

	if g.JSON {
		return printJSON(checkpoints)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tIFACE\tLABEL")
	for _, cp := range checkpoints {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", cp.ID, cp.CreatedAt.Format("2006-01-02 15:04:05"), cp.Interface, cp.Label)
	}
	return w.Flush()
}

func (g *CheckpointCommand) runShow(ctx context.Context) error {
	cp, err := g.core.Store.Get(ctx, g.id)
	if err != nil {
		return err
	}
	return printJSON(cp)
}

func (g *CheckpointCommand) runCreate(ctx context.Context) error {
	scope := fullScopeFor(g.core, g.Interface)
	cp, err := g.core.Store.Snapshot(ctx, scope, g.Label)
	if err != nil {
		return err
	}

	if g.JSON {
		return printJSON(cp)
	}
	log.Infof("Checkpoint %s created for %s", cp.ID, cp.Interface)
	return nil
}

func (g *CheckpointCommand) runRollback(ctx context.Context) error {
	outcome, err := g.core.Store.Restore(ctx, g.id)
	if outcome != nil {
		for _, note := range outcome.Notes {
			if note.OK {
				log.Infof("ok   %s", note.Command)
			} else {
				log.Errorf("FAIL %s: %s", note.Command, note.Detail)
			}
		}
	}
	if err != nil {
		return err
	}

	log.Infof("Rolled back to checkpoint %s", g.id)
	return nil
}
