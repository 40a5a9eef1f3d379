package commands

import (
	"context"
	"flag"
	"fmt"

	"github.com/netwrench/netwrench/internal/apply"
	"github.com/netwrench/netwrench/internal/log"
	"github.com/netwrench/netwrench/internal/plan"
	"github.com/netwrench/netwrench/internal/render"
)

func CreateApplyCommand() *ApplyCommand {
	gc := &ApplyCommand{
		fs: flag.NewFlagSet("apply", flag.ExitOnError),
	}

	gc.fs.StringVar(&gc.PlanPath, "plan", "", "Path to change request file (\"-\" for stdin)")
	gc.fs.BoolVar(&gc.DryRun, "dry-run", false, "Preview the command set without executing anything")
	gc.fs.StringVar(&gc.Label, "label", "", "Label for the checkpoint taken before applying")
	gc.fs.BoolVar(&gc.JSON, "json", false, "Print the change report as JSON")

	return gc
}

type ApplyCommand struct {
	fs   *flag.FlagSet
	core *Core
	req  *plan.ChangeRequest

	PlanPath string
	DryRun   bool
	Label    string
	JSON     bool
}

func (g *ApplyCommand) Name() string {
	return g.fs.Name()
}

func (g *ApplyCommand) Init(args []string, ctx *AppContext) error {
	if err := g.fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadAndValidateConfigOrFail(ctx.ConfigPath)
	if err != nil {
		return err
	}

	if g.core, err = buildCore(cfg, !g.DryRun); err != nil {
		return err
	}

	if g.req, err = readChangeRequest(g.PlanPath); err != nil {
		return err
	}

	return nil
}

func (g *ApplyCommand) Run() error {
	defer g.core.Close()

	result := g.core.Validator.Validate(g.req)
	if !result.OK {
		for _, issue := range result.Errors() {
			log.Errorf("%s", issue.String())
		}
		return fmt.Errorf("change request for %q is invalid, refusing to apply", g.req.Interface)
	}

	cs, err := render.Render(result.Plan)
	if err != nil {
		return fmt.Errorf("failed to render command set: %v", err)
	}

	orchestrator := g.core.Orchestrator
	if orchestrator == nil {
		// Dry runs skip the store, build a detached orchestrator.
		orchestrator = apply.NewOrchestrator(nil, g.core.Exec, apply.NewLockManager(""), nil)
	}

	report := orchestrator.Apply(context.Background(), cs, apply.Options{
		Label:  g.Label,
		DryRun: g.DryRun,
	})

	if g.JSON {
		if err := printJSON(report); err != nil {
			return err
		}
	} else {
		printReport(report)
	}

	return reportOutcome(report)
}

// reportOutcome maps a change report to the command's exit status. An apply
// that aborted before touching anything (busy lock, snapshot failure) never
// leaves the idle state but is still a failure; only a dry run may end idle
// and exit clean.
func reportOutcome(report *apply.ChangeReport) error {
	if report.DryRun {
		return nil
	}
	switch report.State {
	case apply.StateSucceeded:
		return nil
	case apply.StateRolledBack:
		return fmt.Errorf("apply failed, previous state restored from checkpoint %s", report.CheckpointID)
	case apply.StateIdle:
		if len(report.Errors) > 0 {
			return fmt.Errorf("apply aborted: %s", report.Errors[0])
		}
		return fmt.Errorf("apply aborted before any change was made")
	default:
		return fmt.Errorf("apply failed in state %s", report.State)
	}
}

func printReport(report *apply.ChangeReport) {
	for _, note := range report.Notes {
		if note.OK {
			log.Infof("ok   %s", note.Command)
		} else {
			log.Errorf("FAIL %s: %s", note.Command, note.Error)
		}
	}
	for _, msg := range report.Errors {
		log.Errorf("%s", msg)
	}
	if report.DryRun {
		log.Infof("Dry run complete, %d step(s) previewed", len(report.Notes))
		return
	}
	if report.CheckpointID != "" {
		log.Infof("Checkpoint: %s", report.CheckpointID)
	}
	log.Infof("State: %s", report.State)
}
