package commands

import (
	"flag"
	"fmt"

	"github.com/netwrench/netwrench/internal/log"
	"github.com/netwrench/netwrench/internal/plan"
)

func CreateValidateCommand() *ValidateCommand {
	gc := &ValidateCommand{
		fs: flag.NewFlagSet("validate", flag.ExitOnError),
	}

	gc.fs.StringVar(&gc.PlanPath, "plan", "", "Path to change request file (\"-\" for stdin)")
	gc.fs.BoolVar(&gc.JSON, "json", false, "Print the validation result as JSON")

	return gc
}

type ValidateCommand struct {
	fs   *flag.FlagSet
	core *Core
	req  *plan.ChangeRequest

	PlanPath string
	JSON     bool
}

func (g *ValidateCommand) Name() string {
	return g.fs.Name()
}

func (g *ValidateCommand) Init(args []string, ctx *AppContext) error {
	if err := g.fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadAndValidateConfigOrFail(ctx.ConfigPath)
	if err != nil {
		return err
	}

	if g.core, err = buildCore(cfg, false); err != nil {
		return err
	}

	if g.req, err = readChangeRequest(g.PlanPath); err != nil {
		return err
	}

	return nil
}

func (g *ValidateCommand) Run() error {
	result := g.core.Validator.Validate(g.req)

	if g.JSON {
		if err := printJSON(result); err != nil {
			return err
		}
	} else {
		for _, issue := range result.Issues {
			if issue.Severity == plan.SeverityError {
				log.Errorf("%s", issue.String())
			} else {
				log.Warnf("%s", issue.String())
			}
		}
		if result.OK {
			log.Infof("Change request for %q is valid (%d issue(s))", g.req.Interface, len(result.Issues))
		}
	}

	if !result.OK {
		return fmt.Errorf("change request for %q is invalid", g.req.Interface)
	}

	return nil
}
