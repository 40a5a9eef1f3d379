package commands

import (
	"flag"
	"fmt"
	"os"

	"github.com/netwrench/netwrench/internal/log"
	"github.com/netwrench/netwrench/internal/plan"
	"github.com/netwrench/netwrench/internal/render"
)

func CreateRenderCommand() *RenderCommand {
	gc := &RenderCommand{
		fs: flag.NewFlagSet("render", flag.ExitOnError),
	}

	gc.fs.StringVar(&gc.PlanPath, "plan", "", "Path to change request file (\"-\" for stdin)")
	gc.fs.BoolVar(&gc.JSON, "json", false, "Print the command set as JSON instead of a script")

	return gc
}

type RenderCommand struct {
	fs   *flag.FlagSet
	core *Core
	req  *plan.ChangeRequest

	PlanPath string
	JSON     bool
}

func (g *RenderCommand) Name() string {
	return g.fs.Name()
}

func (g *RenderCommand) Init(args []string, ctx *AppContext) error {
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

func (g *RenderCommand) Run() error {
	result := g.core.Validator.Validate(g.req)
	if !result.OK {
		for _, issue := range result.Errors() {
			log.Errorf("%s", issue.String())
		}
		return fmt.Errorf("change request for %q is invalid, nothing to render", g.req.Interface)
	}

	cs, err := render.Render(result.Plan)
	if err != nil {
		return fmt.Errorf("failed to render command set: %v", err)
	}

	if g.JSON {
		return printJSON(cs)
	}

	fmt.Fprint(os.Stdout, cs.Script())
	return nil
}
