package commands

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/netwrench/netwrench/internal/discovery"
)

func CreateInterfacesCommand() *InterfacesCommand {
	gc := &InterfacesCommand{
		fs: flag.NewFlagSet("interfaces", flag.ExitOnError),
	}

	gc.fs.BoolVar(&gc.JSON, "json", false, "Print interfaces as JSON")
	gc.fs.BoolVar(&gc.All, "all", false, "Include loopback and down interfaces")

	return gc
}

type InterfacesCommand struct {
	fs     *flag.FlagSet
	prober *discovery.NetlinkProber

	JSON bool
	All  bool
}

func (g *InterfacesCommand) Name() string {
	return g.fs.Name()
}

func (g *InterfacesCommand) Init(args []string, ctx *AppContext) error {
	if err := g.fs.Parse(args); err != nil {
		return err
	}

	g.prober = discovery.NewNetlinkProber()
	return nil
}

func (g *InterfacesCommand) Run() error {
	interfaces, err := g.prober.List()
	if err != nil {
		return fmt.Errorf("failed to get interfaces: %v", err)
	}

	if !g.All {
		filtered := interfaces[:0]
		for _, info := range interfaces {
			if info.Loopback || !info.Up {
				continue
			}
			filtered = append(filtered, info)
		}
		interfaces = filtered
	}

	if g.JSON {
		return printJSON(interfaces)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tINDEX\tMTU\tSTATE\tADDRS")
	for _, info := range interfaces {
		state := "down"
		if info.Up {
			state = "up"
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n", info.Name, info.Index, info.MTU, state, strings.Join(info.Addrs, ", "))
	}
	return w.Flush()
}
