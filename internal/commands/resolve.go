package commands

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/netwrench/netwrench/internal/discovery"
	"github.com/netwrench/netwrench/internal/log"
)

func CreateResolveCommand() *ResolveCommand {
	gc := &ResolveCommand{
		fs: flag.NewFlagSet("resolve", flag.ExitOnError),
	}

	gc.fs.StringVar(&gc.Host, "host", "", "Hostname to resolve")
	gc.fs.StringVar(&gc.Server, "server", "", "DNS server to query as host:port (default: 127.0.0.1:53)")
	gc.fs.IntVar(&gc.TimeoutSeconds, "timeout", 5, "Query timeout in seconds")

	return gc
}

// ResolveCommand answers the question "which addresses would a DSCP rule
// for this host need" without touching the firewall.
type ResolveCommand struct {
	fs *flag.FlagSet

	Host           string
	Server         string
	TimeoutSeconds int
}

func (g *ResolveCommand) Name() string {
	return g.fs.Name()
}

func (g *ResolveCommand) Init(args []string, ctx *AppContext) error {
	if err := g.fs.Parse(args); err != nil {
		return err
	}

	if g.Host == "" {
		return fmt.Errorf("resolve requires -host")
	}

	return nil
}

func (g *ResolveCommand) Run() error {
	resolver := discovery.NewResolver(g.Server, time.Duration(g.TimeoutSeconds)*time.Second)

	addrs, err := resolver.Resolve(context.Background(), g.Host)
	if err != nil {
		return fmt.Errorf("failed to resolve %q: %v", g.Host, err)
	}

	if len(addrs) == 0 {
		log.Warnf("No addresses found for %q", g.Host)
		return nil
	}

	for _, addr := range addrs {
		fmt.Println(addr)
	}
	return nil
}
