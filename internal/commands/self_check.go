package commands

import (
	"context"
	"encoding/binary"
	"flag"
	"os"
	"os/exec"

	"github.com/netwrench/netwrench/internal/config"
	"github.com/netwrench/netwrench/internal/log"
	"github.com/netwrench/netwrench/internal/netstate"
)

func CreateSelfCheckCommand() *SelfCheckCommand {
	gc := &SelfCheckCommand{
		fs: flag.NewFlagSet("self-check", flag.ExitOnError),
	}
	return gc
}

type SelfCheckCommand struct {
	fs   *flag.FlagSet
	ctx  *AppContext
	cfg  *config.Config
	core *Core
}

func (g *SelfCheckCommand) Name() string {
	return g.fs.Name()
}

func (g *SelfCheckCommand) Init(args []string, ctx *AppContext) error {
	g.ctx = ctx

	if err := g.fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadAndValidateConfigOrFail(ctx.ConfigPath)
	if err != nil {
		return err
	}
	g.cfg = cfg

	if g.core, err = buildCore(cfg, true); err != nil {
		return err
	}

	return nil
}

func (g *SelfCheckCommand) Run() error {
	defer g.core.Close()

	log.Infof("Running self-check...")
	log.Infof("---------------- Configuration START -----------------")

	if cfg, err := g.cfg.SerializeConfig(); err != nil {
		log.Errorf("Failed to serialize config: %v", err)
		return err
	} else {
		if err := binary.Write(os.Stdout, binary.LittleEndian, cfg.Bytes()); err != nil {
			log.Errorf("Failed to output config: %v", err)
			return err
		}
	}

	log.Infof("----------------- Configuration END ------------------")

	hasFailures := false

	if !g.checkBinaries() {
		hasFailures = true
	}
	if !g.checkCatalog() {
		hasFailures = true
	}
	if !g.checkStore() {
		hasFailures = true
	}
	if !g.checkInterfaces() {
		hasFailures = true
	}
	g.checkLegacyFirewall()

	if hasFailures {
		log.Errorf("Self-check finished with failures")
		os.Exit(1)
	}

	log.Infof("Self-check passed")
	return nil
}

// checkBinaries verifies every allowlisted binary is reachable in PATH.
func (g *SelfCheckCommand) checkBinaries() bool {
	ok := true
	for _, name := range g.core.Allowlist.Binaries() {
		if path, err := exec.LookPath(name); err != nil {
			log.Errorf("[FAIL] binary %q not found in PATH", name)
			ok = false
		} else {
			log.Infof("[ OK ] binary %q found at %s", name, path)
		}
	}
	return ok
}

func (g *SelfCheckCommand) checkCatalog() bool {
	keys := g.core.Catalog.Keys()
	if len(keys) == 0 {
		log.Errorf("[FAIL] policy catalog is empty")
		return false
	}
	log.Infof("[ OK ] policy catalog loaded, %d parameter(s), %d profile(s)",
		len(keys), len(g.core.Catalog.Profiles()))
	return true
}

func (g *SelfCheckCommand) checkStore() bool {
	count, err := g.core.Store.Count(context.Background())
	if err != nil {
		log.Errorf("[FAIL] checkpoint database unreachable: %v", err)
		return false
	}
	log.Infof("[ OK ] checkpoint database at %s, %d checkpoint(s)", g.cfg.DatabasePath(), count)
	return true
}

func (g *SelfCheckCommand) checkInterfaces() bool {
	interfaces, err := g.core.Prober.List()
	if err != nil {
		log.Errorf("[FAIL] failed to list network interfaces: %v", err)
		return false
	}

	usable := 0
	for _, info := range interfaces {
		if !info.Loopback && info.Up {
			usable++
		}
	}
	if usable == 0 {
		log.Warnf("[WARN] no usable (up, non-loopback) interfaces found")
	} else {
		log.Infof("[ OK ] %d usable interface(s) found", usable)
	}
	return true
}

// checkLegacyFirewall warns about iptables mangle DSCP rules that would
// fight with the nftables ruleset. Advisory only.
func (g *SelfCheckCommand) checkLegacyFirewall() {
	rules, err := netstate.LegacyMangleRules()
	if err != nil {
		log.Debugf("legacy iptables check skipped: %v", err)
		return
	}
	if len(rules) == 0 {
		log.Infof("[ OK ] no legacy iptables DSCP rules found")
		return
	}
	log.Warnf("[WARN] %d legacy iptables DSCP rule(s) present, these may conflict with the managed ruleset:", len(rules))
	for _, rule := range rules {
		log.Warnf("         %s", rule)
	}
}
