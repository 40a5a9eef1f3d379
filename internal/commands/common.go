package commands

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/netwrench/netwrench/internal/apply"
	"github.com/netwrench/netwrench/internal/audit"
	"github.com/netwrench/netwrench/internal/catalog"
	"github.com/netwrench/netwrench/internal/checkpoint"
	"github.com/netwrench/netwrench/internal/config"
	"github.com/netwrench/netwrench/internal/discovery"
	"github.com/netwrench/netwrench/internal/log"
	"github.com/netwrench/netwrench/internal/netstate"
	"github.com/netwrench/netwrench/internal/plan"
	"github.com/netwrench/netwrench/internal/shell"
	"github.com/netwrench/netwrench/internal/utils"
)

// Runner is one CLI subcommand.
type Runner interface {
	Init(args []string, globalArgs *AppContext) error
	Run() error
	Name() string
}

// AppContext carries the global flags into every subcommand.
type AppContext struct {
	ConfigPath string
	Verbose    bool
}

// Core wires the pipeline components a command needs. Read-only commands
// build it without the checkpoint store; apply-capable commands build the
// full set.
type Core struct {
	Config       *config.Config
	Catalog      *catalog.Catalog
	Exec         *shell.Executor
	Allowlist    *shell.Allowlist
	State        *netstate.LiveState
	Prober       *discovery.NetlinkProber
	Validator    *plan.Validator
	Store        *checkpoint.Store
	Trail        *audit.Trail
	Orchestrator *apply.Orchestrator
}

// Close releases the core's persistent resources.
func (c *Core) Close() {
	if c.Store != nil {
		utils.CloseOrWarn(c.Store)
	}
}

// fullScopeFor builds a whole-interface snapshot scope covering every
// kernel parameter the catalog knows about.
func fullScopeFor(core *Core, iface string) checkpoint.Scope {
	var keys []string
	for _, def := range core.Catalog.Definitions() {
		if def.Category == catalog.CategoryKernelParameter {
			keys = append(keys, def.Key)
		}
	}
	return checkpoint.FullScope(iface, keys)
}

// loadAndValidateConfigOrFail loads configuration from file and validates it
// structurally.
func loadAndValidateConfigOrFail(configPath string) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %v", err)
	}

	if err := cfg.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %v", err)
	}

	return cfg, nil
}

// buildCore assembles the pipeline from the configuration. withStore also
// opens the checkpoint database and the audit trail, which read-only
// commands skip.
func buildCore(cfg *config.Config, withStore bool) (*Core, error) {
	core := &Core{Config: cfg}

	cat, err := catalog.Load(cfg.AbsCatalogDir())
	if err != nil {
		return nil, fmt.Errorf("failed to load policy catalog: %v", err)
	}
	core.Catalog = cat

	allowlist, err := shell.LoadAllowlist(cfg.AbsAllowlistPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load executor allowlist: %v", err)
	}
	core.Allowlist = allowlist

	cmdTimeout := time.Duration(cfg.Executor.CommandTimeoutSeconds) * time.Second
	rulesetTimeout := time.Duration(cfg.Executor.RulesetTimeoutSeconds) * time.Second
	core.Exec = shell.NewExecutor(allowlist, cmdTimeout)
	core.State = netstate.NewLiveState(core.Exec, cmdTimeout)
	core.Prober = discovery.NewNetlinkProber()
	core.Validator = plan.NewValidator(cat, core.Prober)

	if !withStore {
		return core, nil
	}

	if err := utils.EnsureDir(filepath.Dir(cfg.DatabasePath()), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %v", err)
	}

	store, err := checkpoint.NewStore(cfg.DatabasePath(), core.State, core.Exec)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %v", err)
	}
	store.SetTimeouts(cmdTimeout, rulesetTimeout)
	core.Store = store

	if cfg.Audit.Enabled {
		trail, err := audit.New(cfg.AuditDir())
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to open audit trail: %v", err)
		}
		core.Trail = trail
	} else {
		log.Debugf("audit trail disabled by configuration")
	}

	locks := apply.NewLockManager(cfg.General.LockDir)
	core.Orchestrator = apply.NewOrchestrator(store, core.Exec, locks, core.Trail)
	core.Orchestrator.SetTimeouts(cmdTimeout, rulesetTimeout)

	return core, nil
}
