// Package checkpoint captures prior system state before an apply and restores
// it on demand. Snapshots are persisted in SQLite keyed by an opaque id and
// retained until explicitly deleted.
package checkpoint

import (
	"context"
	"time"

	"github.com/netwrench/netwrench/internal/catalog"
	"github.com/netwrench/netwrench/internal/netstate"
	"github.com/netwrench/netwrench/internal/render"
)

// Collector reads live subsystem state. *netstate.LiveState in production;
// tests use fakes.
type Collector interface {
	SysctlValues(ctx context.Context, keys []string) (map[string]string, error)
	QdiscState(ctx context.Context, iface string) (*netstate.QdiscState, error)
	RulesetState(ctx context.Context) (*netstate.FirewallState, error)
	OffloadFlags(ctx context.Context, iface string) (map[string]bool, error)
	LinkMTU(iface string) (int, error)
}

// Scope names exactly what a snapshot must cover: the target interface, the
// subsystems an apply is about to touch, and the kernel parameter keys it
// will modify.
type Scope struct {
	Interface  string
	Subsystems []catalog.Category
	SysctlKeys []string
}

// ScopeOf derives the snapshot scope from a rendered command set.
func ScopeOf(cs *render.CommandSet) Scope {
	return Scope{
		Interface:  cs.Interface,
		Subsystems: append([]catalog.Category(nil), cs.Touched...),
		SysctlKeys: append([]string(nil), cs.SysctlKeys...),
	}
}

// FullScope covers every subsystem for iface, with the given kernel
// parameter keys. Used by explicit snapshot requests that are not tied to a
// particular command set.
func FullScope(iface string, sysctlKeys []string) Scope {
	return Scope{
		Interface:  iface,
		Subsystems: catalog.Categories(),
		SysctlKeys: append([]string(nil), sysctlKeys...),
	}
}

// Snapshots is the per-subsystem prior state of one checkpoint. Nil fields
// mean the subsystem was outside the snapshot's scope.
type Snapshots struct {
	Sysctl   map[string]string       `json:"sysctl,omitempty"`
	Queueing *netstate.QdiscState    `json:"queueing,omitempty"`
	Firewall *netstate.FirewallState `json:"firewall,omitempty"`
	Offloads map[string]bool         `json:"offloads,omitempty"`
	MTU      *int                    `json:"mtu,omitempty"`
}

// Checkpoint is one persisted snapshot record. Written once; read, never
// mutated, during rollback.
type Checkpoint struct {
	ID        string    `db:"id" json:"id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	Label     string    `db:"label" json:"label"`
	Interface string    `db:"iface" json:"iface"`
	Snapshots Snapshots `db:"-" json:"snapshots"`
}

// RestoreNote records one restoration step, success or failure.
type RestoreNote struct {
	Subsystem catalog.Category `json:"subsystem"`
	Command   string           `json:"command"`
	OK        bool             `json:"ok"`
	Detail    string           `json:"detail,omitempty"`
}

// RestoreOutcome reports a restore attempt. OK is false when any step
// failed, which means the system may be in neither the old nor the new
// state.
type RestoreOutcome struct {
	CheckpointID string        `json:"checkpoint_id"`
	OK           bool          `json:"ok"`
	Notes        []RestoreNote `json:"notes"`
}
