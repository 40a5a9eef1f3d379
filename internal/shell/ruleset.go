package shell

import (
	"context"
	"os"
	"time"

	"github.com/netwrench/netwrench/internal/errors"
)

// ApplyRuleset loads a complete nftables document atomically: the document is
// written to a temp file, checked with `nft -c -f` (dry parse + validate),
// and only then loaded with `nft -f`. nft commits the whole file or nothing,
// so no transient half-applied ruleset is ever active.
func ApplyRuleset(ctx context.Context, r Runner, doc string, timeout time.Duration) (*Result, error) {
	path, err := writeRulesetFile(doc)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)

	check, err := r.Run(ctx, []string{"nft", "-c", "-f", path}, timeout)
	if err != nil {
		return check, err
	}
	if !check.Ok() {
		return check, nil
	}

	return r.Run(ctx, []string{"nft", "-f", path}, timeout)
}

func writeRulesetFile(doc string) (string, error) {
	f, err := os.CreateTemp("", "netwrench-ruleset-*.nft")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, "failed to create ruleset temp file", err)
	}
	path := f.Name()
	if _, err := f.WriteString(doc); err != nil {
		f.Close()
		os.Remove(path)
		return "", errors.Wrap(errors.ErrCodeInternal, "failed to write ruleset temp file", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", errors.Wrap(errors.ErrCodeInternal, "failed to close ruleset temp file", err)
	}
	return path, nil
}
