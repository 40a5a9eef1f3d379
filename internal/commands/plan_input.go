package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/netwrench/netwrench/internal/plan"
	"github.com/netwrench/netwrench/internal/utils"
)

// readChangeRequest loads a change request from the given path, or from
// stdin when the path is "-".
func readChangeRequest(path string) (*plan.ChangeRequest, error) {
	if path == "" {
		return nil, fmt.Errorf("no plan file given, use -plan <file> (or \"-\" for stdin)")
	}

	if path == "-" {
		return plan.DecodeRequest(os.Stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plan file: %v", err)
	}
	defer utils.CloseOrWarn(f)

	return plan.DecodeRequest(f)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
