// Package suite ships the built-in test plan used when no plan file is
// given on the command line.
package suite

import (
	_ "embed"
	"fmt"

	"github.com/kbenzarti/botbench/model"
)

//go:embed builtin.yaml
var builtinPlan string

// Builtin parses and returns the embedded default plan.
func Builtin() (*model.Plan, error) {
	plan, err := model.ParsePlanFromString(builtinPlan)
	if err != nil {
		return nil, fmt.Errorf("failed to parse built-in plan: %w", err)
	}
	return plan, nil
}
