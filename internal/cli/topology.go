package cli

import (
	"errors"

	"github.com/roach88/ddnet/internal/config"
)

// ErrCodeGeneric is reported for failures without a more specific code.
const ErrCodeGeneric = "E001"

// loadTopology loads path, reporting a failure through f as a command
// error.
func loadTopology(f *OutputFormatter, path string) (*config.Topology, error) {
	topo, err := config.Load(path)
	if err == nil {
		return topo, nil
	}

	code := ErrCodeGeneric
	var le *config.LoadError
	if errors.As(err, &le) {
		code = le.Code
	}
	_ = f.Error(code, err.Error(), nil)
	return nil, WrapExitError(ExitCommandError, "failed to load config", err)
}
