// Package rank detects the distributed process rank from the launcher's
// environment.
package rank

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Auto asks Resolve to detect the rank from the environment.
const Auto = -1

// EnvKeys are consulted in order; the first non-empty value wins.
var EnvKeys = []string{"RANK", "LOCAL_RANK", "SLURM_PROCID", "JSM_NAMESPACE_RANK"}

// Lookup reads one environment variable.
type Lookup func(key string) (string, bool)

// Resolve returns configured when it is not Auto. Otherwise it reads
// EnvKeys through lookup (os.LookupEnv when nil). With no launcher variables
// set the process is not distributed and Auto is returned.
func Resolve(configured int, lookup Lookup) (int, error) {
	if configured != Auto {
		return configured, nil
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, key := range EnvKeys {
		raw, ok := lookup(key)
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid %s=%q: want a non-negative integer", key, raw)
		}
		return n, nil
	}
	return Auto, nil
}
