package manifest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xyproto/env/v2"
)

// Environment variables that override vmgen.toml.
const (
	EnvJobs  = "VMGEN_JOBS"
	EnvCache = "VMGEN_CACHE"
	EnvTrace = "VMGEN_TRACE"
	EnvPort  = "VMGEN_PORT"
)

// ApplyEnv overrides configured values with any VMGEN_* variables set in
// the process environment.
func (m *Manifest) ApplyEnv() error {
	if env.Has(EnvJobs) {
		n, err := strconv.Atoi(env.Str(EnvJobs))
		if err != nil || n < 0 {
			return fmt.Errorf("%s: want a non-negative integer, got %q", EnvJobs, env.Str(EnvJobs))
		}
		m.Compiler.Jobs = n
	}
	if env.Has(EnvCache) {
		m.Cache.Path = env.Str(EnvCache)
	}
	if env.Has(EnvTrace) {
		m.Compiler.Trace = nil
		for _, class := range strings.Split(env.Str(EnvTrace), ",") {
			if class = strings.TrimSpace(class); class != "" {
				m.Compiler.Trace = append(m.Compiler.Trace, class)
			}
		}
	}
	if env.Has(EnvPort) {
		m.Server.Port = env.Int(EnvPort, m.Server.Port)
	}
	return nil
}
