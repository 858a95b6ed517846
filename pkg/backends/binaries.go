package backends

import (
	"strings"

	"github.com/macup/macup/pkg/engine"
)

// SplitBinary parses a "package:binary" spec. A spec without a binary uses
// the package name for both.
func SplitBinary(spec string) (pkg, binary string) {
	if p, b, ok := strings.Cut(spec, ":"); ok {
		return strings.TrimSpace(p), strings.TrimSpace(b)
	}
	spec = strings.TrimSpace(spec)
	return spec, spec
}

// binaries maps package names to the executable that proves they are
// installed.
type binaries map[string]string

// addPresent adds every package whose executable is on PATH.
func (b binaries) addPresent(set engine.ItemSet, runner Runner) {
	for pkg, bin := range b {
		if set.Has(pkg) {
			continue
		}
		if _, err := runner.LookPath(bin); err == nil {
			set.Add(pkg)
		}
	}
}
