// Copyright 2026 The allog Authors
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

package interceptor

import "github.com/allog-project/allog/internal/logx"

// ConfigLookup is the narrow slice of config.Config the facade needs:
// resolving a logical target name to its configured symbol, and whether
// it has been explicitly disabled. Kept as an interface so this package
// doesn't depend on internal/config.
type ConfigLookup interface {
	GetTarget(logical string) string
	Disabled(logical string) bool
}

// AttachTarget resolves logicalName's configured symbol via resolver and
// attaches listener to it through i. It skips (returning a nil handle and
// false) without error in two cases: the target is explicitly disabled in
// cfg, or the resolved symbol cannot be found in the process (logged;
// non-fatal, the family's remaining targets still get attached). A real
// attach error is also treated as non-fatal and logged.
func AttachTarget(i Interceptor, resolver SymbolResolver, cfg ConfigLookup, logicalName string, listener InvocationListener) (ListenerHandle, bool) {
	if cfg.Disabled(logicalName) {
		logx.Infof("target %s disabled by config", logicalName)
		return nil, false
	}

	symbol := cfg.GetTarget(logicalName)

	addr, found := resolver.FindExport(symbol)
	if !found {
		logx.Errorf("Missing export: %s", symbol)
		return nil, false
	}

	handle, err := i.Attach(addr, listener)
	if err != nil {
		logx.Errorf("failed to attach %s (%s): %v", logicalName, symbol, err)
		return nil, false
	}

	logx.Infof("attached %s -> %s @ %#x", logicalName, symbol, addr)
	return handle, true
}

// DetachTarget releases handle (a no-op if handle is nil, i.e. the target
// was never attached) and logs the final commit count for logicalName,
// the only use of the per-target counters.
func DetachTarget(logicalName string, handle ListenerHandle, count uint64) {
	if handle != nil {
		handle.Detach()
	}
	logx.Infof("detached %s listener after %d calls", logicalName, count)
}
