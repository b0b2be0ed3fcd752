// Copyright 2026 The allog Authors
// Use of this source code is governed by the MIT license
// that can be found in the LICENSE file.

package interceptor

import (
	"errors"
	"testing"

	"github.com/allog-project/allog/internal/trace"
)

type stubConfig struct {
	targets  map[string]string
	disabled map[string]bool
}

func (c stubConfig) GetTarget(logical string) string {
	if v, ok := c.targets[logical]; ok {
		return v
	}
	return logical
}

func (c stubConfig) Disabled(logical string) bool { return c.disabled[logical] }

type stubResolver struct {
	exports map[string]trace.Address
}

func (r stubResolver) FindExport(name string) (trace.Address, bool) {
	a, ok := r.exports[name]
	return a, ok
}

type stubHandle struct{ detached *bool }

func (h stubHandle) Detach() { *h.detached = true }

type stubInterceptor struct {
	attachErr error
}

func (s stubInterceptor) Attach(addr trace.Address, listener InvocationListener) (ListenerHandle, error) {
	if s.attachErr != nil {
		return nil, s.attachErr
	}
	detached := false
	return stubHandle{detached: &detached}, nil
}

func (s stubInterceptor) Replace(addr trace.Address, newFn trace.Address) (HookHandle, error) {
	return nil, nil
}

type noopListener struct{}

func (noopListener) OnEnter(InvocationContext) {}
func (noopListener) OnLeave(InvocationContext) {}

func TestAttachTargetDisabled(t *testing.T) {
	cfg := stubConfig{disabled: map[string]bool{"free": true}}
	handle, ok := AttachTarget(stubInterceptor{}, stubResolver{}, cfg, "free", noopListener{})
	if ok || handle != nil {
		t.Fatal("expected AttachTarget to skip a disabled target")
	}
}

func TestAttachTargetMissingSymbol(t *testing.T) {
	cfg := stubConfig{}
	resolver := stubResolver{exports: map[string]trace.Address{}}
	handle, ok := AttachTarget(stubInterceptor{}, resolver, cfg, "memalign", noopListener{})
	if ok || handle != nil {
		t.Fatal("expected AttachTarget to skip an unresolved symbol")
	}
}

func TestAttachTargetSuccess(t *testing.T) {
	cfg := stubConfig{}
	resolver := stubResolver{exports: map[string]trace.Address{"malloc": 0x1000}}
	handle, ok := AttachTarget(stubInterceptor{}, resolver, cfg, "malloc", noopListener{})
	if !ok || handle == nil {
		t.Fatal("expected AttachTarget to succeed")
	}
}

func TestAttachTargetHookInstallError(t *testing.T) {
	cfg := stubConfig{}
	resolver := stubResolver{exports: map[string]trace.Address{"malloc": 0x1000}}
	handle, ok := AttachTarget(stubInterceptor{attachErr: errors.New("boom")}, resolver, cfg, "malloc", noopListener{})
	if ok || handle != nil {
		t.Fatal("expected AttachTarget to treat an attach error as non-fatal and skip")
	}
}

func TestDetachTargetNilHandle(t *testing.T) {
	// Must not panic when the target was never attached.
	DetachTarget("memalign", nil, 0)
}

func TestDetachTargetCallsDetach(t *testing.T) {
	detached := false
	DetachTarget("malloc", stubHandle{detached: &detached}, 42)
	if !detached {
		t.Fatal("expected DetachTarget to call Detach on the handle")
	}
}
