// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

// Package procfind attributes the current invocation to a stable
// interactive host process by walking the live process ancestry.
//
// Short-lived commands are usually launched as transient children of a
// long-lived host (an AI-assistant runtime or a login shell). Events must
// be owned by that host, not by the invoking process, so that many
// invocations from the same session share one owner.
package procfind

import (
	"log/slog"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// maxHops bounds the ancestry climb on both passes.
const maxHops = 20

// hostNames is the allow-list of interactive host process names, matched
// case-insensitively as substrings. Claude Code runs inside node.
var hostNames = []string{"node", "claude", "codex", "gemini"}

// loginShell is the second-pass target: the process that spawns login
// shells on macOS.
const loginShell = "login"

// Tree is a read-only view of the process ancestry. The OS-backed
// implementation is [SystemTree]; tests substitute synthetic trees.
type Tree interface {
	// ParentPID returns the parent of pid, or an error if pid is gone.
	ParentPID(pid int32) (int32, error)
	// Name returns the reported executable name of pid.
	Name(pid int32) (string, error)
}

// SystemTree reads the live process table via gopsutil.
type SystemTree struct{}

func (SystemTree) ParentPID(pid int32) (int32, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return 0, err
	}
	return p.Ppid()
}

func (SystemTree) Name(pid int32) (string, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return "", err
	}
	return p.Name()
}

// Resolver maps the current process to its long-lived session owner.
type Resolver struct {
	tree   Tree
	logger *slog.Logger
}

// NewResolver creates a resolver over tree. A nil logger falls back to
// slog.Default().
func NewResolver(tree Tree, logger *slog.Logger) *Resolver {
	if tree == nil {
		tree = SystemTree{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{tree: tree, logger: logger}
}

// OwnerPID resolves the session owner for the current process. It never
// fails hard: when no owner can be found it degrades to the immediate
// parent, and finally to the current pid, with a warning.
func (r *Resolver) OwnerPID() int32 {
	return r.ownerPIDFrom(int32(os.Getpid()))
}

func (r *Resolver) ownerPIDFrom(origin int32) int32 {
	// Pass 1: nearest ancestor that is an interactive assistant host.
	if pid, ok := r.climb(origin, isHostName); ok {
		return pid
	}

	// Pass 2: fall back to the login-shell spawner.
	if pid, ok := r.climb(origin, func(name string) bool { return name == loginShell }); ok {
		return pid
	}

	// Last resort: immediate parent, then self.
	if ppid, err := r.tree.ParentPID(origin); err == nil {
		return ppid
	}
	r.logger.Warn("could not resolve session owner, using current pid", "pid", origin)
	return origin
}

// climb walks up from origin for at most maxHops, returning the first
// parent whose lowercase name satisfies match.
func (r *Resolver) climb(origin int32, match func(string) bool) (int32, bool) {
	pid := origin
	for hop := 0; hop < maxHops; hop++ {
		ppid, err := r.tree.ParentPID(pid)
		if err != nil {
			return 0, false
		}
		name, err := r.tree.Name(ppid)
		if err != nil {
			return 0, false
		}
		if match(strings.ToLower(name)) {
			return ppid, true
		}
		pid = ppid
	}
	return 0, false
}

func isHostName(name string) bool {
	for _, host := range hostNames {
		if strings.Contains(name, host) {
			return true
		}
	}
	return false
}
