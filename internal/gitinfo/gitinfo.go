// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

// Package gitinfo extracts repository metadata for the directory an event
// was recorded in. Detection is best effort: outside a repository, or in a
// repository with no commits yet, it reports nothing.
package gitinfo

import (
	git "github.com/go-git/go-git/v5"
)

// RepoInfo describes the repository context of a directory.
type RepoInfo struct {
	Root   string
	Branch string // empty on detached HEAD
	Commit string
}

// Detect returns the repository info for dir, or nil when dir is not
// inside a git worktree or the repository has no HEAD commit.
func Detect(dir string) *RepoInfo {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil
	}

	wt, err := repo.Worktree()
	if err != nil {
		// Bare repositories have no worktree to attribute events to.
		return nil
	}

	head, err := repo.Head()
	if err != nil {
		return nil
	}

	info := &RepoInfo{
		Root:   wt.Filesystem.Root(),
		Commit: head.Hash().String(),
	}
	if head.Name().IsBranch() {
		info.Branch = head.Name().Short()
	}
	return info
}
