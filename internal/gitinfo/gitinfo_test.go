// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

package gitinfo

import (
	"os"
	"path/filepath"
	"testing"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

func initRepoWithCommit(t *testing.T) (dir string, commit string) {
	t.Helper()
	dir = t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("hello\n"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("README")
	require.NoError(t, err)

	hash, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com"},
	})
	require.NoError(t, err)
	return dir, hash.String()
}

func TestDetect_InsideRepo(t *testing.T) {
	dir, commit := initRepoWithCommit(t)

	info := Detect(dir)
	require.NotNil(t, info)
	require.Equal(t, commit, info.Commit)
	require.NotEmpty(t, info.Branch)
	require.NotEmpty(t, info.Root)
}

func TestDetect_SubdirectoryFindsRoot(t *testing.T) {
	dir, _ := initRepoWithCommit(t)
	sub := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	info := Detect(sub)
	require.NotNil(t, info)

	rootInfo := Detect(dir)
	require.NotNil(t, rootInfo)
	require.Equal(t, rootInfo.Root, info.Root)
}

func TestDetect_OutsideRepo(t *testing.T) {
	require.Nil(t, Detect(t.TempDir()))
}

func TestDetect_EmptyRepoHasNoHead(t *testing.T) {
	dir := t.TempDir()
	_, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.Nil(t, Detect(dir))
}
