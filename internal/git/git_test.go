package git

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initTestRepo creates a repo with one commit so branches can be created.
func initTestRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@test",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@test",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
	run("init", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("x\n"), 0o644))
	run("add", "README")
	run("commit", "-m", "init")
	return dir
}

func TestValidateBranchName(t *testing.T) {
	assert.NoError(t, ValidateBranchName("fix-auth"))
	assert.NoError(t, ValidateBranchName("feature/login"))

	for _, bad := range []string{
		"", "@", " padded", "a..b", ".hidden", "done.lock",
		"has space", "has~tilde", "a@{b}",
	} {
		assert.Error(t, ValidateBranchName(bad), "name %q", bad)
	}
}

func TestSanitizeBranchName(t *testing.T) {
	assert.Equal(t, "fix-the-auth-bug", SanitizeBranchName("fix the auth bug"))
	assert.Equal(t, "a-b", SanitizeBranchName("a..b"))
	assert.Equal(t, "hidden", SanitizeBranchName(".hidden"))
	assert.Equal(t, "done", SanitizeBranchName("done.lock"))
	assert.Equal(t, "a-b", SanitizeBranchName("a---b"))
}

func TestWorktreePath(t *testing.T) {
	assert.Equal(t, "/src/proj-fix", WorktreePath("/src/proj", "fix", "sibling"))
	assert.Equal(t, "/src/proj-fix", WorktreePath("/src/proj", "fix", ""))
	assert.Equal(t, "/src/proj/.worktrees/fix", WorktreePath("/src/proj", "fix", "subdirectory"))
	assert.Equal(t, "/wt/proj/feat-x", WorktreePath("/src/proj", "feat/x", "/wt"))
}

func TestAddListRemoveWorktree(t *testing.T) {
	repo := initTestRepo(t)
	wt := filepath.Join(t.TempDir(), "wt-fix")

	require.NoError(t, AddWorktree(repo, wt, "fix-auth"))
	assert.True(t, BranchExists(repo, "fix-auth"))

	worktrees, err := ListWorktrees(repo)
	require.NoError(t, err)
	require.Len(t, worktrees, 2)
	assert.Equal(t, "fix-auth", worktrees[1].Branch)

	require.NoError(t, RemoveWorktree(repo, wt, false))
	worktrees, err = ListWorktrees(repo)
	require.NoError(t, err)
	assert.Len(t, worktrees, 1)
}

func TestAddWorktreeExistingBranch(t *testing.T) {
	repo := initTestRepo(t)
	first := filepath.Join(t.TempDir(), "wt1")
	require.NoError(t, AddWorktree(repo, first, "reuse"))
	require.NoError(t, RemoveWorktree(repo, first, false))

	// Branch survives worktree removal; second add reuses it.
	second := filepath.Join(t.TempDir(), "wt2")
	require.NoError(t, AddWorktree(repo, second, "reuse"))
}

func TestParseWorktreeList(t *testing.T) {
	out := "worktree /src/proj\nHEAD abc123\nbranch refs/heads/main\n\n" +
		"worktree /src/proj-fix\nHEAD def456\nbranch refs/heads/fix\n\n" +
		"worktree /src/bare\nbare\n"
	worktrees := parseWorktreeList(out)
	require.Len(t, worktrees, 3)
	assert.Equal(t, "main", worktrees[0].Branch)
	assert.Equal(t, "def456", worktrees[1].Commit)
	assert.True(t, worktrees[2].Bare)
}

func TestHasUncommittedChanges(t *testing.T) {
	repo := initTestRepo(t)

	dirty, err := HasUncommittedChanges(repo)
	require.NoError(t, err)
	assert.False(t, dirty)

	require.NoError(t, os.WriteFile(filepath.Join(repo, "new.txt"), []byte("y"), 0o644))
	dirty, err = HasUncommittedChanges(repo)
	require.NoError(t, err)
	assert.True(t, dirty)
}

func TestIsRepoAndRoot(t *testing.T) {
	repo := initTestRepo(t)
	assert.True(t, IsRepo(repo))
	assert.False(t, IsRepo(os.TempDir()))

	root, err := RepoRoot(repo)
	require.NoError(t, err)
	assert.Equal(t, evalSymlinks(t, repo), evalSymlinks(t, root))
}

func evalSymlinks(t *testing.T, p string) string {
	t.Helper()
	r, err := filepath.EvalSymlinks(p)
	require.NoError(t, err)
	return r
}
