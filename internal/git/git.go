// Package git shells out to git for the worktree lifecycle backing
// supervised sessions: each session gets an isolated worktree so the
// agent's edits never touch the main checkout.
package git

import (
	"bufio"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// Worktree is one entry of `git worktree list`.
type Worktree struct {
	Path   string
	Branch string
	Commit string
	Bare   bool
}

// IsRepo reports whether dir is inside a git repository.
func IsRepo(dir string) bool {
	return exec.Command("git", "-C", dir, "rev-parse", "--git-dir").Run() == nil
}

// RepoRoot returns the toplevel of the repository containing dir.
func RepoRoot(dir string) (string, error) {
	out, err := exec.Command("git", "-C", dir, "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return "", fmt.Errorf("not a git repository: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// CurrentBranch returns the checked-out branch name for dir.
func CurrentBranch(dir string) (string, error) {
	out, err := exec.Command("git", "-C", dir, "rev-parse", "--abbrev-ref", "HEAD").Output()
	if err != nil {
		return "", fmt.Errorf("resolve current branch: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// BranchExists reports whether a local branch exists.
func BranchExists(repoDir, branch string) bool {
	return exec.Command("git", "-C", repoDir,
		"show-ref", "--verify", "--quiet", "refs/heads/"+branch).Run() == nil
}

// ValidateBranchName enforces the subset of git's ref rules that matter
// for names muxpilot generates or accepts.
func ValidateBranchName(name string) error {
	switch {
	case name == "":
		return errors.New("branch name cannot be empty")
	case name == "@":
		return errors.New("branch name cannot be just '@'")
	case strings.TrimSpace(name) != name:
		return errors.New("branch name cannot have surrounding whitespace")
	case strings.Contains(name, ".."):
		return errors.New("branch name cannot contain '..'")
	case strings.HasPrefix(name, "."):
		return errors.New("branch name cannot start with '.'")
	case strings.HasSuffix(name, ".lock"):
		return errors.New("branch name cannot end with '.lock'")
	case strings.Contains(name, "@{"):
		return errors.New("branch name cannot contain '@{'")
	}
	for _, ch := range []string{" ", "\t", "~", "^", ":", "?", "*", "[", "\\"} {
		if strings.Contains(name, ch) {
			return fmt.Errorf("branch name cannot contain %q", ch)
		}
	}
	return nil
}

var dashRuns = regexp.MustCompile(`-+`)

// SanitizeBranchName turns an arbitrary session name into a valid branch
// name.
func SanitizeBranchName(name string) string {
	r := strings.NewReplacer(
		" ", "-", "..", "-", "~", "-", "^", "-", ":", "-",
		"?", "-", "*", "-", "[", "-", "\\", "-", "@{", "-",
	)
	s := r.Replace(name)
	s = strings.TrimLeft(s, ".")
	for strings.HasSuffix(s, ".lock") {
		s = strings.TrimSuffix(s, ".lock")
	}
	s = dashRuns.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// WorktreePath chooses where a session's worktree lives.
// Location "subdirectory" puts it under <repo>/.worktrees/<branch>;
// "sibling" (or empty) produces <repo>-<branch> next to the repo; any
// path-like location is used as a base: <location>/<repo name>/<branch>.
func WorktreePath(repoDir, branch, location string) string {
	sanitized := strings.ReplaceAll(strings.ReplaceAll(branch, "/", "-"), " ", "-")
	if strings.Contains(location, "/") {
		return filepath.Join(location, filepath.Base(repoDir), sanitized)
	}
	if location == "subdirectory" {
		return filepath.Join(repoDir, ".worktrees", sanitized)
	}
	return repoDir + "-" + sanitized
}

// AddWorktree creates a worktree at path for branch, creating the branch
// when it does not exist yet.
func AddWorktree(repoDir, path, branch string) error {
	if err := ValidateBranchName(branch); err != nil {
		return fmt.Errorf("invalid branch name: %w", err)
	}
	if !IsRepo(repoDir) {
		return errors.New("not a git repository")
	}
	var cmd *exec.Cmd
	if BranchExists(repoDir, branch) {
		cmd = exec.Command("git", "-C", repoDir, "worktree", "add", path, branch)
	} else {
		cmd = exec.Command("git", "-C", repoDir, "worktree", "add", "-b", branch, path)
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("worktree add: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

// RemoveWorktree detaches a worktree. Force discards uncommitted changes.
func RemoveWorktree(repoDir, path string, force bool) error {
	args := []string{"-C", repoDir, "worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	if out, err := exec.Command("git", args...).CombinedOutput(); err != nil {
		return fmt.Errorf("worktree remove: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

// ListWorktrees enumerates all worktrees of a repository.
func ListWorktrees(repoDir string) ([]Worktree, error) {
	out, err := exec.Command("git", "-C", repoDir, "worktree", "list", "--porcelain").Output()
	if err != nil {
		return nil, fmt.Errorf("worktree list: %w", err)
	}
	return parseWorktreeList(string(out)), nil
}

func parseWorktreeList(out string) []Worktree {
	var worktrees []Worktree
	var cur Worktree

	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if cur.Path != "" {
				worktrees = append(worktrees, cur)
			}
			cur = Worktree{}
		case strings.HasPrefix(line, "worktree "):
			cur.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "HEAD "):
			cur.Commit = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			cur.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		case line == "bare":
			cur.Bare = true
		}
	}
	if cur.Path != "" {
		worktrees = append(worktrees, cur)
	}
	return worktrees
}

// PruneWorktrees drops stale worktree references.
func PruneWorktrees(repoDir string) error {
	if out, err := exec.Command("git", "-C", repoDir, "worktree", "prune").CombinedOutput(); err != nil {
		return fmt.Errorf("worktree prune: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

// HasUncommittedChanges reports whether dir has a dirty working tree.
func HasUncommittedChanges(dir string) (bool, error) {
	out, err := exec.Command("git", "-C", dir, "status", "--porcelain").Output()
	if err != nil {
		return false, fmt.Errorf("git status: %w", err)
	}
	return strings.TrimSpace(string(out)) != "", nil
}
