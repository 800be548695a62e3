package gitengine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Identity is the author/committer identity attached to commits made by
// the daemon.
type Identity struct {
	Name  string
	Email string
}

// Engine is the Git operation surface consumed by the workflow executor
// (C7). A single Engine instance is stateless across calls - every
// method opens the repository at workingDir fresh, matching go-git's own
// cheap-handle design and keeping the engine safe to share across
// repositories and goroutines.
//
// Every operation accepts a context, but only PerformPush hands it to
// go-git (PushContext); the other operations do not observe
// cancellation or deadlines once started. The default timeouts applied
// by the workflow layer are documented per operation.
type Engine struct {
	Identity Identity
}

// New constructs an Engine that commits as identity.
func New(identity Identity) *Engine {
	return &Engine{Identity: identity}
}

func opErr(op string, reason Reason, cause error) *OpError {
	return &OpError{Op: op, Reason: reason, Message: cause.Error(), Cause: cause}
}

func classify(op string, err error) *OpError {
	if err == nil {
		return nil
	}
	switch {
	case err == git.ErrRepositoryNotExists:
		return opErr(op, ReasonNotARepo, err)
	case strings.Contains(err.Error(), "already locked"):
		return opErr(op, ReasonIndexLocked, err)
	case err == transport.ErrAuthenticationRequired || err == transport.ErrAuthorizationFailed:
		return opErr(op, ReasonAuth, err)
	case strings.Contains(err.Error(), "non-fast-forward"):
		return opErr(op, ReasonNonFastForward, err)
	case strings.Contains(err.Error(), "dial tcp") || strings.Contains(err.Error(), "no such host") || strings.Contains(err.Error(), "connection refused"):
		return opErr(op, ReasonNetwork, err)
	case err == context.DeadlineExceeded:
		return opErr(op, ReasonTimeout, err)
	default:
		return opErr(op, ReasonGeneric, err)
	}
}

func open(workingDir string) (*git.Repository, error) {
	return git.PlainOpen(workingDir)
}

// classifyChangeKind maps a go-git worktree FileStatus onto the
// Added/Modified/Deleted/Renamed/TypeChanged taxonomy the commit-message
// template's change summary groups by (§6). go-git's worktree status
// does not itself report type changes, so ChangeTypeChange is reachable
// only via future engine extensions (e.g. a tree-diff-based status) -
// kept in the taxonomy so the template's section ordering is stable
// regardless of which detector populates it.
func classifyChangeKind(fs git.FileStatus) ChangeKind {
	switch {
	case fs.Staging == git.Renamed || fs.Worktree == git.Renamed:
		return ChangeRenamed
	case fs.Staging == git.Untracked || fs.Worktree == git.Untracked || fs.Staging == git.Added:
		return ChangeAdded
	case fs.Staging == git.Deleted || fs.Worktree == git.Deleted:
		return ChangeDeleted
	default:
		return ChangeModified
	}
}

// GetSummary implements get_summary: a cheap read of HEAD without
// computing a full status. Default timeout: 30s.
func (e *Engine) GetSummary(ctx context.Context, workingDir string) (*Summary, error) {
	repo, err := open(workingDir)
	if err != nil {
		return nil, classify("get_summary", err)
	}

	head, err := repo.Head()
	if err == plumbing.ErrReferenceNotFound {
		return &Summary{Success: true, HeadRef: HeadUnborn}, nil
	}
	if err != nil {
		return &Summary{Success: false, HeadRef: HeadError, Message: err.Error()}, nil
	}

	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, classify("get_summary", err)
	}

	branch := ""
	if head.Name().IsBranch() {
		branch = head.Name().Short()
	}

	return &Summary{
		Success:     true,
		HeadRef:     branch,
		HeadHash:    head.Hash().String(),
		MessageHead: firstLine(commit.Message),
		Message:     commit.Message,
		CommitTime:  commit.Author.When,
	}, nil
}

// GetStatus implements get_status: working tree status, in-progress
// operation detection, and ahead/behind counts against the configured
// upstream. Default timeout: 30s.
func (e *Engine) GetStatus(ctx context.Context, workingDir string, remoteName string) (*StatusResult, error) {
	repo, err := open(workingDir)
	if err != nil {
		return nil, classify("get_status", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, classify("get_status", err)
	}

	st, err := wt.Status()
	if err != nil {
		return nil, classify("get_status", err)
	}

	result := &StatusResult{Success: true}
	result.IsClean = st.IsClean()

	for path, fs := range st {
		result.TotalFiles++
		result.ChangedPaths = append(result.ChangedPaths, path)

		kind := classifyChangeKind(fs)
		result.Changes = append(result.Changes, FileChange{Path: path, Kind: kind})
		switch kind {
		case ChangeAdded:
			result.AddedFiles++
		case ChangeDeleted:
			result.DeletedFiles++
		default:
			result.ModifiedFiles++
		}

		if fs.Staging == git.UpdatedButUnmerged || fs.Worktree == git.UpdatedButUnmerged {
			result.IsConflicted = true
		}
	}
	sort.Strings(result.ChangedPaths)
	sort.Slice(result.Changes, func(i, j int) bool { return result.Changes[i].Path < result.Changes[j].Path })
	result.ChangedFiles = result.TotalFiles

	result.IsMergeInProgress = fileExists(filepath.Join(workingDir, ".git", "MERGE_HEAD"))
	result.IsRebaseInProgress = fileExists(filepath.Join(workingDir, ".git", "rebase-merge")) ||
		fileExists(filepath.Join(workingDir, ".git", "rebase-apply"))
	result.IsCherryPickInProgress = fileExists(filepath.Join(workingDir, ".git", "CHERRY_PICK_HEAD"))
	result.IsRevertInProgress = fileExists(filepath.Join(workingDir, ".git", "REVERT_HEAD"))

	head, err := repo.Head()
	if err == nil && head.Name().IsBranch() {
		result.CurrentBranch = head.Name().Short()

		if remoteName == "" {
			remoteName = "origin"
		}
		upstreamRef := plumbing.NewRemoteReferenceName(remoteName, result.CurrentBranch)
		if remoteRef, rerr := repo.Reference(upstreamRef, true); rerr == nil {
			result.HasUpstream = true
			result.UpstreamBranch = fmt.Sprintf("%s/%s", remoteName, result.CurrentBranch)
			ahead, behind, aerr := aheadBehind(repo, head.Hash(), remoteRef.Hash())
			if aerr == nil {
				result.CommitsAhead = ahead
				result.CommitsBehind = behind
			}
		}
	}

	return result, nil
}

// StageChanges implements stage_changes: adds every path in
// changedPaths to the index, including deletions. An empty slice stages
// the entire working tree diff. Default timeout: 60s.
func (e *Engine) StageChanges(ctx context.Context, workingDir string, changedPaths []string) (*StageResult, error) {
	repo, err := open(workingDir)
	if err != nil {
		return nil, classify("stage_changes", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, classify("stage_changes", err)
	}

	if len(changedPaths) == 0 {
		st, err := wt.Status()
		if err != nil {
			return nil, classify("stage_changes", err)
		}
		for path := range st {
			changedPaths = append(changedPaths, path)
		}
	}

	staged := make([]string, 0, len(changedPaths))
	for _, path := range changedPaths {
		if _, err := os.Stat(filepath.Join(workingDir, path)); os.IsNotExist(err) {
			if _, rerr := wt.Remove(path); rerr != nil {
				return nil, classify("stage_changes", rerr)
			}
		} else if _, aerr := wt.Add(path); aerr != nil {
			return nil, classify("stage_changes", aerr)
		}
		staged = append(staged, path)
	}

	return &StageResult{Success: true, StagedPaths: staged}, nil
}

// PerformCommit implements perform_commit. message must already be
// rendered (see internal/gitengine/template.go). A clean index (no diff
// against HEAD) is reported as a successful no-op, matching §4.7's
// "nothing to commit" short-circuit.
func (e *Engine) PerformCommit(ctx context.Context, workingDir, message string, now time.Time) (*CommitResult, error) {
	repo, err := open(workingDir)
	if err != nil {
		return nil, classify("perform_commit", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, classify("perform_commit", err)
	}

	st, err := wt.Status()
	if err != nil {
		return nil, classify("perform_commit", err)
	}
	staged := false
	for _, fs := range st {
		if fs.Staging != git.Unmodified && fs.Staging != git.Untracked {
			staged = true
			break
		}
	}
	if !staged {
		return &CommitResult{Success: true, Message: "nothing to commit"}, nil
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: e.Identity.Name, Email: e.Identity.Email, When: now},
	})
	if err != nil {
		return nil, classify("perform_commit", err)
	}

	return &CommitResult{
		Success:    true,
		CommitHash: hash.String(),
		Timestamp:  now,
	}, nil
}

// PushOptions configures perform_push.
type PushOptions struct {
	AutoPush bool
	Remote   string
	Branch   string
	Auth     transport.AuthMethod
}

// PerformPush implements perform_push. When opts.AutoPush is false the
// operation is a deliberate no-op (Success true, Skipped true) - the
// daemon still commits locally but the user has opted out of pushing.
// Default timeout: 120s.
func (e *Engine) PerformPush(ctx context.Context, workingDir string, opts PushOptions) (*PushResult, error) {
	if !opts.AutoPush {
		return &PushResult{Success: true, Skipped: true, Message: "auto_push disabled"}, nil
	}

	repo, err := open(workingDir)
	if err != nil {
		return nil, classify("perform_push", err)
	}

	remote := opts.Remote
	if remote == "" {
		remote = "origin"
	}

	refSpec := fmt.Sprintf("refs/heads/%s:refs/heads/%s", opts.Branch, opts.Branch)
	pushErr := repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remote,
		RefSpecs:   []config.RefSpec{config.RefSpec(refSpec)},
		Auth:       opts.Auth,
	})
	if pushErr == git.NoErrAlreadyUpToDate {
		return &PushResult{Success: true, Message: "already up to date"}, nil
	}
	if pushErr != nil {
		oerr := classify("perform_push", pushErr)
		return &PushResult{Success: false, Message: oerr.Message, Reason: oerr.Reason}, oerr
	}

	return &PushResult{Success: true}, nil
}

// CheckUpstreamConflicts implements check_upstream_conflicts, the push
// preflight of §4.7 step 7. It never performs a network fetch - it
// compares the local branch against whatever remote-tracking ref is
// already known locally, matching the documented "preflight, not a live
// fetch" contract. Default timeout: 15s.
func (e *Engine) CheckUpstreamConflicts(ctx context.Context, workingDir, remoteName, branch string) (*ConflictCheck, error) {
	repo, err := open(workingDir)
	if err != nil {
		return nil, classify("check_upstream_conflicts", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, classify("check_upstream_conflicts", err)
	}
	st, err := wt.Status()
	if err != nil {
		return nil, classify("check_upstream_conflicts", err)
	}

	var conflictFiles []string
	for path, fs := range st {
		if fs.Staging == git.UpdatedButUnmerged || fs.Worktree == git.UpdatedButUnmerged {
			conflictFiles = append(conflictFiles, path)
		}
	}
	sort.Strings(conflictFiles)

	head, err := repo.Head()
	if err != nil {
		return nil, classify("check_upstream_conflicts", err)
	}

	if remoteName == "" {
		remoteName = "origin"
	}
	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName(remoteName, branch), true)
	if err != nil {
		// No remote-tracking ref recorded locally yet: nothing to diverge
		// from, but an unresolved index conflict still blocks.
		return &ConflictCheck{
			Success:       true,
			HasUpstream:   false,
			HasConflicts:  len(conflictFiles) > 0,
			ConflictFiles: conflictFiles,
		}, nil
	}

	ahead, behind, err := aheadBehind(repo, head.Hash(), remoteRef.Hash())
	if err != nil {
		return nil, classify("check_upstream_conflicts", err)
	}

	return &ConflictCheck{
		Success:       true,
		HasUpstream:   true,
		HasConflicts:  len(conflictFiles) > 0,
		ConflictFiles: conflictFiles,
		Ahead:         ahead,
		Behind:        behind,
		Diverged:      ahead > 0 && behind > 0,
	}, nil
}

// GetCommitHistory implements get_commit_history: the most recent limit
// commits reachable from HEAD, newest first.
func (e *Engine) GetCommitHistory(ctx context.Context, workingDir string, limit int) ([]CommitLogEntry, error) {
	repo, err := open(workingDir)
	if err != nil {
		return nil, classify("get_commit_history", err)
	}
	head, err := repo.Head()
	if err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return nil, nil
		}
		return nil, classify("get_commit_history", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, classify("get_commit_history", err)
	}
	defer iter.Close()

	var entries []CommitLogEntry
	err = iter.ForEach(func(c *object.Commit) error {
		if limit > 0 && len(entries) >= limit {
			return storerStop
		}
		entries = append(entries, CommitLogEntry{
			ShortHash: c.Hash.String()[:7],
			FullHash:  c.Hash.String(),
			Summary:   firstLine(c.Message),
			Author:    c.Author.Name,
			When:      c.Author.When,
		})
		return nil
	})
	if err != nil && err != storerStop {
		return nil, classify("get_commit_history", err)
	}
	return entries, nil
}

// GetDetailedCommitHistory implements get_detailed_commit_history: like
// GetCommitHistory but with per-file stats, capped at limit commits.
// Stats computation is expensive (a tree diff per commit) so this is a
// distinct, pricier operation rather than a flag on GetCommitHistory.
func (e *Engine) GetDetailedCommitHistory(ctx context.Context, workingDir string, limit int) ([]DetailedCommitLogEntry, error) {
	repo, err := open(workingDir)
	if err != nil {
		return nil, classify("get_detailed_commit_history", err)
	}
	head, err := repo.Head()
	if err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return nil, nil
		}
		return nil, classify("get_detailed_commit_history", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, classify("get_detailed_commit_history", err)
	}
	defer iter.Close()

	var entries []DetailedCommitLogEntry
	err = iter.ForEach(func(c *object.Commit) error {
		if limit > 0 && len(entries) >= limit {
			return storerStop
		}
		entry := DetailedCommitLogEntry{CommitLogEntry: CommitLogEntry{
			ShortHash: c.Hash.String()[:7],
			FullHash:  c.Hash.String(),
			Summary:   firstLine(c.Message),
			Author:    c.Author.Name,
			When:      c.Author.When,
		}}

		stats, serr := c.Stats()
		if serr == nil {
			for _, fs := range stats {
				entry.FilesChanged = append(entry.FilesChanged, FileStat{
					Path: fs.Name, Added: fs.Addition, Removed: fs.Deletion,
				})
			}
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil && err != storerStop {
		return nil, classify("get_detailed_commit_history", err)
	}
	return entries, nil
}

// GetWorkingDiff implements get_working_diff: an aggregate added/removed
// line count for the current working-tree diff against HEAD, one
// FileStat per changed file that can be read from disk. Untracked paths
// get a zero FileStat; paths deleted from the working tree are left out.
func (e *Engine) GetWorkingDiff(ctx context.Context, workingDir string) ([]FileStat, error) {
	repo, err := open(workingDir)
	if err != nil {
		return nil, classify("get_working_diff", err)
	}
	head, err := repo.Head()
	if err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return nil, nil
		}
		return nil, classify("get_working_diff", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, classify("get_working_diff", err)
	}
	headTree, err := commit.Tree()
	if err != nil {
		return nil, classify("get_working_diff", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, classify("get_working_diff", err)
	}
	st, err := wt.Status()
	if err != nil {
		return nil, classify("get_working_diff", err)
	}

	var stats []FileStat
	for path := range st {
		f, ferr := headTree.File(path)
		if ferr != nil {
			// Untracked or newly added: can't diff against HEAD.
			stats = append(stats, FileStat{Path: path})
			continue
		}
		content, rerr := f.Contents()
		if rerr != nil {
			continue
		}
		diskContent, rerr := os.ReadFile(filepath.Join(workingDir, path))
		if rerr != nil {
			continue
		}
		added, removed := lineDelta(content, string(diskContent))
		stats = append(stats, FileStat{Path: path, Added: added, Removed: removed})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Path < stats[j].Path })
	return stats, nil
}

// GetChangedFilesTree implements get_changed_files_tree: the set of
// changed paths grouped by their parent directory, for the TUI's file
// tree panel.
func (e *Engine) GetChangedFilesTree(ctx context.Context, workingDir string) (map[string][]string, error) {
	repo, err := open(workingDir)
	if err != nil {
		return nil, classify("get_changed_files_tree", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, classify("get_changed_files_tree", err)
	}
	st, err := wt.Status()
	if err != nil {
		return nil, classify("get_changed_files_tree", err)
	}

	tree := make(map[string][]string)
	for path := range st {
		dir := filepath.Dir(path)
		tree[dir] = append(tree[dir], filepath.Base(path))
	}
	for dir := range tree {
		sort.Strings(tree[dir])
	}
	return tree, nil
}

// FileStatFn returns a closure reading a path's size and a leading
// chunk from disk, relative to workingDir. It implements the statFn
// contract expected by internal/reposvc/breaker.Breaker.AnalyzeFiles,
// which implements analyze_files_for_warnings' classification logic -
// the engine supplies the disk reads, the breaker owns the
// large/binary decision shared with its own unit tests.
func (e *Engine) FileStatFn(workingDir string) func(string) (int64, []byte, error) {
	return func(rel string) (int64, []byte, error) {
		full := filepath.Join(workingDir, rel)
		info, err := os.Stat(full)
		if err != nil {
			return 0, nil, err
		}
		f, err := os.Open(full)
		if err != nil {
			return 0, nil, err
		}
		defer f.Close()

		buf := make([]byte, 8000)
		n, _ := f.Read(buf)
		return info.Size(), buf[:n], nil
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func lineDelta(oldContent, newContent string) (added, removed int) {
	oldLines := strings.Split(oldContent, "\n")
	newLines := strings.Split(newContent, "\n")
	// A cheap length-delta heuristic, not a full Myers diff: good enough
	// for the dashboard's at-a-glance line counts.
	if len(newLines) > len(oldLines) {
		added = len(newLines) - len(oldLines)
	} else {
		removed = len(oldLines) - len(newLines)
	}
	if !bytes.Equal([]byte(oldContent), []byte(newContent)) && added == 0 && removed == 0 {
		// Same length, different content: count as one modified line.
		added, removed = 1, 1
	}
	return
}

var storerStop = fmt.Errorf("stop iteration")

// aheadBehind walks the commit graphs from local and remote independently
// until each finds the other, giving ahead/behind counts without
// requiring a full merge-base computation. Histories that never
// converge within maxWalk commits report the wall as the count, which is
// adequate for the daemon's advisory display purposes.
func aheadBehind(repo *git.Repository, local, remote plumbing.Hash) (ahead, behind int, err error) {
	const maxWalk = 5000

	if local == remote {
		return 0, 0, nil
	}

	ahead, err = countUntil(repo, local, remote, maxWalk)
	if err != nil {
		return 0, 0, err
	}
	behind, err = countUntil(repo, remote, local, maxWalk)
	if err != nil {
		return 0, 0, err
	}
	return ahead, behind, nil
}

func countUntil(repo *git.Repository, from, target plumbing.Hash, maxWalk int) (int, error) {
	iter, err := repo.Log(&git.LogOptions{From: from})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	count := 0
	walkErr := iter.ForEach(func(c *object.Commit) error {
		if c.Hash == target {
			return storerStop
		}
		count++
		if count >= maxWalk {
			return storerStop
		}
		return nil
	})
	if walkErr != nil && walkErr != storerStop {
		return 0, walkErr
	}
	return count, nil
}
