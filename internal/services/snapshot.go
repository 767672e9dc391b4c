package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/utils/merkletrie"
	"github.com/huangang/codemender/internal/config"
	"github.com/huangang/codemender/internal/models"
	"github.com/huangang/codemender/pkg/logger"
)

var codeExtensions = map[string]bool{
	".js": true, ".jsx": true, ".ts": true, ".tsx": true, ".mjs": true, ".cjs": true,
	".py": true, ".pyw": true,
	".java": true, ".kt": true, ".kts": true,
	".go": true, ".rs": true, ".rb": true, ".php": true, ".cs": true,
	".cpp": true, ".c": true, ".h": true, ".hpp": true,
	".swift": true, ".dart": true, ".vue": true, ".svelte": true,
}

var skipDirs = map[string]bool{
	"node_modules": true, ".next": true, "dist": true, "build": true, ".git": true,
	"__pycache__": true, "venv": true, ".venv": true, "vendor": true, "coverage": true,
	".cache": true, "tmp": true, "temp": true, ".nuxt": true, ".output": true,
}

// IsCodeFile reports whether a repository-relative path is eligible for analysis.
func IsCodeFile(path string) bool {
	if !codeExtensions[strings.ToLower(filepath.Ext(path))] {
		return false
	}
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if skipDirs[seg] {
			return false
		}
	}
	return true
}

type ChangeStatus string

const (
	ChangeAdded    ChangeStatus = "added"
	ChangeModified ChangeStatus = "modified"
	ChangeDeleted  ChangeStatus = "deleted"
)

type ChangedFile struct {
	Path   string
	Status ChangeStatus
}

type SnapshotFile struct {
	Path string
	Size int64
}

// SyncResult describes a clone or pull of a project's working copy.
type SyncResult struct {
	LocalPath    string
	Cloned       bool
	PreviousHead string
	Head         string
}

// Changed reports whether the sync moved HEAD.
func (r *SyncResult) Changed() bool {
	return r.Cloned || r.PreviousHead != r.Head
}

// SnapshotProvider yields repository content for analysis.
type SnapshotProvider interface {
	Sync(ctx context.Context, project *models.Project, token string) (*SyncResult, error)
	ChangedSince(ctx context.Context, localPath, fromSHA string) ([]ChangedFile, error)
	ListFiles(localPath string) ([]SnapshotFile, error)
	ReadFile(localPath, relPath string) (string, error)
	Remove(localPath string) error
}

// GitSnapshotProvider keeps shallow go-git clones under the workspace dir.
type GitSnapshotProvider struct {
	cfg config.WorkspaceConfig
}

func NewGitSnapshotProvider(cfg config.WorkspaceConfig) *GitSnapshotProvider {
	return &GitSnapshotProvider{cfg: cfg}
}

func (p *GitSnapshotProvider) localPathFor(project *models.Project) string {
	if project.LocalPath != "" {
		return project.LocalPath
	}
	return filepath.Join(p.cfg.ReposDir, fmt.Sprintf("%d-%s-%s", project.ID, project.Owner, project.Repo))
}

func gitAuth(token string) *githttp.BasicAuth {
	if token == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: "x-access-token", Password: token}
}

// Sync pulls an existing working copy or clones a fresh one. A failed pull
// falls back to a fresh clone.
func (p *GitSnapshotProvider) Sync(ctx context.Context, project *models.Project, token string) (*SyncResult, error) {
	localPath := p.localPathFor(project)

	if repo, err := git.PlainOpen(localPath); err == nil {
		prev, _ := headSHA(repo)
		head, err := p.pull(ctx, repo, project, token)
		if err == nil {
			return &SyncResult{LocalPath: localPath, PreviousHead: prev, Head: head}, nil
		}
		logger.Warnf("[Snapshot] pull of %s failed, re-cloning: %v", project.FullName(), err)
		if err := os.RemoveAll(localPath); err != nil {
			return nil, fmt.Errorf("remove stale clone: %w", err)
		}
		res, err := p.clone(ctx, localPath, project, token)
		if err != nil {
			return nil, err
		}
		res.PreviousHead = prev
		return res, nil
	}

	return p.clone(ctx, localPath, project, token)
}

func (p *GitSnapshotProvider) clone(ctx context.Context, localPath string, project *models.Project, token string) (*SyncResult, error) {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return nil, fmt.Errorf("create repos dir: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.CloneTimeout)
	defer cancel()

	start := time.Now()
	opts := &git.CloneOptions{
		URL:          project.URL,
		Depth:        1,
		SingleBranch: true,
	}
	if auth := gitAuth(token); auth != nil {
		opts.Auth = auth
	}
	if project.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(project.Branch)
	}
	repo, err := git.PlainCloneContext(ctx, localPath, false, opts)
	if err != nil {
		_ = os.RemoveAll(localPath)
		return nil, fmt.Errorf("clone %s: %w", project.FullName(), err)
	}
	head, err := headSHA(repo)
	if err != nil {
		return nil, err
	}
	logger.Infof("[Snapshot] cloned %s at %s in %s", project.FullName(), shortSHA(head), time.Since(start).Round(time.Millisecond))
	return &SyncResult{LocalPath: localPath, Cloned: true, Head: head}, nil
}

func (p *GitSnapshotProvider) pull(ctx context.Context, repo *git.Repository, project *models.Project, token string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.PullTimeout)
	defer cancel()

	wt, err := repo.Worktree()
	if err != nil {
		return "", err
	}
	opts := &git.PullOptions{
		RemoteName:   "origin",
		SingleBranch: true,
		Force:        true,
	}
	if auth := gitAuth(token); auth != nil {
		opts.Auth = auth
	}
	if project.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(project.Branch)
	}
	if err := wt.PullContext(ctx, opts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return "", err
	}
	return headSHA(repo)
}

// ChangedSince diffs fromSHA against HEAD. It fails when fromSHA is not in
// the local object store, which happens after a re-clone.
func (p *GitSnapshotProvider) ChangedSince(ctx context.Context, localPath, fromSHA string) ([]ChangedFile, error) {
	repo, err := git.PlainOpen(localPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", localPath, err)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, err
	}
	if head.Hash().String() == fromSHA {
		return nil, nil
	}

	fromCommit, err := repo.CommitObject(plumbing.NewHash(fromSHA))
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", shortSHA(fromSHA), err)
	}
	toCommit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, err
	}
	fromTree, err := fromCommit.Tree()
	if err != nil {
		return nil, err
	}
	toTree, err := toCommit.Tree()
	if err != nil {
		return nil, err
	}

	changes, err := fromTree.DiffContext(ctx, toTree)
	if err != nil {
		return nil, err
	}
	return mapChanges(changes)
}

func mapChanges(changes object.Changes) ([]ChangedFile, error) {
	out := make([]ChangedFile, 0, len(changes))
	for _, ch := range changes {
		action, err := ch.Action()
		if err != nil {
			return nil, err
		}
		switch action {
		case merkletrie.Insert:
			out = append(out, ChangedFile{Path: ch.To.Name, Status: ChangeAdded})
		case merkletrie.Delete:
			out = append(out, ChangedFile{Path: ch.From.Name, Status: ChangeDeleted})
		case merkletrie.Modify:
			out = append(out, ChangedFile{Path: ch.To.Name, Status: ChangeModified})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// ListFiles walks the working copy and returns code files within the size cap,
// sorted by path.
func (p *GitSnapshotProvider) ListFiles(localPath string) ([]SnapshotFile, error) {
	var files []SnapshotFile
	err := filepath.WalkDir(localPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != localPath && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(localPath, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !IsCodeFile(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if p.cfg.MaxFileSize > 0 && info.Size() > p.cfg.MaxFileSize {
			return nil
		}
		files = append(files, SnapshotFile{Path: rel, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// ReadFile reads a repository-relative path, refusing paths that escape the
// working copy and files above the size cap.
func (p *GitSnapshotProvider) ReadFile(localPath, relPath string) (string, error) {
	full := filepath.Join(localPath, filepath.FromSlash(relPath))
	if rel, err := filepath.Rel(localPath, full); err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q escapes the working copy", relPath)
	}
	info, err := os.Stat(full)
	if err != nil {
		return "", err
	}
	if p.cfg.MaxFileSize > 0 && info.Size() > p.cfg.MaxFileSize {
		return "", fmt.Errorf("%s exceeds %d bytes", relPath, p.cfg.MaxFileSize)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Remove deletes a working copy. Paths outside the repos dir are refused.
func (p *GitSnapshotProvider) Remove(localPath string) error {
	if localPath == "" {
		return nil
	}
	base, err := filepath.Abs(p.cfg.ReposDir)
	if err != nil {
		return err
	}
	target, err := filepath.Abs(localPath)
	if err != nil {
		return err
	}
	if rel, err := filepath.Rel(base, target); err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("refusing to remove %s outside %s", localPath, p.cfg.ReposDir)
	}
	return os.RemoveAll(target)
}

func headSHA(repo *git.Repository) (string, error) {
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
