package gitsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/rs/zerolog/log"
)

// Repo is the local working copy of the remote content repository.
type Repo interface {
	// Init makes sure the working copy exists. It is cheap when it does.
	Init(ctx context.Context) error
	// Pull fetches and merges the remote branch and describes what happened.
	Pull(ctx context.Context) (string, error)
}

var ErrNoRemote = errors.New("no remote repository configured")

const DefaultTimeout = 30 * time.Second

// MergeFunc combines a locally modified file with its incoming version and
// returns what the working copy should hold.
type MergeFunc func(local, upstream []byte) ([]byte, error)

type GitOptions struct {
	Dir     string
	URL     string
	Branch  string
	Token   string
	Timeout time.Duration
	// Merge carries local edits over an update. Without it local edits are
	// dropped.
	Merge MergeFunc
}

// GitRepo drives a working copy through go-git; no git binary is needed.
type GitRepo struct {
	opts GitOptions
	repo *git.Repository
}

func NewGitRepo(opts GitOptions) *GitRepo {
	if opts.Branch == "" {
		opts.Branch = "main"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &GitRepo{opts: opts}
}

func (r *GitRepo) auth() transport.AuthMethod {
	if r.opts.Token == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: "git", Password: r.opts.Token}
}

func (r *GitRepo) Init(ctx context.Context) error {
	if r.repo != nil {
		return nil
	}

	repo, err := git.PlainOpen(r.opts.Dir)
	if err == nil {
		r.repo = repo
		return nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return fmt.Errorf("open %s: %w", r.opts.Dir, err)
	}

	if r.opts.URL == "" {
		return ErrNoRemote
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	log.Info().Str("url", r.opts.URL).Str("dir", r.opts.Dir).Msg("cloning posts repository")

	repo, err = git.PlainCloneContext(ctx, r.opts.Dir, false, &git.CloneOptions{
		URL:           r.opts.URL,
		Auth:          r.auth(),
		ReferenceName: plumbing.NewBranchReferenceName(r.opts.Branch),
		SingleBranch:  true,
	})
	if err != nil {
		return fmt.Errorf("clone %s: %w", r.opts.URL, err)
	}

	r.repo = repo
	return nil
}

// Pull fetches the branch and moves the working copy onto it. Tracked files
// changed locally (view counts) would block a merge, so the copy is reset to
// the fetched commit and those files are passed through Merge.
func (r *GitRepo) Pull(ctx context.Context) (string, error) {
	if r.repo == nil {
		return "", errors.New("repository not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	branch := plumbing.NewBranchReferenceName(r.opts.Branch)
	remote := plumbing.NewRemoteReferenceName("origin", r.opts.Branch)

	err := r.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{gitconfig.RefSpec("+" + branch.String() + ":" + remote.String())},
		Auth:       r.auth(),
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return "", fmt.Errorf("fetch %s: %w", r.opts.Branch, err)
	}

	target, err := r.repo.Reference(remote, true)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", remote.Short(), err)
	}

	if head, err := r.repo.Head(); err == nil && head.Hash() == target.Hash() {
		return "already up to date", nil
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return "", err
	}

	local, err := r.localChanges(wt)
	if err != nil {
		return "", err
	}

	err = wt.Reset(&git.ResetOptions{Commit: target.Hash(), Mode: git.HardReset})
	if err != nil {
		return "", fmt.Errorf("reset to %s: %w", remote.Short(), err)
	}

	r.restore(local)

	return "updated to " + target.Hash().String()[:7], nil
}

// localChanges reads the tracked files modified in the working copy.
func (r *GitRepo) localChanges(wt *git.Worktree) (map[string][]byte, error) {
	if r.opts.Merge == nil {
		return nil, nil
	}

	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	changed := make(map[string][]byte)
	for path, fs := range status {
		if fs.Worktree != git.Modified {
			continue
		}
		b, err := os.ReadFile(filepath.Join(r.opts.Dir, filepath.FromSlash(path)))
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("read local change")
			continue
		}
		changed[path] = b
	}
	return changed, nil
}

func (r *GitRepo) restore(changed map[string][]byte) {
	for path, local := range changed {
		full := filepath.Join(r.opts.Dir, filepath.FromSlash(path))

		upstream, err := os.ReadFile(full)
		if err != nil {
			// removed upstream
			continue
		}

		merged, err := r.opts.Merge(local, upstream)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("drop local change")
			continue
		}
		if err = os.WriteFile(full, merged, 0644); err != nil {
			log.Warn().Err(err).Str("file", path).Msg("restore local change")
		}
	}
}
