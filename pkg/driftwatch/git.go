package driftwatch

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrRangeUnresolvable is returned by a [CommitRangeProvider] when one or both
// endpoint hashes are not present in the repository's history. Changes whose
// range is unresolvable are reported as version-only changes.
var ErrRangeUnresolvable = errors.New("commit range unresolvable")

// A CommitSummary is one commit of a regression window, with its one-line
// description.
type CommitSummary struct {
	Hash    string `json:"hash"`
	Subject string `json:"subject"`
}

// A CommitRangeProvider resolves the commits between two hashes in the source
// control system of a tracked package or of the repository under test.
type CommitRangeProvider interface {
	// CommitRangeSummary returns the commits reachable from "to" but not from
	// "from", oldest first. It returns an error wrapping
	// [ErrRangeUnresolvable] if either hash is unknown to the repository.
	CommitRangeSummary(ctx context.Context, from, to string) ([]CommitSummary, error)
}

// A GitRepo provides commit ranges by shelling out to git inside a local
// clone.
type GitRepo struct {
	Path string // The path to the working copy whose history is queried
}

// CommitRangeSummary returns the commits between from and to, oldest first,
// with their one-line descriptions.
func (g *GitRepo) CommitRangeSummary(ctx context.Context, from, to string) ([]CommitSummary, error) {
	for _, hash := range []string{from, to} {
		cmd := exec.CommandContext(ctx, "git", "rev-parse", "--verify", "--quiet", hash+"^{commit}")
		cmd.Dir = g.Path
		if err := cmd.Run(); err != nil {
			return nil, fmt.Errorf("hash %s not found in repository at %s: %w", hash, g.Path, ErrRangeUnresolvable)
		}
	}

	cmd := exec.CommandContext(ctx, "git", "log", "--reverse", "--format=%H%x09%s", from+".."+to)
	cmd.Dir = g.Path
	out, err := cmd.Output()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("git log of range %s..%s at %s failed", from, to, g.Path), err)
	}

	var commits []CommitSummary
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line == "" {
			continue
		}
		hash, subject, _ := strings.Cut(line, "\t")
		commits = append(commits, CommitSummary{Hash: hash, Subject: subject})
	}
	return commits, nil
}

// Head returns the currently checked out commit of the repository.
func (g *GitRepo) Head(ctx context.Context) (HeadCommit, error) {
	cmd := exec.CommandContext(ctx, "git", "log", "-1", "--format=%H%x09%s%x09%an <%ae>%x09%ci")
	cmd.Dir = g.Path
	out, err := cmd.Output()
	if err != nil {
		return HeadCommit{}, errors.Join(fmt.Errorf("getting HEAD of repository at %s failed", g.Path), err)
	}

	fields := strings.SplitN(strings.TrimRight(string(out), "\n"), "\t", 4)
	head := HeadCommit{Hash: fields[0]}
	if len(fields) > 1 {
		head.Subject = fields[1]
	}
	if len(fields) > 2 {
		head.Author = fields[2]
	}
	if len(fields) > 3 {
		head.Date = fields[3]
	}
	return head, nil
}
