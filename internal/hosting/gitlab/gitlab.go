// Package gitlab implements hosting.Provider against GitLab merge requests
// using gitlab.com/gitlab-org/api/client-go, the GitLab-side analogue of
// the GitHub adapter.
package gitlab

import (
	"context"
	"fmt"
	"os"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/othala/othala/internal/hosting"
)

func init() {
	hosting.Register("gitlab", func() (hosting.Provider, error) {
		return newProvider()
	})
}

// Provider implements hosting.Provider against the GitLab REST API.
type Provider struct {
	client *gitlab.Client
}

func newProvider() (*Provider, error) {
	token := os.Getenv("GITLAB_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("gitlab: GITLAB_TOKEN is not set")
	}
	opts := []gitlab.ClientOptionFunc{}
	if base := os.Getenv("GITLAB_BASE_URL"); base != "" {
		opts = append(opts, gitlab.WithBaseURL(base))
	}
	client, err := gitlab.NewClient(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("gitlab: new client: %w", err)
	}
	return &Provider{client: client}, nil
}

func (p *Provider) Name() string { return "gitlab" }

// EnsureTracked pushes the branch into GitLab's awareness isn't needed as
// a distinct API step either, but GitLab merge requests do need the
// source project to know about the branch before a merge request is
// creatable; this probes for the branch's existence and surfaces a clear
// error if it is missing rather than letting Submit fail opaquely.
func (p *Provider) EnsureTracked(ctx context.Context, repoID, branch string) error {
	_, _, err := p.client.Branches.GetBranch(repoID, branch, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("gitlab: branch %s not visible on project %s yet: %w", branch, repoID, err)
	}
	return nil
}

func (p *Provider) Submit(ctx context.Context, req hosting.SubmitRequest) (*hosting.PRInfo, error) {
	if existing, err := p.Find(ctx, req.RepoID, req.Branch); err == nil && existing != nil {
		return existing, nil
	}

	mr, _, err := p.client.MergeRequests.CreateMergeRequest(req.RepoID, &gitlab.CreateMergeRequestOptions{
		Title:        gitlab.Ptr(req.Title),
		Description:  gitlab.Ptr(req.Body),
		SourceBranch: gitlab.Ptr(req.Branch),
		TargetBranch: gitlab.Ptr(req.BaseBranch),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("gitlab: create MR for %s: %w", req.Branch, err)
	}
	return toPRInfo(mr), nil
}

func (p *Provider) Find(ctx context.Context, repoID, branch string) (*hosting.PRInfo, error) {
	mrs, _, err := p.client.MergeRequests.ListProjectMergeRequests(repoID, &gitlab.ListProjectMergeRequestsOptions{
		SourceBranch: gitlab.Ptr(branch),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("gitlab: list MRs for %s: %w", branch, err)
	}
	if len(mrs) == 0 {
		return nil, nil
	}
	return toPRInfo(mrs[0]), nil
}

func toPRInfo(mr *gitlab.MergeRequest) *hosting.PRInfo {
	status := hosting.PRStatusOpen
	switch strings.ToLower(mr.State) {
	case "merged":
		status = hosting.PRStatusMerged
	case "closed":
		status = hosting.PRStatusClosed
	}
	info := &hosting.PRInfo{
		Number:     mr.IID,
		URL:        mr.WebURL,
		Status:     status,
		BaseBranch: mr.TargetBranch,
		HeadBranch: mr.SourceBranch,
	}
	if mr.MergeCommitSHA != "" {
		info.MergeSHA = mr.MergeCommitSHA
	}
	// DivergedCommitsCount > 0 means target has moved ahead of the MR's
	// merge base; the pipeline reads this as parent_moved.
	info.TrunkStale = mr.DivergedCommitsCount > 0
	if mr.UpdatedAt != nil {
		info.UpdatedAt = *mr.UpdatedAt
	}
	return info
}
