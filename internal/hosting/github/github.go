// Package github implements hosting.Provider against GitHub pull requests
// using the go-github SDK. Grounded on the teacher lineage's
// internal/hosting/github adapter: token resolution from the environment,
// a thin oauth2 transport, and owner/repo addressing per configured repo.
package github

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/go-github/v82/github"
	"golang.org/x/oauth2"

	"github.com/othala/othala/internal/hosting"
)

func init() {
	hosting.Register("github", func() (hosting.Provider, error) {
		return newProvider()
	})
}

// repoSlug maps a configured repo_id ("owner/name") to an owner/name pair.
type repoSlug struct {
	owner, name string
}

func splitSlug(repoID string) (repoSlug, error) {
	parts := strings.SplitN(repoID, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return repoSlug{}, fmt.Errorf("github: repo_id %q is not owner/name", repoID)
	}
	return repoSlug{owner: parts[0], name: parts[1]}, nil
}

// Provider implements hosting.Provider against the GitHub REST API.
type Provider struct {
	client *github.Client
}

func newProvider() (*Provider, error) {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("github: GITHUB_TOKEN is not set")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(context.Background(), ts)
	client := github.NewClient(httpClient)

	if base := os.Getenv("GITHUB_BASE_URL"); base != "" {
		enterprise, err := client.WithEnterpriseURLs(base, base)
		if err != nil {
			return nil, fmt.Errorf("github: enterprise base url %q: %w", base, err)
		}
		client = enterprise
	}
	return &Provider{client: client}, nil
}

func (p *Provider) Name() string { return "github" }

// EnsureTracked is a no-op for GitHub: pushing a branch (done by
// internal/pipeline before calling Submit) is sufficient for GitHub to
// recognize it. GitLab's MR tracking model needs an explicit step
// instead, which is why this lives on the interface at all.
func (p *Provider) EnsureTracked(ctx context.Context, repoID, branch string) error {
	return nil
}

func (p *Provider) Submit(ctx context.Context, req hosting.SubmitRequest) (*hosting.PRInfo, error) {
	slug, err := splitSlug(req.RepoID)
	if err != nil {
		return nil, err
	}

	if existing, err := p.Find(ctx, req.RepoID, req.Branch); err == nil && existing != nil {
		return existing, nil
	}

	pr, _, err := p.client.PullRequests.Create(ctx, slug.owner, slug.name, &github.NewPullRequest{
		Title: github.Ptr(req.Title),
		Head:  github.Ptr(req.Branch),
		Base:  github.Ptr(req.BaseBranch),
		Body:  github.Ptr(req.Body),
	})
	if err != nil {
		return nil, fmt.Errorf("github: create PR for %s: %w", req.Branch, err)
	}
	return toPRInfo(pr), nil
}

func (p *Provider) Find(ctx context.Context, repoID, branch string) (*hosting.PRInfo, error) {
	slug, err := splitSlug(repoID)
	if err != nil {
		return nil, err
	}

	prs, _, err := p.client.PullRequests.List(ctx, slug.owner, slug.name, &github.PullRequestListOptions{
		Head:  slug.owner + ":" + branch,
		State: "all",
	})
	if err != nil {
		return nil, fmt.Errorf("github: list PRs for %s: %w", branch, err)
	}
	if len(prs) == 0 {
		return nil, nil
	}
	return toPRInfo(prs[0]), nil
}

func toPRInfo(pr *github.PullRequest) *hosting.PRInfo {
	status := hosting.PRStatusOpen
	switch {
	case pr.GetMerged():
		status = hosting.PRStatusMerged
	case pr.GetState() == "closed":
		status = hosting.PRStatusClosed
	}
	info := &hosting.PRInfo{
		Number:     pr.GetNumber(),
		URL:        pr.GetHTMLURL(),
		Status:     status,
		BaseBranch: pr.GetBase().GetRef(),
		HeadBranch: pr.GetHead().GetRef(),
		UpdatedAt:  pr.GetUpdatedAt().Time,
	}
	if pr.MergeCommitSHA != nil {
		info.MergeSHA = pr.GetMergeCommitSHA()
	}
	// MergeableState "behind" means the base has moved past the commit this
	// PR was opened against; the pipeline reads this as parent_moved.
	info.TrunkStale = pr.GetMergeableState() == "behind"
	if info.UpdatedAt.IsZero() {
		info.UpdatedAt = time.Now().UTC()
	}
	return info
}
