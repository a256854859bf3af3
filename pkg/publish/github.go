package publish

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ethpandaops/specsync/pkg/config"
	"github.com/ethpandaops/specsync/pkg/github"
	"github.com/ethpandaops/specsync/pkg/pipeline"
	"github.com/ethpandaops/specsync/pkg/store"
	"github.com/sirupsen/logrus"
)

const (
	defaultGitHubPath    = "openapi.json"
	defaultGitHubMessage = "docs: update generated OpenAPI description for {project}"
)

// GitHubPublisher commits the annotated document into the project's own
// repository.
type GitHubPublisher struct {
	log    logrus.FieldLogger
	client github.Client
	cfg    config.GitHubPublishConfig
}

var _ pipeline.Publisher = (*GitHubPublisher)(nil)

// NewGitHubPublisher creates a publisher writing through client.
func NewGitHubPublisher(log logrus.FieldLogger, client github.Client, cfg config.GitHubPublishConfig) *GitHubPublisher {
	if cfg.Path == "" {
		cfg.Path = defaultGitHubPath
	}

	if cfg.Message == "" {
		cfg.Message = defaultGitHubMessage
	}

	return &GitHubPublisher{
		log:    log.WithField("component", "publish_github"),
		client: client,
		cfg:    cfg,
	}
}

// Name implements pipeline.Publisher.
func (p *GitHubPublisher) Name() string {
	return "github"
}

// Publish implements pipeline.Publisher. An identical file already in the
// repository is left alone.
func (p *GitHubPublisher) Publish(ctx context.Context, project *store.Project, snapshot *store.Snapshot) error {
	owner, repo, err := github.ParseRepository(project.GitRepoURL)
	if err != nil {
		return err
	}

	content, err := encode(snapshot)
	if err != nil {
		return err
	}

	path := render(p.cfg.Path, project, snapshot)

	log := p.log.WithFields(logrus.Fields{
		"project": project.Name,
		"owner":   owner,
		"repo":    repo,
		"path":    path,
	})

	existing, err := p.client.GetFile(ctx, owner, repo, path, p.cfg.Branch)
	if err != nil {
		return fmt.Errorf("reading current document: %w", err)
	}

	req := github.PutFileRequest{
		Owner:   owner,
		Repo:    repo,
		Path:    path,
		Branch:  p.cfg.Branch,
		Message: render(p.cfg.Message, project, snapshot),
		Content: content,
	}

	if existing != nil {
		if bytes.Equal(existing.Content, content) {
			log.Debug("Published document unchanged, skipping commit")

			return nil
		}

		req.SHA = existing.SHA
	}

	commit, err := p.client.PutFile(ctx, req)
	if err != nil {
		return fmt.Errorf("committing document: %w", err)
	}

	log.WithField("commit", commit.SHA).Info("Published document to repository")

	return nil
}
