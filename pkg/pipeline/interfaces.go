package pipeline

//go:generate mockgen -destination=mocks/mock_interfaces.go -package=mocks -source=interfaces.go Fetcher,Indexer,Annotator,Publisher,SecretOpener

import (
	"context"

	"github.com/ethpandaops/specsync/pkg/coderag"
	"github.com/ethpandaops/specsync/pkg/spec"
	"github.com/ethpandaops/specsync/pkg/store"
)

// Fetcher retrieves a project's authoritative document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (spec.Document, error)
}

// Indexer prepares a source repository for annotation queries.
type Indexer interface {
	Setup(ctx context.Context, req coderag.SetupRequest) error
	Status(ctx context.Context, repoID string) (*coderag.IndexStatus, error)
}

// Annotator fills in missing descriptions of a document fragment.
type Annotator interface {
	Annotate(ctx context.Context, req coderag.AnnotateRequest) (spec.Document, error)
}

// Publisher delivers a persisted snapshot to an external sink.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, project *store.Project, snapshot *store.Snapshot) error
}

// SecretOpener recovers credentials sealed at rest.
type SecretOpener interface {
	OpenSecret(sealed string) (string, error)
}
