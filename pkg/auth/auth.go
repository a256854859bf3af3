package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethpandaops/specsync/pkg/store"
	"github.com/sirupsen/logrus"
)

var (
	// ErrMissingToken is returned when a request carries no bearer token.
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidToken is returned when the token does not match the project.
	ErrInvalidToken = errors.New("invalid token for project")

	// ErrNoTokenConfigured is returned for projects without a token hash.
	ErrNoTokenConfigured = errors.New("project has no API token configured")

	// ErrProjectNotFound is returned when the project does not exist.
	ErrProjectNotFound = errors.New("project not found")
)

// Service defines the interface for project authentication and credential
// protection.
type Service interface {
	// AuthenticateProject loads a project and verifies that token belongs
	// to it.
	AuthenticateProject(ctx context.Context, projectID, token string) (*store.Project, error)

	// SealSecret protects a credential before it is stored.
	SealSecret(plain string) (string, error)

	// OpenSecret reverses SealSecret.
	OpenSecret(sealed string) (string, error)
}

// service implements Service.
type service struct {
	log    logrus.FieldLogger
	store  store.Store
	sealer *Sealer
}

// Ensure service implements Service.
var _ Service = (*service)(nil)

// NewService creates a new auth service. An empty secretKey stores
// credentials unsealed.
func NewService(log logrus.FieldLogger, st store.Store, secretKey string) Service {
	log = log.WithField("component", "auth")

	if secretKey == "" {
		log.Warn("No security.secret_key configured, git credentials are stored unsealed")
	}

	return &service{
		log:    log,
		store:  st,
		sealer: NewSealer(secretKey),
	}
}

// AuthenticateProject implements Service.
func (s *service) AuthenticateProject(ctx context.Context, projectID, token string) (*store.Project, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("getting project: %w", err)
	}

	if project == nil {
		return nil, ErrProjectNotFound
	}

	if project.TokenHash == "" {
		return nil, ErrNoTokenConfigured
	}

	if !VerifyToken(token, project.TokenHash) {
		s.log.WithField("project_id", projectID).Debug("Rejected token for project")

		return nil, ErrInvalidToken
	}

	return project, nil
}

// SealSecret implements Service.
func (s *service) SealSecret(plain string) (string, error) {
	return s.sealer.Seal(plain)
}

// OpenSecret implements Service.
func (s *service) OpenSecret(sealed string) (string, error) {
	return s.sealer.Open(sealed)
}

// GenerateToken generates a cryptographically secure random token.
func GenerateToken() (string, error) {
	bytes := make([]byte, 32)

	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}

	return base64.URLEncoding.EncodeToString(bytes), nil
}

// HashToken hashes a token for storage.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))

	return hex.EncodeToString(hash[:])
}

// VerifyToken reports whether token hashes to hashed.
func VerifyToken(token, hashed string) bool {
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(hashed)) == 1
}
