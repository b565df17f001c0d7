// Package secrets resolves the Shopify credential from a credential store.
//
// The credential is a single "api_key:password" string read once per run.
// Two stores are provided: environment variables (the default, also fed by
// a .env file) and Google Cloud Secret Manager.
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"

	"github.com/ultimatecoffee/shopsync/pkg/config"
	"github.com/ultimatecoffee/shopsync/pkg/errors"
)

// Store returns the value of a named credential
type Store interface {
	Get(ctx context.Context, key string) (string, error)
}

// New builds the store selected by cfg.Provider
func New(ctx context.Context, cfg config.SecretsConfig) (Store, error) {
	switch cfg.Provider {
	case "", config.SecretsEnv:
		return NewEnvStore(cfg.EnvPrefix), nil
	case config.SecretsGCP:
		return NewGCPStore(ctx, cfg.GCPProject, cfg.Version)
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown secrets provider %q", cfg.Provider)
	}
}

// EnvStore reads credentials from environment variables named Prefix+key
type EnvStore struct {
	Prefix string
	lookup func(string) (string, bool)
}

// NewEnvStore creates an environment variable store
func NewEnvStore(prefix string) *EnvStore {
	return &EnvStore{Prefix: prefix, lookup: os.LookupEnv}
}

// Get returns the variable's value. An unset or blank variable is an error.
func (s *EnvStore) Get(_ context.Context, key string) (string, error) {
	name := s.Prefix + key
	v, ok := s.lookup(name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", errors.Newf(errors.ErrorTypeSecret, "credential %s is not set", name)
	}
	return v, nil
}

// MapStore is an in-memory store, used in tests and dry runs
type MapStore map[string]string

// Get returns the stored value
func (m MapStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", errors.Newf(errors.ErrorTypeSecret, "credential %s is not set", key)
	}
	return v, nil
}

type versionAccessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// GCPStore reads credentials from Secret Manager, caching each payload
type GCPStore struct {
	project string
	version string
	client  versionAccessor

	mu    sync.Mutex
	cache map[string]string
}

// NewGCPStore creates a Secret Manager store using application default
// credentials
func NewGCPStore(ctx context.Context, project, version string) (*GCPStore, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSecret, "failed to create secret manager client")
	}
	return newGCPStore(client, project, version), nil
}

func newGCPStore(client versionAccessor, project, version string) *GCPStore {
	if version == "" {
		version = "latest"
	}
	return &GCPStore{
		project: project,
		version: version,
		client:  client,
		cache:   make(map[string]string),
	}
}

// Get returns the payload of secret key at the configured version
func (s *GCPStore) Get(ctx context.Context, key string) (string, error) {
	name := secretResourceName(s.project, key, s.version)

	s.mu.Lock()
	v, ok := s.cache[name]
	s.mu.Unlock()
	if ok {
		return v, nil
	}

	res, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: name,
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeSecret, fmt.Sprintf("failed to access %s", name))
	}

	v = strings.TrimSpace(string(res.GetPayload().GetData()))
	if v == "" {
		return "", errors.Newf(errors.ErrorTypeSecret, "secret %s is empty", name)
	}

	s.mu.Lock()
	s.cache[name] = v
	s.mu.Unlock()
	return v, nil
}

// Close releases the Secret Manager client
func (s *GCPStore) Close() error {
	return s.client.Close()
}

func secretResourceName(projectID, secret, version string) string {
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", projectID, secret, version)
}
