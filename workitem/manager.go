package workitem

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// ErrUnknownOrganization is returned when no repository can be provided for an organization
var ErrUnknownOrganization = errors.New("unknown organization")

const maxOrganizationLength = 50

var validOrganization = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]*$`)

// RepositoryFactory creates a Repository for an organization URL
type RepositoryFactory func(ctx context.Context, organizationURL string) (Repository, error)

// DevOpsFactory returns a RepositoryFactory authenticating with a personal access token
func DevOpsFactory(pat string) RepositoryFactory {
	return func(ctx context.Context, organizationURL string) (Repository, error) {
		return NewDevOpsRepository(ctx, organizationURL, pat)
	}
}

// ManagerConfig controls which organizations a Manager serves
type ManagerConfig struct {
	// BaseURL is prefixed to the organization name, e.g. https://dev.azure.com/
	BaseURL string

	// DefaultOrganization is used when an event carries no organization
	DefaultOrganization string

	// AllowedOrganizations restricts the organizations served. Empty allows any.
	AllowedOrganizations []string
}

// Manager hands out one Repository per organization, created on first use
// and reused for later deliveries. Safe for concurrent use.
type Manager struct {
	config       ManagerConfig
	factory      RepositoryFactory
	allowed      map[string]bool
	repositories map[string]Repository
	mu           sync.RWMutex
}

// NewManager creates a new manager instance
func NewManager(config ManagerConfig, factory RepositoryFactory) *Manager {
	if config.BaseURL == "" {
		config.BaseURL = "https://dev.azure.com/"
	}
	if !strings.HasSuffix(config.BaseURL, "/") {
		config.BaseURL += "/"
	}

	allowed := make(map[string]bool, len(config.AllowedOrganizations))
	for _, org := range config.AllowedOrganizations {
		allowed[strings.ToLower(org)] = true
	}

	return &Manager{
		config:       config,
		factory:      factory,
		allowed:      allowed,
		repositories: make(map[string]Repository),
	}
}

// Repository returns the repository for organization, creating it if needed.
// An empty organization falls back to the configured default.
func (m *Manager) Repository(ctx context.Context, organization string) (Repository, error) {
	if organization == "" {
		organization = m.config.DefaultOrganization
	}
	if err := m.validateOrganization(organization); err != nil {
		return nil, err
	}

	key := strings.ToLower(organization)

	m.mu.RLock()
	repo, exists := m.repositories[key]
	m.mu.RUnlock()
	if exists {
		return repo, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another delivery may have created it while we waited for the lock
	if repo, exists := m.repositories[key]; exists {
		return repo, nil
	}

	repo, err := m.factory(ctx, m.config.BaseURL+organization)
	if err != nil {
		return nil, fmt.Errorf("failed to create repository for organization %s: %w", organization, err)
	}

	m.repositories[key] = repo
	return repo, nil
}

// ListOrganizations returns the organizations with a live repository
func (m *Manager) ListOrganizations() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	orgs := make([]string, 0, len(m.repositories))
	for org := range m.repositories {
		orgs = append(orgs, org)
	}
	return orgs
}

// Forget drops the cached repository for organization, e.g. after its token rotated
func (m *Manager) Forget(organization string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.repositories, strings.ToLower(organization))
}

// validateOrganization guards the organization name before it becomes part of a URL
func (m *Manager) validateOrganization(organization string) error {
	if organization == "" {
		return fmt.Errorf("%w: event carries no organization and no default is configured", ErrUnknownOrganization)
	}
	if len(organization) > maxOrganizationLength {
		return fmt.Errorf("%w: name length %d exceeds maximum of %d characters", ErrUnknownOrganization, len(organization), maxOrganizationLength)
	}
	if !validOrganization.MatchString(organization) {
		return fmt.Errorf("%w: %q must match %s", ErrUnknownOrganization, organization, validOrganization.String())
	}
	if len(m.allowed) > 0 && !m.allowed[strings.ToLower(organization)] {
		return fmt.Errorf("%w: %q is not in the allowed list", ErrUnknownOrganization, organization)
	}
	return nil
}
