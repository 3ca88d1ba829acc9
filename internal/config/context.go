package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Context is the CLI selection: which local account commands act on by default.
type Context struct {
	// AccountID is the selected local account.
	AccountID   string    `yaml:"account,omitempty"`
	// AccountName is username@domain for display.
	AccountName string    `yaml:"account_name,omitempty"`
	UpdatedAt   time.Time `yaml:"updated_at,omitempty"`
}

// IsEmpty returns true if no account is selected.
func (c *Context) IsEmpty() bool {
	return c.AccountID == ""
}

// SetAccount selects an account.
func (c *Context) SetAccount(id, name string) {
	c.AccountID = id
	c.AccountName = name
	c.UpdatedAt = time.Now()
}

// Clear removes the selection.
func (c *Context) Clear() {
	c.AccountID = ""
	c.AccountName = ""
	c.UpdatedAt = time.Now()
}

func (c *Context) String() string {
	if c.IsEmpty() {
		return "(no account selected)"
	}
	if c.AccountName != "" {
		return fmt.Sprintf("account:%s", c.AccountName)
	}
	return fmt.Sprintf("account:%s", shortID(c.AccountID))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ContextStore loads and saves the Context file.
type ContextStore struct {
	path string
	mu   sync.RWMutex
}

// NewContextStore creates a store at path.
func NewContextStore(path string) *ContextStore {
	return &ContextStore{path: path}
}

// Path returns the context file path.
func (s *ContextStore) Path() string {
	return s.path
}

// Load reads the context. A missing file yields an empty context.
func (s *ContextStore) Load() (*Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := &Context{}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ctx, nil
		}
		return nil, fmt.Errorf("failed to read context file: %w", err)
	}
	if err := yaml.Unmarshal(data, ctx); err != nil {
		return nil, fmt.Errorf("failed to parse context file: %w", err)
	}
	return ctx, nil
}

// Save writes the context.
func (s *ContextStore) Save(ctx *Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create context directory: %w", err)
	}
	data, err := yaml.Marshal(ctx)
	if err != nil {
		return fmt.Errorf("failed to serialize context: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write context file: %w", err)
	}
	return nil
}

// Clear removes the context file.
func (s *ContextStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove context file: %w", err)
	}
	return nil
}
