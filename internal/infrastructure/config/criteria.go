package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/evg-tools/greenbase/internal/domain"
)

// Saved-criteria errors.
var (
	// ErrCriteriaNotFound indicates no saved criteria group exists under the name.
	ErrCriteriaNotFound = errors.New("no saved criteria found under that name")

	// ErrCriteriaConflict indicates a saved rule targets the same variants
	// with different checks; pass override to replace it.
	ErrCriteriaConflict = errors.New("conflicting saved criteria; use override to replace")

	// ErrCriteriaFileInvalid indicates the criteria file is not valid YAML.
	ErrCriteriaFileInvalid = errors.New("criteria file is not valid YAML")
)

// criteriaFileName is the saved-criteria file under the user config directory.
const criteriaFileName = "criteria.yml"

// CriteriaConfiguration is the persisted collection of saved criteria groups.
type CriteriaConfiguration struct {
	SavedCriteria []domain.CriteriaGroup `yaml:"saved_criteria"`
}

// Group returns the saved group with the given name, or nil.
func (c *CriteriaConfiguration) Group(name string) *domain.CriteriaGroup {
	for i := range c.SavedCriteria {
		if c.SavedCriteria[i].Name == name {
			return &c.SavedCriteria[i]
		}
	}
	return nil
}

// Add stores a rule under the named group. A rule targeting the same variant
// regex set as an existing rule in the group conflicts: it replaces the
// existing rule when override is set and returns ErrCriteriaConflict
// otherwise. Identical rules are idempotent.
func (c *CriteriaConfiguration) Add(name string, rule domain.Criterion, override bool) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	group := c.Group(name)
	if group == nil {
		c.SavedCriteria = append(c.SavedCriteria, domain.CriteriaGroup{
			Name:  name,
			Rules: []domain.Criterion{rule},
		})
		return nil
	}

	for i, existing := range group.Rules {
		if !sameVariants(existing.BuildVariantRegex, rule.BuildVariantRegex) {
			continue
		}
		if reflect.DeepEqual(existing, rule) {
			return nil
		}
		if !override {
			return fmt.Errorf("%w: group %q already has a rule for variants %v",
				ErrCriteriaConflict, name, rule.BuildVariantRegex)
		}
		group.Rules[i] = rule
		return nil
	}

	group.Rules = append(group.Rules, rule)
	return nil
}

// sameVariants compares two variant regex sets ignoring order.
func sameVariants(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sortedA := append([]string(nil), a...)
	sortedB := append([]string(nil), b...)
	sort.Strings(sortedA)
	sort.Strings(sortedB)
	return reflect.DeepEqual(sortedA, sortedB)
}

// CriteriaStore loads and saves the criteria configuration file.
type CriteriaStore struct {
	path string
}

// NewCriteriaStore creates a store backed by the given file path.
func NewCriteriaStore(path string) *CriteriaStore {
	return &CriteriaStore{path: path}
}

// DefaultCriteriaPath returns the criteria file location under the user
// config directory.
func DefaultCriteriaPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config dir: %w", err)
	}
	return filepath.Join(dir, "greenbase", criteriaFileName), nil
}

// Load reads the criteria configuration. A missing file yields an empty
// configuration rather than an error.
func (s *CriteriaStore) Load() (*CriteriaConfiguration, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &CriteriaConfiguration{}, nil
		}
		return nil, fmt.Errorf("failed to read criteria file: %w", err)
	}

	cfg := &CriteriaConfiguration{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCriteriaFileInvalid, err)
	}
	return cfg, nil
}

// Save writes the criteria configuration, creating parent directories as needed.
func (s *CriteriaStore) Save(cfg *CriteriaConfiguration) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal criteria: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write criteria file: %w", err)
	}
	return nil
}

// Groups returns every saved criteria group.
func (s *CriteriaStore) Groups() ([]domain.CriteriaGroup, error) {
	cfg, err := s.Load()
	if err != nil {
		return nil, err
	}
	return cfg.SavedCriteria, nil
}

// Lookup returns the rules saved under the given name.
// Returns ErrCriteriaNotFound when the name is unknown or holds no rules.
func (s *CriteriaStore) Lookup(name string) ([]domain.Criterion, error) {
	cfg, err := s.Load()
	if err != nil {
		return nil, err
	}
	group := cfg.Group(name)
	if group == nil || len(group.Rules) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrCriteriaNotFound, name)
	}
	return group.Rules, nil
}

// AddRule loads the configuration, adds the rule under the named group, and
// saves the result.
func (s *CriteriaStore) AddRule(name string, rule domain.Criterion, override bool) error {
	cfg, err := s.Load()
	if err != nil {
		return err
	}
	if err := cfg.Add(name, rule, override); err != nil {
		return err
	}
	return s.Save(cfg)
}

// Export writes the named groups to the destination file.
// Returns ErrCriteriaNotFound if none of the names exist.
func (s *CriteriaStore) Export(names []string, destination string) error {
	cfg, err := s.Load()
	if err != nil {
		return err
	}

	wanted := make(map[string]struct{}, len(names))
	for _, name := range names {
		wanted[name] = struct{}{}
	}

	exported := &CriteriaConfiguration{}
	for _, group := range cfg.SavedCriteria {
		if _, ok := wanted[group.Name]; ok {
			exported.SavedCriteria = append(exported.SavedCriteria, group)
		}
	}
	if len(exported.SavedCriteria) == 0 {
		return fmt.Errorf("%w: %v", ErrCriteriaNotFound, names)
	}

	data, err := yaml.Marshal(exported)
	if err != nil {
		return fmt.Errorf("failed to marshal criteria: %w", err)
	}
	if err := os.WriteFile(destination, data, 0o600); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return nil
}

// Import merges groups from the given file into the saved configuration,
// honoring the same conflict rules as Add.
func (s *CriteriaStore) Import(source string, override bool) error {
	data, err := os.ReadFile(source)
	if err != nil {
		return fmt.Errorf("failed to read import file: %w", err)
	}

	imported := &CriteriaConfiguration{}
	if err := yaml.Unmarshal(data, imported); err != nil {
		return fmt.Errorf("%w: %w", ErrCriteriaFileInvalid, err)
	}

	cfg, err := s.Load()
	if err != nil {
		return err
	}

	for _, group := range imported.SavedCriteria {
		for _, rule := range group.Rules {
			if err := cfg.Add(group.Name, rule, override); err != nil {
				return err
			}
		}
	}
	return s.Save(cfg)
}
