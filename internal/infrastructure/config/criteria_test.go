package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evg-tools/greenbase/internal/domain"
)

func requiredRule(tasks ...string) domain.Criterion {
	return domain.Criterion{
		BuildVariantRegex: []string{".*-required$"},
		SuccessfulTasks:   tasks,
	}
}

func tempStore(t *testing.T) *CriteriaStore {
	t.Helper()
	return NewCriteriaStore(filepath.Join(t.TempDir(), "greenbase", "criteria.yml"))
}

func TestCriteriaStore_Load_MissingFileIsEmpty(t *testing.T) {
	store := tempStore(t)

	cfg, err := store.Load()

	require.NoError(t, err)
	assert.Empty(t, cfg.SavedCriteria)
}

func TestCriteriaStore_Load_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "criteria.yml")
	require.NoError(t, os.WriteFile(path, []byte("saved_criteria: [unbalanced\n"), 0o600))
	store := NewCriteriaStore(path)

	_, err := store.Load()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCriteriaFileInvalid)
}

func TestCriteriaStore_AddRuleAndLookup(t *testing.T) {
	store := tempStore(t)
	rule := requiredRule("compile", "unit_tests")

	require.NoError(t, store.AddRule("nightly", rule, false))

	rules, err := store.Lookup("nightly")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, rule, rules[0])
}

func TestCriteriaStore_Lookup_UnknownName(t *testing.T) {
	store := tempStore(t)
	require.NoError(t, store.AddRule("nightly", requiredRule("compile"), false))

	_, err := store.Lookup("weekly")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCriteriaNotFound)
}

func TestCriteriaStore_AddRule_InvalidRuleRejected(t *testing.T) {
	store := tempStore(t)

	err := store.AddRule("nightly", domain.Criterion{BuildVariantRegex: []string{".*"}}, false)

	require.Error(t, err)
	assert.True(t, domain.IsConfigurationError(err))
}

func TestCriteriaStore_AddRule_IdenticalRuleIsIdempotent(t *testing.T) {
	store := tempStore(t)
	rule := requiredRule("compile")

	require.NoError(t, store.AddRule("nightly", rule, false))
	require.NoError(t, store.AddRule("nightly", rule, false))

	rules, err := store.Lookup("nightly")
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestCriteriaStore_AddRule_ConflictWithoutOverride(t *testing.T) {
	store := tempStore(t)
	require.NoError(t, store.AddRule("nightly", requiredRule("compile"), false))

	err := store.AddRule("nightly", requiredRule("compile", "lint"), false)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCriteriaConflict)
}

func TestCriteriaStore_AddRule_OverrideReplaces(t *testing.T) {
	store := tempStore(t)
	require.NoError(t, store.AddRule("nightly", requiredRule("compile"), false))

	replacement := requiredRule("compile", "lint")
	require.NoError(t, store.AddRule("nightly", replacement, true))

	rules, err := store.Lookup("nightly")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, replacement, rules[0])
}

func TestCriteriaStore_AddRule_DistinctVariantsCoexist(t *testing.T) {
	store := tempStore(t)
	require.NoError(t, store.AddRule("nightly", requiredRule("compile"), false))

	other := domain.Criterion{
		BuildVariantRegex: []string{"^linux-.*"},
		SuccessfulTasks:   []string{"lint"},
	}
	require.NoError(t, store.AddRule("nightly", other, false))

	rules, err := store.Lookup("nightly")
	require.NoError(t, err)
	assert.Len(t, rules, 2)
}

func TestCriteriaStore_SaveLoadRoundtrip(t *testing.T) {
	store := tempStore(t)
	rule := domain.Criterion{
		Name:              "strict",
		BuildVariantRegex: []string{".*-required$", "^enterprise-.*"},
		SuccessfulTasks:   []string{"compile"},
		ActiveTasks:       []string{"push"},
		SuccessThreshold:  0.95,
		RunThreshold:      0.5,
		Missing:           domain.MissingFails,
	}
	require.NoError(t, store.AddRule("release", rule, false))

	reloaded, err := NewCriteriaStore(store.path).Lookup("release")

	require.NoError(t, err)
	require.Len(t, reloaded, 1)
	assert.Equal(t, rule, reloaded[0])
}

func TestCriteriaStore_Groups(t *testing.T) {
	store := tempStore(t)
	require.NoError(t, store.AddRule("nightly", requiredRule("compile"), false))
	require.NoError(t, store.AddRule("weekly", requiredRule("full_suite"), false))

	groups, err := store.Groups()

	require.NoError(t, err)
	require.Len(t, groups, 2)
	names := []string{groups[0].Name, groups[1].Name}
	assert.ElementsMatch(t, []string{"nightly", "weekly"}, names)
}

func TestCriteriaStore_ExportImport(t *testing.T) {
	source := tempStore(t)
	require.NoError(t, source.AddRule("nightly", requiredRule("compile"), false))
	require.NoError(t, source.AddRule("weekly", requiredRule("full_suite"), false))

	exportFile := filepath.Join(t.TempDir(), "export.yml")
	require.NoError(t, source.Export([]string{"nightly"}, exportFile))

	dest := tempStore(t)
	require.NoError(t, dest.Import(exportFile, false))

	rules, err := dest.Lookup("nightly")
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	_, err = dest.Lookup("weekly")
	assert.ErrorIs(t, err, ErrCriteriaNotFound, "only exported groups travel")
}

func TestCriteriaStore_Export_UnknownNames(t *testing.T) {
	store := tempStore(t)
	require.NoError(t, store.AddRule("nightly", requiredRule("compile"), false))

	err := store.Export([]string{"weekly"}, filepath.Join(t.TempDir(), "export.yml"))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCriteriaNotFound)
}

func TestCriteriaStore_Import_ConflictHonorsOverride(t *testing.T) {
	source := tempStore(t)
	require.NoError(t, source.AddRule("nightly", requiredRule("compile", "lint"), false))
	exportFile := filepath.Join(t.TempDir(), "export.yml")
	require.NoError(t, source.Export([]string{"nightly"}, exportFile))

	dest := tempStore(t)
	require.NoError(t, dest.AddRule("nightly", requiredRule("compile"), false))

	err := dest.Import(exportFile, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCriteriaConflict)

	require.NoError(t, dest.Import(exportFile, true))
	rules, err := dest.Lookup("nightly")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, []string{"compile", "lint"}, rules[0].SuccessfulTasks)
}
