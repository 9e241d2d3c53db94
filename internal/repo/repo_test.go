package repo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cablecheck/internal/db"
	"cablecheck/internal/domain"
	"cablecheck/internal/migrate"
	"cablecheck/internal/repo"
)

func newRepo(t *testing.T) (repo.Repo, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	require.NoError(t, migrate.Migrate(ctx, conn))
	return repo.Repo{DB: conn}, ctx
}

func insertDesign(t *testing.T, r repo.Repo, ctx context.Context, d domain.Design) {
	t.Helper()
	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, r.InsertDesignTx(ctx, tx, d))
	require.NoError(t, tx.Commit())
}

func TestDesignPagingAndLookup(t *testing.T) {
	r, ctx := newRepo(t)
	for _, id := range []string{"DESIGN-003", "DESIGN-001", "DESIGN-002"} {
		insertDesign(t, r, ctx, domain.Design{ID: id, CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z"})
	}
	page, err := r.ListDesigns(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "DESIGN-002", page[0].ID)

	n, err := r.CountDesigns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, found, err := r.LookupDesign(ctx, "DESIGN-404")
	require.NoError(t, err)
	assert.False(t, found)
	d, found, err := r.LookupDesign(ctx, "DESIGN-001")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Nil(t, d.Standard)
}

func TestRunsRoundTripAndCursor(t *testing.T) {
	r, ctx := newRepo(t)
	conf := 0.5
	for i, ts := range []string{"2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z", "2024-01-03T00:00:00Z"} {
		tx, err := r.DB.BeginTx(ctx, nil)
		require.NoError(t, err)
		require.NoError(t, r.InsertRunTx(ctx, tx, domain.Run{
			ID:         []string{"a", "b", "c"}[i],
			Kind:       "validate",
			UserInput:  "Validate DESIGN-002",
			Route:      "FETCH_DESIGN",
			DesignID:   "DESIGN-002",
			Attributes: domain.Attributes{"csa": 16.0, "conductor_class": nil},
			Validation: []domain.ValidationItem{
				{Field: "standard", Status: domain.StatusPass, Expected: "IEC 60502-1"},
				{Field: "conductor_class", Status: domain.StatusWarn, Comment: "missing"},
			},
			Confidence:   &conf,
			HITLMode:     true,
			HITLRequired: true,
			Interactions: []domain.Interaction{{Field: "conductor_class", UserResponse: "Class 2"}},
			CreatedAt:    ts,
		}))
		require.NoError(t, tx.Commit())
	}

	run, err := r.GetRun(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 16.0, run.Attributes["csa"])
	assert.Contains(t, run.Attributes, "conductor_class")
	assert.Empty(t, run.MissingAttributes)
	require.Len(t, run.Validation, 2)
	assert.Equal(t, domain.StatusWarn, run.Validation[1].Status)
	assert.Nil(t, run.Reasoning)
	require.NotNil(t, run.Confidence)
	assert.Equal(t, 0.5, *run.Confidence)
	assert.Len(t, run.Interactions, 1)

	first, err := r.ListRuns(ctx, 2, "", "")
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "c", first[0].ID)
	assert.Equal(t, "b", first[1].ID)

	rest, err := r.ListRuns(ctx, 2, "2024-01-01T00:00:00Z", "a")
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "a", rest[0].ID)

	_, err = r.GetRun(ctx, "zzz")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestAPIKeys(t *testing.T) {
	r, ctx := newRepo(t)
	hash := repo.HashAPIKey(" secret ")
	assert.Equal(t, repo.HashAPIKey("secret"), hash)
	require.NoError(t, r.InsertAPIKey(ctx, domain.APIKey{ID: "k1", Subject: "ci", Name: "pipeline", KeyHash: hash}))
	assert.Error(t, r.InsertAPIKey(ctx, domain.APIKey{ID: "k2", KeyHash: hash}))

	key, err := r.GetAPIKeyByHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, "ci", key.Subject)

	keys, err := r.ListAPIKeys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	require.NoError(t, r.DeleteAPIKey(ctx, "k1"))
	assert.ErrorIs(t, r.DeleteAPIKey(ctx, "k1"), repo.ErrNotFound)
	_, err = r.GetAPIKeyByHash(ctx, hash)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}
