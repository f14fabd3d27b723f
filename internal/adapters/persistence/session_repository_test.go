package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/farmtown-go/internal/adapters/persistence"
	"github.com/andrescamacho/farmtown-go/internal/application/common"
	"github.com/andrescamacho/farmtown-go/internal/domain/shared"
	"github.com/andrescamacho/farmtown-go/test/helpers"
)

var sessionTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newSessionRepo(t *testing.T) (*persistence.GormSessionRepository, *shared.MockClock) {
	t.Helper()
	clock := shared.NewMockClock(sessionTime)
	return persistence.NewGormSessionRepository(helpers.NewTestDB(t), clock), clock
}

func TestFindByPlayerNameMissingReturnsNil(t *testing.T) {
	repo, _ := newSessionRepo(t)

	// First-run lookup on an empty database: missing is not an error,
	// callers create the session on the nil path.
	session, err := repo.FindByPlayerName(context.Background(), "alice")
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestSaveNewSessionAssignsIDAndCreatedAt(t *testing.T) {
	repo, _ := newSessionRepo(t)
	ctx := context.Background()

	session := &common.Session{PlayerName: "alice", Token: "tok-1"}
	require.NoError(t, repo.Save(ctx, session))

	assert.NotZero(t, session.ID)
	assert.Equal(t, sessionTime, session.CreatedAt)

	found, err := repo.FindByPlayerName(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, session.ID, found.ID)
	assert.Equal(t, "alice", found.PlayerName)
	assert.Equal(t, "tok-1", found.Token)
}

func TestSaveUpdatesExistingSessionToken(t *testing.T) {
	repo, _ := newSessionRepo(t)
	ctx := context.Background()

	session := &common.Session{PlayerName: "alice", Token: "tok-1"}
	require.NoError(t, repo.Save(ctx, session))

	session.Token = "tok-2"
	require.NoError(t, repo.Save(ctx, session))

	found, err := repo.FindByPlayerName(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, session.ID, found.ID)
	assert.Equal(t, "tok-2", found.Token)
	assert.Equal(t, sessionTime, found.CreatedAt)
}

func TestFindByPlayerNameIsScopedToPlayer(t *testing.T) {
	repo, _ := newSessionRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &common.Session{PlayerName: "alice", Token: "tok-a"}))
	require.NoError(t, repo.Save(ctx, &common.Session{PlayerName: "bob", Token: "tok-b"}))

	found, err := repo.FindByPlayerName(ctx, "bob")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "tok-b", found.Token)
}

func TestTouchUpdatesLastActive(t *testing.T) {
	repo, clock := newSessionRepo(t)
	ctx := context.Background()

	session := &common.Session{PlayerName: "alice", Token: "tok-1"}
	require.NoError(t, repo.Save(ctx, session))

	clock.Advance(5 * time.Minute)
	require.NoError(t, repo.Touch(ctx, session.ID))

	found, err := repo.FindByPlayerName(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.NotNil(t, found.LastActive)
	assert.Equal(t, sessionTime.Add(5*time.Minute), *found.LastActive)
}
