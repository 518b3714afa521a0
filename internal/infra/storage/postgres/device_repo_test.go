package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/mpath/internal/mpath"
)

func TestDeviceFromIdentity(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	d := DeviceFromIdentity(mpath.Identity{
		Name:      "nvme1n2",
		Subsystem: 1,
		NSID:      2,
		UUID:      "u",
		Paths:     []string{"nvme1c1n2", "nvme1c2n2"},
	}, now)

	assert.Equal(t, "nvme1n2", d.Name)
	assert.Equal(t, int64(2), d.NSID)
	assert.Equal(t, time.UTC, d.PublishedAt.Location())
	assert.Equal(t, []string{"nvme1c1n2", "nvme1c2n2"}, d.PathList())

	assert.Nil(t, Device{}.PathList())
}

// Runs against a real database when MPATH_TEST_DATABASE_URL is set.
func TestDeviceRepo_Live(t *testing.T) {
	url := os.Getenv("MPATH_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("MPATH_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := NewDB(ctx, Config{URL: url})
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	require.NoError(t, db.Migrate(ctx))

	repo := NewDeviceRepo(db)
	id := mpath.Identity{Name: "nvme9n1", Subsystem: 9, NSID: 1, UUID: "test", Paths: []string{"nvme9c1n1"}}

	require.NoError(t, repo.Publish(ctx, id))
	t.Cleanup(func() { _ = repo.Delete(context.Background(), id.Name) })

	got, err := repo.Get(ctx, id.Name)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"nvme9c1n1"}, got.PathList())

	id.Paths = append(id.Paths, "nvme9c2n1")
	require.NoError(t, repo.Publish(ctx, id))
	got, err = repo.Get(ctx, id.Name)
	require.NoError(t, err)
	assert.Len(t, got.PathList(), 2)

	require.NoError(t, repo.Unpublish(ctx, id.Name))
	got, err = repo.Get(ctx, id.Name)
	require.NoError(t, err)
	assert.Nil(t, got)
}
