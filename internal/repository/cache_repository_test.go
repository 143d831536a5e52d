package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/convocation-rfid-api/pkg/errors"
)

func TestCacheRepositoryKeyPrefix(t *testing.T) {
	assert.Equal(t, "rfid:dash:stats", NewCacheRepository(nil, "rfid", nil).key("dash:stats"))
	assert.Equal(t, "dash:stats", NewCacheRepository(nil, "", nil).key("dash:stats"))
}

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, "rfid", nil)
	ctx := context.Background()

	var dest map[string]int
	assert.ErrorIs(t, repo.Get(ctx, "dash:stats", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "dash:stats", map[string]int{"total": 1}, time.Minute))
	assert.NoError(t, repo.DeleteByPattern(ctx, "dash:*"))
	assert.NoError(t, repo.Close())
}
