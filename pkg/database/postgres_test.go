package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/convocation-rfid-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "rfid", Password: "p@ss word", Name: "convocation", SSLMode: "disable"})
	assert.Equal(t, "postgres://rfid:p%40ss%20word@db:5432/convocation?application_name=convocation-rfid-api&sslmode=disable", dsn)
}

func TestPingWithRetryRecovers(t *testing.T) {
	calls := 0
	ping := func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}

	require.NoError(t, pingWithRetry(context.Background(), 5, time.Millisecond, ping, zap.NewNop()))
	assert.Equal(t, 3, calls)
}

func TestPingWithRetryGivesUp(t *testing.T) {
	down := errors.New("connection refused")
	calls := 0
	err := pingWithRetry(context.Background(), 2, time.Millisecond, func(context.Context) error {
		calls++
		return down
	}, zap.NewNop())

	assert.ErrorIs(t, err, down)
	assert.Equal(t, 2, calls)
}

func TestPingWithRetryHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pingWithRetry(ctx, 3, time.Hour, func(context.Context) error { return errors.New("down") }, zap.NewNop())
	assert.ErrorIs(t, err, context.Canceled)
}
