package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	options "github.com/kart-io/docqa/pkg/options/redis"
)

func TestNewWithContext_RejectsBadOptions(t *testing.T) {
	_, err := NewWithContext(context.Background(), nil)
	require.EqualError(t, err, "redis: nil options")

	opts := options.NewOptions()
	opts.Host = ""
	opts.Port = 0
	_, err = NewWithContext(context.Background(), opts)
	assert.ErrorContains(t, err, "invalid options")
}

func TestNewWithContext_Unreachable(t *testing.T) {
	opts := options.NewOptions()
	opts.Port = 1
	opts.MaxRetries = -1
	opts.DialTimeout = 100 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewWithContext(ctx, opts)
	assert.ErrorContains(t, err, "redis: ping")
}

func TestClient_Live(t *testing.T) {
	opts := options.NewOptions()
	opts.Database = 15

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	client, err := NewWithContext(ctx, opts)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	defer client.Close()

	assert.Equal(t, opts.Addr(), client.Addr())
	assert.NoError(t, client.Check(context.Background()))
	assert.NotNil(t, client.Client())
}
