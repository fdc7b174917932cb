package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stubDiscoverer struct {
	services []string
	err      error
	delay    time.Duration
}

func (s stubDiscoverer) DiscoverServices(ctx context.Context, mac string) ([]string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.services, s.err
}

func TestRunSuccess(t *testing.T) {
	d := stubDiscoverer{services: []string{"180D", "180F"}}
	res := Run(context.Background(), d, "AA:BB:CC:DD:EE:FF", nil)
	assert.False(t, res.Partial)
	assert.Equal(t, []string{"180D", "180F"}, res.Services)
}

func TestRunError(t *testing.T) {
	d := stubDiscoverer{err: errors.New("gatt error")}
	res := Run(context.Background(), d, "AA:BB:CC:DD:EE:FF", nil)
	assert.True(t, res.Partial)
	assert.Empty(t, res.Services)
}

func TestRunTimeout(t *testing.T) {
	d := stubDiscoverer{delay: 200 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	res := Run(ctx, d, "AA:BB:CC:DD:EE:FF", nil)
	assert.True(t, res.Partial)
}
