// Package discovery implements the best-effort one-shot GATT service
// discovery helper (§5's timeouts, §4's Discoverer capability): one
// combined connect+discovery budget of ConnectTimeout+DiscoveryTimeout
// (8s) bounds the whole attempt; the connect and discovery phases do not
// get deadlines of their own. On timeout the attempt is reported as
// partial.
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srgg/bleobservatory/internal/adapter"
)

// ConnectTimeout and DiscoveryTimeout are the fixed §5 budgets.
const (
	ConnectTimeout   = 5 * time.Second
	DiscoveryTimeout = 3 * time.Second
)

// Result is the outcome of one discovery attempt. Partial is true
// when a timeout or a discovery error cut the attempt short; Services
// still holds whatever the Discoverer returned before that happened.
type Result struct {
	MAC      string
	Services []string
	Partial  bool
}

// Run performs one best-effort discovery against d for mac. The
// underlying Discoverer is expected to treat ctx cancellation as an
// instruction to disconnect; Run itself only enforces the combined
// connect+discovery budget and classifies the outcome.
func Run(ctx context.Context, d adapter.Discoverer, mac string, logger *logrus.Logger) Result {
	if logger == nil {
		logger = logrus.New()
	}

	budget := ConnectTimeout + DiscoveryTimeout
	opCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type outcome struct {
		services []string
		err      error
	}
	done := make(chan outcome, 1)
	go func() {
		services, err := d.DiscoverServices(opCtx, mac)
		done <- outcome{services: services, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			logger.WithField("mac", mac).WithError(o.err).Debug("service discovery failed")
			return Result{MAC: mac, Services: o.services, Partial: true}
		}
		return Result{MAC: mac, Services: o.services}
	case <-opCtx.Done():
		logger.WithField("mac", mac).Debug("service discovery timed out, using partial result")
		return Result{MAC: mac, Partial: true}
	}
}

// RunForAll performs discovery against every MAC in macs, sequentially
// (a shared adapter generally supports one outstanding connection).
func RunForAll(ctx context.Context, d adapter.Discoverer, macs []string, logger *logrus.Logger) ([]Result, error) {
	if d == nil {
		return nil, fmt.Errorf("discovery: adapter does not implement Discoverer")
	}
	out := make([]Result, 0, len(macs))
	for _, mac := range macs {
		out = append(out, Run(ctx, d, mac, logger))
	}
	return out, nil
}
