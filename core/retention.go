// Copyright (c) 2016-2022 Cristian Măgherușan-Stanciu
// Licensed under the Open Software License version 3.0

package spotnode

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// idleExpired is true when the node has been idle for at least its idle
// termination timeout. A zero timeout keeps the node forever.
func (n *SpotAgentNode) idleExpired(now time.Time) bool {
	if n.idleTimeout <= 0 {
		return false
	}
	since := n.IdleSince()
	return !since.IsZero() && now.Sub(since) >= n.idleTimeout
}

// RetentionSweeper periodically terminates the registered nodes that stayed
// idle for too long.
type RetentionSweeper struct {
	registry *NodeRegistry
	cron     *cron.Cron
	now      func() time.Time
}

// NewRetentionSweeper parses the cron schedule, which accepts the standard
// five field format as well as descriptors like "@every 1m".
func NewRetentionSweeper(registry *NodeRegistry, schedule string) (*RetentionSweeper, error) {
	s := &RetentionSweeper{
		registry: registry,
		cron:     cron.New(),
		now:      time.Now,
	}

	if _, err := s.cron.AddFunc(schedule, func() { s.sweep(s.now()) }); err != nil {
		logger.Println(err)
		return nil, errors.Wrapf(err, "invalid sweep schedule %q", schedule)
	}

	return s, nil
}

// Start runs the sweeps in the background.
func (s *RetentionSweeper) Start() {
	s.cron.Start()
}

// Stop prevents further sweeps, the returned context is done once a running
// sweep completes.
func (s *RetentionSweeper) Stop() context.Context {
	return s.cron.Stop()
}

// sweep returns the number of nodes it terminated.
func (s *RetentionSweeper) sweep(now time.Time) int {
	terminated := 0

	for n := range s.registry.Nodes() {
		if !n.idleExpired(now) {
			continue
		}

		n.syslog().Infof("Idle since %s, terminating", n.IdleSince().Format(time.RFC3339))
		if err := n.Terminate(); err != nil {
			n.syslog().WithError(err).Warn("Idle node termination failed")
			continue
		}
		terminated++
	}

	debug.Debugf("Sweep terminated %d nodes, %d left", terminated, s.registry.Count())
	return terminated
}
