// Copyright (c) 2016-2022 Cristian Măgherușan-Stanciu
// Licensed under the Open Software License version 3.0

package spotnode

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// DisplayName is how spot backed nodes are labeled in the scheduler.
	DisplayName = "Amazon EC2 Spot Instance"

	defaultSSHPort      = 22
	defaultNumExecutors = 1
)

// Tag is a name/value pair attached to the node and to its spot request.
type Tag struct {
	Name  string
	Value string
}

// NodeConfig holds everything the scheduler knows about a node when it
// provisions it.
type NodeConfig struct {
	Name          string
	SpotRequestID string
	// InstanceID may be left empty, it is looked up on demand.
	InstanceID             string
	Description            string
	RemoteFS               string
	SSHPort                int
	NumExecutors           int
	Labels                 string
	Tags                   []Tag
	IdleTerminationMinutes int
}

// SpotAgentNode is the scheduler side representative of a build agent running
// on an EC2 spot instance.
type SpotAgentNode struct {
	name          string
	spotRequestID string
	description   string
	remoteFS      string
	sshPort       int
	numExecutors  int
	labels        string
	tags          []Tag
	idleTimeout   time.Duration

	cloud     *Cloud
	scheduler Scheduler

	mu         sync.Mutex
	instanceID string
	idleSince  time.Time
}

// NewSpotAgentNode builds a node for an existing spot request. The scheduler
// is the one the node gets removed from on termination and may be nil.
func NewSpotAgentNode(conf NodeConfig, cloud *Cloud, scheduler Scheduler) (*SpotAgentNode, error) {
	if conf.SpotRequestID == "" {
		return nil, errors.New("missing spot request ID")
	}
	if cloud == nil {
		return nil, errors.New("missing cloud")
	}

	n := &SpotAgentNode{
		name:          conf.Name,
		spotRequestID: conf.SpotRequestID,
		instanceID:    conf.InstanceID,
		description:   conf.Description,
		remoteFS:      conf.RemoteFS,
		sshPort:       conf.SSHPort,
		numExecutors:  conf.NumExecutors,
		labels:        conf.Labels,
		tags:          conf.Tags,
		idleTimeout:   time.Duration(conf.IdleTerminationMinutes) * time.Minute,
		cloud:         cloud,
		scheduler:     scheduler,
	}

	if n.name == "" {
		id := conf.InstanceID
		if id == "" {
			id = conf.SpotRequestID
		}
		n.name = fmt.Sprintf("%s (%s)", conf.Description, id)
	}
	if n.sshPort == 0 {
		n.sshPort = defaultSSHPort
	}
	if n.numExecutors == 0 {
		n.numExecutors = defaultNumExecutors
	}

	return n, nil
}

func (n *SpotAgentNode) syslog() *logrus.Entry {
	return n.cloud.syslog().WithFields(logrus.Fields{
		"node":         n.name,
		"spot-request": n.spotRequestID,
	})
}

// Name is the unique name of the node in the scheduler.
func (n *SpotAgentNode) Name() string { return n.name }

// SpotRequestID returns the ID of the spot request backing the node.
func (n *SpotAgentNode) SpotRequestID() string { return n.spotRequestID }

func (n *SpotAgentNode) Description() string { return n.description }
func (n *SpotAgentNode) RemoteFS() string    { return n.remoteFS }
func (n *SpotAgentNode) SSHPort() int        { return n.sshPort }
func (n *SpotAgentNode) NumExecutors() int   { return n.numExecutors }
func (n *SpotAgentNode) Labels() []string    { return strings.Fields(n.labels) }
func (n *SpotAgentNode) Tags() []Tag         { return n.tags }
func (n *SpotAgentNode) Cloud() *Cloud       { return n.cloud }

// DisplayName returns the node type shown in the scheduler.
func (n *SpotAgentNode) DisplayName() string { return DisplayName }

// InstanceID returns the ID of the instance fulfilling the spot request. It
// is looked up in EC2 until the request is fulfilled and cached from then
// on. An empty string means there's no instance yet, or the lookup failed.
func (n *SpotAgentNode) InstanceID() string {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.instanceID != "" {
		return n.instanceID
	}

	req, err := n.cloud.describeSpotRequest(n.spotRequestID)
	if err != nil {
		n.syslog().WithError(err).Warn("Failed to resolve instance ID")
		return ""
	}

	if req != nil {
		n.instanceID = req.instanceID()
	}
	return n.instanceID
}

func (n *SpotAgentNode) cachedInstanceID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.instanceID
}

func (n *SpotAgentNode) cacheInstanceID(id string) {
	if id == "" {
		return
	}
	n.mu.Lock()
	if n.instanceID == "" {
		n.instanceID = id
	}
	n.mu.Unlock()
}

// SpotType describes the node as a spot instance along with the maximum price
// of its spot request.
func (n *SpotAgentNode) SpotType() string {
	req, err := n.cloud.describeSpotRequest(n.spotRequestID)
	if err != nil {
		n.syslog().WithError(err).Debug("Failed to describe spot request")
		return "Spot"
	}
	if req == nil {
		return "Spot"
	}
	return formatSpotType(req.maxBidPrice())
}

// formatSpotType trims the trailing three digits EC2 pads prices with.
func formatSpotType(price string) string {
	if len(price) <= 3 {
		return "Spot"
	}
	return fmt.Sprintf("Spot (max bid $%s)", price[:len(price)-3])
}

// Terminate removes the node from the scheduler, cancels its spot request and
// terminates the instance if it's still alive. Errors are logged and
// returned, the caller is free to ignore them.
func (n *SpotAgentNode) Terminate() error {
	log := n.syslog()

	if n.scheduler != nil {
		if err := n.scheduler.RemoveNode(n); err != nil {
			if !errors.Is(err, ErrNodeNotFound) {
				log.WithError(err).Warn("Failed to remove node from the scheduler")
				return errors.Wrapf(err, "cannot remove node %s", n.name)
			}
			log.Debug("Node was already removed from the scheduler")
		}
	}

	// A failed cancellation doesn't stop the instance from being terminated,
	// the first error is reported once everything was attempted.
	var cancelErr error

	req, err := n.cloud.describeSpotRequest(n.spotRequestID)
	switch {
	case err != nil:
		log.WithError(err).Warn("Failed to describe spot request")
		cancelErr = err
	case req != nil:
		n.cacheInstanceID(req.instanceID())
		if req.isActive() {
			cancelErr = req.cancel()
		}
	}

	// the request was just described, no need to look it up again
	instanceID := n.cachedInstanceID()
	if instanceID == "" {
		log.Info("Spot request never launched an instance, nothing to terminate")
		return cancelErr
	}
	log = log.WithField("instance", instanceID)

	inst, err := n.cloud.describeInstance(instanceID)
	if err != nil {
		log.WithError(err).Warn("Failed to terminate EC2 instance")
		return firstError(cancelErr, err)
	}

	if inst == nil || !inst.isAlive() {
		// killed externally, nothing left to do
		log.Info("EC2 instance already terminated")
		return cancelErr
	}

	return firstError(cancelErr, inst.terminate())
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// MarkIdle records the time the node ran out of work, unless it was already
// idle.
func (n *SpotAgentNode) MarkIdle(t time.Time) {
	n.mu.Lock()
	if n.idleSince.IsZero() {
		n.idleSince = t
	}
	n.mu.Unlock()
}

// MarkBusy clears the idle marker.
func (n *SpotAgentNode) MarkBusy() {
	n.mu.Lock()
	n.idleSince = time.Time{}
	n.mu.Unlock()
}

// IdleSince returns the zero time for busy nodes.
func (n *SpotAgentNode) IdleSince() time.Time {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.idleSince
}

func (n *SpotAgentNode) String() string {
	return n.name
}
