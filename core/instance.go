// Copyright (c) 2016-2022 Cristian Măgherușan-Stanciu
// Licensed under the Open Software License version 3.0

package spotnode

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/pkg/errors"
)

// InstanceState is the provider independent state of the instance backing a
// node.
type InstanceState string

const (
	// Unknown describes the instance state cannot be recognized.
	Unknown InstanceState = "Unknown"
	// Starting describes the instance is starting up.
	Starting InstanceState = "Starting"
	// Running describes the instance is running.
	Running InstanceState = "Running"
	// Stopping describes the instance is stopping.
	Stopping InstanceState = "Stopping"
	// Stopped describes the instance is stopped.
	Stopped InstanceState = "Stopped"
	// Terminating is when the instance is in the process of being terminated.
	Terminating InstanceState = "Terminating"
	// Terminated instances are gone for good.
	Terminated InstanceState = "Terminated"
)

// See https://docs.aws.amazon.com/AWSEC2/latest/UserGuide/ec2-instance-lifecycle.html.
var ec2InstanceStates = map[string]InstanceState{
	ec2.InstanceStateNamePending:      Starting,
	ec2.InstanceStateNameRunning:      Running,
	ec2.InstanceStateNameStopping:     Stopping,
	ec2.InstanceStateNameStopped:      Stopped,
	ec2.InstanceStateNameShuttingDown: Terminating,
	ec2.InstanceStateNameTerminated:   Terminated,
}

type instance struct {
	*ec2.Instance
	cloud *Cloud
}

func (i *instance) id() string {
	return aws.StringValue(i.InstanceId)
}

func (i *instance) state() InstanceState {
	if i.State == nil {
		return Unknown
	}
	if s, ok := ec2InstanceStates[aws.StringValue(i.State.Name)]; ok {
		return s
	}
	return Unknown
}

// isAlive is false once the instance started shutting down.
func (i *instance) isAlive() bool {
	switch i.state() {
	case Terminating, Terminated:
		return false
	}
	return true
}

func (i *instance) canTerminate() bool {
	return i.isAlive()
}

func (i *instance) terminate() error {
	log := i.cloud.syslog().WithField("instance", i.id())

	if !i.canTerminate() {
		log.Infof("Can't terminate instance in state %s", i.state())
		return errors.Errorf("can't terminate %s", i.id())
	}

	_, err := i.cloud.connect().TerminateInstances(&ec2.TerminateInstancesInput{
		InstanceIds: []*string{i.InstanceId},
	})

	if err != nil {
		log.WithError(err).Warn("Failed to terminate EC2 instance")
		return errors.Wrapf(err, "cannot terminate instance %s", i.id())
	}

	log.Info("Terminated EC2 instance")
	return nil
}
