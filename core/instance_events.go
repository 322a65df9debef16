// Copyright (c) 2016-2022 Cristian Măgherușan-Stanciu
// Licensed under the Open Software License version 3.0

package spotnode

import (
	"encoding/json"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/pkg/errors"
)

const (
	// InstanceStateChangeNotificationMessage store detail-type of the CloudWatch Event for
	// the Amazon EC2 State Change Events
	InstanceStateChangeNotificationMessage = "EC2 Instance State-change Notification"

	// InstanceStateChangeNotificationCode store the 3 letter code used to identify
	// the Amazon EC2 State Change Events
	InstanceStateChangeNotificationCode = "ISC"

	// SpotInstanceInterruptionWarningMessage store detail-type of the CloudWatch Event for
	// Amazon EC2 Spot Instance Interruption Events
	SpotInstanceInterruptionWarningMessage = "EC2 Spot Instance Interruption Warning"

	// SpotInstanceInterruptionWarningCode store the 3 letter code used to identify
	// Amazon EC2 Spot Instance Interruption Events
	SpotInstanceInterruptionWarningCode = "SII"
)

var errUnsupportedEvent = errors.New("unsupported event")

// instanceData represents JSON structure of the Detail property of CloudWatch event when a spot instance is terminated
// Reference = https://docs.aws.amazon.com/AWSEC2/latest/UserGuide/spot-interruptions.html#spot-instance-termination-notices
type instanceData struct {
	InstanceID     *string `json:"instance-id"`
	InstanceAction *string `json:"instance-action"`
	State          *string `json:"state"`
}

// returns the event type code, instance ID, State or an error
func parseEventData(event events.CloudWatchEvent) (string, *string, *string, error) {
	var detailData instanceData

	if err := json.Unmarshal(event.Detail, &detailData); err != nil {
		logger.Println(err.Error())
		return "", nil, nil, errors.Wrap(err, "invalid event detail")
	}

	switch event.DetailType {
	case InstanceStateChangeNotificationMessage:
		if detailData.InstanceID != nil && detailData.State != nil {
			return InstanceStateChangeNotificationCode, detailData.InstanceID, detailData.State, nil
		}
	case SpotInstanceInterruptionWarningMessage:
		if detailData.InstanceAction != nil && *detailData.InstanceAction != "" {
			return SpotInstanceInterruptionWarningCode, detailData.InstanceID, nil, nil
		}
	}

	logger.Printf("Ignoring event: %+v", event)
	return "", nil, nil, errUnsupportedEvent
}

// EventHandler tears nodes down when their spot instances get interrupted or
// terminated outside of the scheduler's control.
type EventHandler struct {
	cloud    *Cloud
	registry *NodeRegistry
}

// NewEventHandler returns a handler acting on the nodes of the registry. When
// the instance doesn't back any registered node the handler rebuilds the node
// from the instance's spot request, so the request still gets cancelled.
func NewEventHandler(cloud *Cloud, registry *NodeRegistry) *EventHandler {
	if registry == nil {
		registry = NewNodeRegistry()
	}
	return &EventHandler{cloud: cloud, registry: registry}
}

// HandleEvent processes a CloudWatch event. Events not related to spot nodes
// are ignored.
func (h *EventHandler) HandleEvent(event events.CloudWatchEvent) error {
	code, instanceID, state, err := parseEventData(event)
	if err != nil {
		if errors.Is(err, errUnsupportedEvent) {
			return nil
		}
		return err
	}

	id := aws.StringValue(instanceID)
	if id == "" {
		return nil
	}
	log := h.cloud.syslog().WithField("instance", id)

	switch code {
	case SpotInstanceInterruptionWarningCode:
		log.Info("Spot instance interruption warning received")
	case InstanceStateChangeNotificationCode:
		s := aws.StringValue(state)
		if s != ec2.InstanceStateNameShuttingDown && s != ec2.InstanceStateNameTerminated {
			debug.Debugf("Ignoring state change of %s to %s", id, s)
			return nil
		}
		log.Infof("Instance changed state to %s", s)
	}

	node, err := h.nodeForInstance(id)
	if err != nil {
		return err
	}
	if node == nil {
		log.Info("Instance doesn't back any spot node, ignoring it")
		return nil
	}

	return node.Terminate()
}

func (h *EventHandler) nodeForInstance(id string) (*SpotAgentNode, error) {
	if node := h.registry.FindByInstanceID(id); node != nil {
		return node, nil
	}

	inst, err := h.cloud.describeInstance(id)
	if err != nil {
		return nil, err
	}
	if inst == nil || aws.StringValue(inst.SpotInstanceRequestId) == "" {
		return nil, nil
	}

	return NewSpotAgentNode(NodeConfig{
		SpotRequestID: aws.StringValue(inst.SpotInstanceRequestId),
		InstanceID:    id,
		Description:   aws.StringValue(inst.InstanceType),
	}, h.cloud, h.registry)
}
