// Copyright (c) 2016-2022 Cristian Măgherușan-Stanciu
// Licensed under the Open Software License version 3.0

package spotnode

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/pkg/errors"
)

// Status codes of spot requests kept open while waiting for capacity or for
// their constraints to be met.
var holdingRequestStatuses = []string{
	"capacity-not-available",
	"capacity-oversubscribed",
	"price-too-low",
	"not-scheduled-yet",
	"launch-group-constraint",
	"az-group-constraint",
	"placement-group-constraint",
	"constraint-not-fulfillable",
}

type spotInstanceRequest struct {
	*ec2.SpotInstanceRequest
	cloud *Cloud
}

func (s *spotInstanceRequest) id() string {
	return aws.StringValue(s.SpotInstanceRequestId)
}

func (s *spotInstanceRequest) instanceID() string {
	return aws.StringValue(s.InstanceId)
}

// isActive is true for requests that may still launch, or have launched, an
// instance: cancelling them is needed to stop persistent requests from being
// fulfilled again.
func (s *spotInstanceRequest) isActive() bool {
	state := aws.StringValue(s.State)
	return state == ec2.SpotInstanceStateOpen || state == ec2.SpotInstanceStateActive
}

func hasHoldingRequestStatus(status string) bool {
	return itemInSlice(status, holdingRequestStatuses)
}

func (s *spotInstanceRequest) isHoldingRequest() bool {
	return aws.StringValue(s.State) == ec2.SpotInstanceStateOpen &&
		s.Status != nil &&
		hasHoldingRequestStatus(aws.StringValue(s.Status.Code))
}

// maxBidPrice is the price as returned by EC2, e.g. "0.050000", or an empty
// string for requests placed at the on-demand price cap.
func (s *spotInstanceRequest) maxBidPrice() string {
	return aws.StringValue(s.SpotPrice)
}

func (s *spotInstanceRequest) cancel() error {
	log := s.cloud.syslog().WithField("spot-request", s.id())

	_, err := s.cloud.connect().CancelSpotInstanceRequests(&ec2.CancelSpotInstanceRequestsInput{
		SpotInstanceRequestIds: []*string{s.SpotInstanceRequestId},
	})

	if err != nil {
		if hasErrorCode(err, errCodeSpotRequestNotFound) {
			log.Info("Spot request already gone")
			return nil
		}
		log.WithError(err).Warn("Failed to cancel spot request")
		return errors.Wrapf(err, "cannot cancel spot request %s", s.id())
	}

	log.Info("Cancelled spot request")
	return nil
}

// waitForSpotInstance blocks until the request is fulfilled, using the SDK
// waiter, and refreshes the request so that the instance ID is available.
func (s *spotInstanceRequest) waitForSpotInstance() error {
	log := s.cloud.syslog().WithField("spot-request", s.id())
	log.Info("Waiting for spot instance")

	svc := s.cloud.connect()

	params := ec2.DescribeSpotInstanceRequestsInput{
		SpotInstanceRequestIds: []*string{s.SpotInstanceRequestId},
	}

	if err := svc.WaitUntilSpotInstanceRequestFulfilled(&params); err != nil {
		log.WithError(err).Warn("Error waiting for instance")
		return errors.Wrapf(err, "spot request %s was not fulfilled", s.id())
	}

	resp, err := svc.DescribeSpotInstanceRequests(&params)
	if err != nil {
		return errors.Wrapf(err, "cannot describe spot request %s", s.id())
	}
	if len(resp.SpotInstanceRequests) > 0 {
		s.SpotInstanceRequest = resp.SpotInstanceRequests[0]
	}

	log.Infof("Spot request fulfilled by instance %s", s.instanceID())
	return nil
}
