package spotnode

import (
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	ec2instancesinfo "github.com/cristim/ec2-instances-info"
)

const spotPriceHistoryWindow = time.Hour

// Report describes the node, its spot request and instance in a human
// readable form. Missing information is reported as such, Report never fails.
func (n *SpotAgentNode) Report(data *ec2instancesinfo.InstanceData) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Node:          %s\n", n.name)
	fmt.Fprintf(&b, "Type:          %s\n", n.DisplayName())
	fmt.Fprintf(&b, "Spot request:  %s\n", n.spotRequestID)

	req, err := n.cloud.describeSpotRequest(n.spotRequestID)
	switch {
	case err != nil:
		fmt.Fprintf(&b, "Request state: unavailable (%s)\n", err)
	case req == nil:
		fmt.Fprintf(&b, "Request state: not found\n")
	default:
		n.cacheInstanceID(req.instanceID())
		status := ""
		if req.Status != nil {
			status = aws.StringValue(req.Status.Code)
		}
		fmt.Fprintf(&b, "Request state: %s (%s)\n", aws.StringValue(req.State), status)
		if req.isHoldingRequest() {
			fmt.Fprintf(&b, "               waiting for capacity\n")
		}
		fmt.Fprintf(&b, "Pricing:       %s\n", formatSpotType(req.maxBidPrice()))
	}

	instanceID := n.InstanceID()
	if instanceID == "" {
		fmt.Fprintf(&b, "Instance:      none\n")
		return b.String()
	}

	inst, err := n.cloud.describeInstance(instanceID)
	if err != nil || inst == nil {
		fmt.Fprintf(&b, "Instance:      %s (not found)\n", instanceID)
		return b.String()
	}

	instanceType := aws.StringValue(inst.InstanceType)
	fmt.Fprintf(&b, "Instance:      %s (%s)\n", instanceID, inst.state())
	fmt.Fprintf(&b, "Instance type: %s\n", instanceType)

	if info, ok := lookupInstanceType(data, n.cloud.Region, instanceType); ok {
		fmt.Fprintf(&b, "Capacity:      %d vCPU, %.1f GiB\n", info.vCPU, info.memory)
		fmt.Fprintf(&b, "On-demand:     $%.4f/h\n", info.onDemand)
	}

	if inst.Placement == nil || inst.Placement.AvailabilityZone == nil {
		return b.String()
	}

	prices := spotPrices{cloud: n.cloud}
	if err := prices.fetch(defaultProductDescription, spotPriceHistoryWindow,
		inst.Placement.AvailabilityZone, []*string{inst.InstanceType}); err != nil {
		return b.String()
	}

	if avg, err := prices.average(*inst.Placement.AvailabilityZone, instanceType); err == nil {
		fmt.Fprintf(&b, "Spot price:    $%.4f/h (last %s average in %s)\n",
			avg, spotPriceHistoryWindow, *inst.Placement.AvailabilityZone)
	}

	return b.String()
}
