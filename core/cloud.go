// Copyright (c) 2016-2022 Cristian Măgherușan-Stanciu
// Licensed under the Open Software License version 3.0

package spotnode

import (
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// CloudTagKey is set on every spot request created through a Cloud, its
	// value being the cloud name.
	CloudTagKey = "spotnode-cloud"

	errCodeInstanceNotFound    = "InvalidInstanceID.NotFound"
	errCodeSpotRequestNotFound = "InvalidSpotInstanceRequestID.NotFound"
)

// Cloud is the connection to the EC2 region the spot nodes are launched in.
// Nodes keep a reference to it and use it for all their API calls.
type Cloud struct {
	Name   string
	Region string

	mu       sync.Mutex
	services connections

	logOnce sync.Once
	log     *logrus.Entry
}

// NewCloud returns a Cloud that connects to the given region on first use.
func NewCloud(name, region string) *Cloud {
	return &Cloud{Name: name, Region: region}
}

func newCloudWithClient(name, region string, client ec2iface.EC2API) *Cloud {
	c := NewCloud(name, region)
	c.services.ec2 = client
	c.services.region = region
	return c
}

func (c *Cloud) syslog() *logrus.Entry {
	c.logOnce.Do(func() {
		c.log = logger.WithFields(logrus.Fields{"cloud": c.Name, "region": c.Region})
	})
	return c.log
}

func (c *Cloud) connect() ec2iface.EC2API {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.services.ec2 == nil {
		c.services.connect(c.Region)
	}
	return c.services.ec2
}

// describeSpotRequest returns nil without an error when EC2 doesn't know about
// the request.
func (c *Cloud) describeSpotRequest(id string) (*spotInstanceRequest, error) {
	resp, err := c.connect().DescribeSpotInstanceRequests(&ec2.DescribeSpotInstanceRequestsInput{
		SpotInstanceRequestIds: []*string{aws.String(id)},
	})

	if err != nil {
		if hasErrorCode(err, errCodeSpotRequestNotFound) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "cannot describe spot request %s", id)
	}

	if resp == nil || len(resp.SpotInstanceRequests) == 0 {
		return nil, nil
	}

	return &spotInstanceRequest{
		SpotInstanceRequest: resp.SpotInstanceRequests[0],
		cloud:               c,
	}, nil
}

// describeInstance returns nil without an error when the instance is gone.
func (c *Cloud) describeInstance(id string) (*instance, error) {
	resp, err := c.connect().DescribeInstances(&ec2.DescribeInstancesInput{
		InstanceIds: []*string{aws.String(id)},
	})

	if err != nil {
		if hasErrorCode(err, errCodeInstanceNotFound) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "cannot describe instance %s", id)
	}

	if resp == nil {
		return nil, nil
	}

	for _, rsv := range resp.Reservations {
		for _, inst := range rsv.Instances {
			if inst != nil && aws.StringValue(inst.InstanceId) == id {
				return &instance{Instance: inst, cloud: c}, nil
			}
		}
	}
	return nil, nil
}

// RequestSpotNode places a one-time spot request for a new node and returns
// the node built around it. The instance ID is resolved later, once the
// request is fulfilled.
func (c *Cloud) RequestSpotNode(conf NodeConfig, spec SpotLaunchSpec, scheduler Scheduler) (*SpotAgentNode, error) {
	input, err := spec.requestInput(c.Name, conf.Tags)
	if err != nil {
		return nil, err
	}

	resp, err := c.connect().RequestSpotInstances(input)
	if err != nil {
		c.syslog().WithError(err).Error("cannot request EC2 spot instance")
		return nil, errors.Wrap(err, "cannot request EC2 spot instance")
	}

	if len(resp.SpotInstanceRequests) == 0 {
		return nil, errors.New("EC2 returned no spot instance request")
	}

	req := resp.SpotInstanceRequests[0]
	c.syslog().Infof("Created spot request %s, state %s",
		aws.StringValue(req.SpotInstanceRequestId), aws.StringValue(req.State))

	conf.SpotRequestID = aws.StringValue(req.SpotInstanceRequestId)
	conf.InstanceID = aws.StringValue(req.InstanceId)

	return NewSpotAgentNode(conf, c, scheduler)
}

func hasErrorCode(err error, code string) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return aerr.Code() == code
	}
	return false
}
