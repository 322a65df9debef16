package spotnode

import (
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
)

// All fields are composed of the abbreviation of their method
// This is useful when methods are doing multiple calls to AWS API
type mockEC2 struct {
	ec2iface.EC2API

	mu    sync.Mutex
	calls []string

	// Describe Spot Instance Requests
	dsiro   *ec2.DescribeSpotInstanceRequestsOutput
	dsirerr error

	// Wait Until Spot Instance Request Fulfilled
	wusirferr error

	// Cancel Spot instance request
	csiro   *ec2.CancelSpotInstanceRequestsOutput
	csirerr error

	// Request Spot Instances
	rsii   *ec2.RequestSpotInstancesInput
	rsio   *ec2.RequestSpotInstancesOutput
	rsierr error

	// Describe Instances
	dio   *ec2.DescribeInstancesOutput
	dierr error

	// Terminate Instances
	tio   *ec2.TerminateInstancesOutput
	tierr error

	// Describe Spot Price History
	dspho   *ec2.DescribeSpotPriceHistoryOutput
	dspherr error
}

func (m *mockEC2) record(call string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

func (m *mockEC2) count(call string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, c := range m.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (m *mockEC2) DescribeSpotInstanceRequests(in *ec2.DescribeSpotInstanceRequestsInput) (*ec2.DescribeSpotInstanceRequestsOutput, error) {
	m.record("DescribeSpotInstanceRequests")
	return m.dsiro, m.dsirerr
}

func (m *mockEC2) WaitUntilSpotInstanceRequestFulfilled(in *ec2.DescribeSpotInstanceRequestsInput) error {
	m.record("WaitUntilSpotInstanceRequestFulfilled")
	return m.wusirferr
}

func (m *mockEC2) CancelSpotInstanceRequests(*ec2.CancelSpotInstanceRequestsInput) (*ec2.CancelSpotInstanceRequestsOutput, error) {
	m.record("CancelSpotInstanceRequests")
	return m.csiro, m.csirerr
}

func (m *mockEC2) RequestSpotInstances(in *ec2.RequestSpotInstancesInput) (*ec2.RequestSpotInstancesOutput, error) {
	m.record("RequestSpotInstances")
	m.rsii = in
	return m.rsio, m.rsierr
}

func (m *mockEC2) DescribeInstances(*ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error) {
	m.record("DescribeInstances")
	return m.dio, m.dierr
}

func (m *mockEC2) TerminateInstances(*ec2.TerminateInstancesInput) (*ec2.TerminateInstancesOutput, error) {
	m.record("TerminateInstances")
	return m.tio, m.tierr
}

func (m *mockEC2) DescribeSpotPriceHistory(*ec2.DescribeSpotPriceHistoryInput) (*ec2.DescribeSpotPriceHistoryOutput, error) {
	m.record("DescribeSpotPriceHistory")
	return m.dspho, m.dspherr
}

func testCloud(m *mockEC2) *Cloud {
	return newCloudWithClient("test-cloud", "us-east-1", m)
}

func spotRequestOutput(id, state, instanceID, price string) *ec2.DescribeSpotInstanceRequestsOutput {
	req := &ec2.SpotInstanceRequest{
		SpotInstanceRequestId: aws.String(id),
		State:                 aws.String(state),
	}
	if instanceID != "" {
		req.InstanceId = aws.String(instanceID)
	}
	if price != "" {
		req.SpotPrice = aws.String(price)
	}
	return &ec2.DescribeSpotInstanceRequestsOutput{
		SpotInstanceRequests: []*ec2.SpotInstanceRequest{req},
	}
}

func instanceOutput(id, state string) *ec2.DescribeInstancesOutput {
	return &ec2.DescribeInstancesOutput{
		Reservations: []*ec2.Reservation{
			{
				Instances: []*ec2.Instance{
					{
						InstanceId:   aws.String(id),
						InstanceType: aws.String("m5.large"),
						State: &ec2.InstanceState{
							Name: aws.String(state),
						},
						Placement: &ec2.Placement{
							AvailabilityZone: aws.String("us-east-1a"),
						},
					},
				},
			},
		},
	}
}

func awsError(code string) error {
	return awserr.New(code, "mocked "+code, nil)
}
