package spotnode

import (
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"gotest.tools/v3/assert"
)

func Test_isHoldingRequest(t *testing.T) {

	statuses := []string{"capacity-not-available",
		"capacity-oversubscribed",
		"price-too-low",
		"not-scheduled-yet",
		"launch-group-constraint",
		"az-group-constraint",
		"placement-group-constraint",
		"constraint-not-fulfillable",
	}

	for _, status := range statuses {
		if !hasHoldingRequestStatus(status) {
			t.Error(status + " should be a holding request")
		}
	}

	statuses = []string{"pending-evaluation", "bad-parameters", "schedule-expired", "fulfilled"}

	for _, status := range statuses {
		if hasHoldingRequestStatus(status) {
			t.Error(status + " should not be a holding request")
		}
	}
}

func Test_isSpotRequestAHoldingRequest(t *testing.T) {

	tests := []struct {
		name     string
		req      spotInstanceRequest
		expected bool
	}{
		{
			req: spotInstanceRequest{
				SpotInstanceRequest: &ec2.SpotInstanceRequest{
					SpotInstanceRequestId: aws.String("aaa"),
					State:                 aws.String("open"),
					Status: &ec2.SpotInstanceStatus{
						Code: aws.String("capacity-not-available"),
					},
				},
			},
			expected: true,
			name:     "Is Holding Request With Capacity Not Available",
		},
		{
			req: spotInstanceRequest{
				SpotInstanceRequest: &ec2.SpotInstanceRequest{
					SpotInstanceRequestId: aws.String("aaa"),
					State:                 aws.String("open"),
				},
			},
			expected: false,
			name:     "Is Holding Request With No Status Information",
		},
		{
			req: spotInstanceRequest{
				SpotInstanceRequest: &ec2.SpotInstanceRequest{
					SpotInstanceRequestId: aws.String("aaa"),
					State:                 aws.String("cancelled"),
					Status: &ec2.SpotInstanceStatus{
						Code: aws.String("capacity-not-available"),
					},
				},
			},
			expected: false,
			name:     "Cancelled Request Is Not Holding",
		},
	}

	for _, test := range tests {
		if test.req.isHoldingRequest() != test.expected {
			if test.expected {
				t.Error(test.name + " should be a holding request")
			} else {
				t.Error(test.name + " should not be a holding request")
			}
		}
	}
}

func Test_isActive(t *testing.T) {
	for state, want := range map[string]bool{
		"open":      true,
		"active":    true,
		"closed":    false,
		"cancelled": false,
		"failed":    false,
	} {
		req := spotInstanceRequest{
			SpotInstanceRequest: &ec2.SpotInstanceRequest{State: aws.String(state)},
		}
		assert.Equal(t, req.isActive(), want, state)
	}
}

func Test_cancel(t *testing.T) {
	tests := []struct {
		name        string
		ec2         *mockEC2
		expectedErr string
	}{
		{
			name: "cancelled",
			ec2: &mockEC2{
				csiro: &ec2.CancelSpotInstanceRequestsOutput{
					CancelledSpotInstanceRequests: []*ec2.CancelledSpotInstanceRequest{
						{SpotInstanceRequestId: aws.String("sir-1")},
					},
				},
			},
		},
		{
			name: "request already gone",
			ec2: &mockEC2{
				csirerr: awsError(errCodeSpotRequestNotFound),
			},
		},
		{
			name: "with error",
			ec2: &mockEC2{
				csirerr: errors.New("throttled"),
			},
			expectedErr: "cannot cancel spot request sir-1: throttled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := spotInstanceRequest{
				SpotInstanceRequest: &ec2.SpotInstanceRequest{
					SpotInstanceRequestId: aws.String("sir-1"),
				},
				cloud: testCloud(tt.ec2),
			}
			err := req.cancel()
			if tt.expectedErr != "" {
				assert.Error(t, err, tt.expectedErr)
				return
			}
			assert.NilError(t, err)
		})
	}
}

func Test_waitForSpotInstance(t *testing.T) {
	tests := []struct {
		name        string
		ec2         *mockEC2
		want        string
		expectedErr string
	}{
		{
			name: "with WaitUntilSpotInstanceRequestFulfilled error",
			ec2: &mockEC2{
				wusirferr: errors.New("ResourceNotReady"),
			},
			expectedErr: "ResourceNotReady",
		},
		{
			name: "without WaitUntilSpotInstanceRequestFulfilled error",
			ec2: &mockEC2{
				dsiro: spotRequestOutput("sir-1", "active", "i-1", ""),
			},
			want: "i-1",
		},
		{
			name: "with DescribeSpotInstanceRequests error",
			ec2: &mockEC2{
				dsirerr: errors.New("throttled"),
			},
			expectedErr: "throttled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := spotInstanceRequest{
				SpotInstanceRequest: &ec2.SpotInstanceRequest{
					SpotInstanceRequestId: aws.String("sir-1"),
				},
				cloud: testCloud(tt.ec2),
			}
			err := req.waitForSpotInstance()
			if tt.expectedErr != "" {
				assert.ErrorContains(t, err, tt.expectedErr)
				return
			}
			assert.NilError(t, err)
			assert.Equal(t, req.instanceID(), tt.want)
		})
	}
}
