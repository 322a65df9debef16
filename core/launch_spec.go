package spotnode

import (
	"encoding/base64"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const defaultRootVolumeSize = 100

// SpotLaunchSpec describes the instance a spot request should be fulfilled
// with.
type SpotLaunchSpec struct {
	ImageID               string
	InstanceType          string
	KeyName               string
	SpotMaxPrice          string
	SubnetID              string
	SecurityGroupID       string
	PublicIP              bool
	IamInstanceProfileArn string
	RootVolumeSize        int
	UserData              []byte
}

func (s SpotLaunchSpec) validate() error {
	if s.ImageID == "" {
		return errors.New("missing image ID")
	}
	if s.InstanceType == "" {
		return errors.New("missing instance type")
	}
	return nil
}

func (s SpotLaunchSpec) requestInput(cloudName string, tags []Tag) (*ec2.RequestSpotInstancesInput, error) {
	if err := s.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid spot launch specification")
	}

	rootVolumeSize := s.RootVolumeSize
	if rootVolumeSize <= 0 {
		rootVolumeSize = defaultRootVolumeSize
	}

	requestTags := []*ec2.Tag{
		{
			Key:   aws.String(CloudTagKey),
			Value: aws.String(cloudName),
		},
	}
	for _, t := range tags {
		requestTags = append(requestTags, &ec2.Tag{
			Key:   aws.String(t.Name),
			Value: aws.String(t.Value),
		})
	}

	input := &ec2.RequestSpotInstancesInput{
		ClientToken:                  aws.String(uuid.New().String()),
		InstanceCount:                aws.Int64(1),
		InstanceInterruptionBehavior: aws.String(ec2.InstanceInterruptionBehaviorTerminate),
		Type:                         aws.String(ec2.SpotInstanceTypeOneTime),
		LaunchSpecification: &ec2.RequestSpotLaunchSpecification{
			BlockDeviceMappings: []*ec2.BlockDeviceMapping{
				{
					DeviceName: aws.String("/dev/sda1"),
					Ebs: &ec2.EbsBlockDevice{
						DeleteOnTermination: aws.Bool(true),
						VolumeSize:          aws.Int64(int64(rootVolumeSize)),
						VolumeType:          aws.String(ec2.VolumeTypeGp2),
					},
				},
			},
			ImageId:      aws.String(s.ImageID),
			InstanceType: aws.String(s.InstanceType),
		},
		TagSpecifications: []*ec2.TagSpecification{
			{
				ResourceType: aws.String(ec2.ResourceTypeSpotInstancesRequest),
				Tags:         requestTags,
			},
		},
	}

	spec := input.LaunchSpecification

	if s.SpotMaxPrice != "" {
		input.SpotPrice = aws.String(s.SpotMaxPrice)
	}
	if s.KeyName != "" {
		spec.KeyName = aws.String(s.KeyName)
	}
	if len(s.UserData) > 0 {
		spec.UserData = aws.String(base64.StdEncoding.EncodeToString(s.UserData))
	}

	spec.NetworkInterfaces = []*ec2.InstanceNetworkInterfaceSpecification{
		{
			AssociatePublicIpAddress: aws.Bool(s.PublicIP),
			DeleteOnTermination:      aws.Bool(true),
			DeviceIndex:              aws.Int64(0),
		},
	}
	if s.SubnetID != "" {
		spec.NetworkInterfaces[0].SubnetId = aws.String(s.SubnetID)
	}
	if s.SecurityGroupID != "" {
		spec.NetworkInterfaces[0].Groups = []*string{aws.String(s.SecurityGroupID)}
	}

	if s.IamInstanceProfileArn != "" {
		spec.IamInstanceProfile = &ec2.IamInstanceProfileSpecification{
			Arn: aws.String(s.IamInstanceProfileArn),
		}
	}

	return input, nil
}
