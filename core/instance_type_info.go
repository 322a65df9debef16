package spotnode

import (
	ec2instancesinfo "github.com/cristim/ec2-instances-info"
	"github.com/pkg/errors"
)

type instanceTypeInformation struct {
	instanceType string
	vCPU         int
	memory       float32
	onDemand     float64
}

func loadInstanceData() (*ec2instancesinfo.InstanceData, error) {
	data, err := ec2instancesinfo.Data()
	if err != nil {
		return nil, errors.Wrap(err, "cannot load instance type data")
	}
	return data, nil
}

// lookupInstanceType returns false for instance types missing from the data
// or not offered in the region.
func lookupInstanceType(data *ec2instancesinfo.InstanceData, region, instanceType string) (instanceTypeInformation, bool) {
	if data == nil {
		return instanceTypeInformation{}, false
	}

	for _, it := range *data {
		if it.InstanceType != instanceType {
			continue
		}

		price := it.Pricing[region].Linux.OnDemand
		if price <= 0 {
			return instanceTypeInformation{}, false
		}

		return instanceTypeInformation{
			instanceType: it.InstanceType,
			vCPU:         it.VCPU,
			memory:       it.Memory,
			onDemand:     price,
		}, true
	}
	return instanceTypeInformation{}, false
}
