package spotnode

import (
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/pkg/errors"
)

const defaultProductDescription = "Linux/UNIX"

type spotPrices struct {
	data     []*ec2.SpotPrice
	cloud    *Cloud
	duration time.Duration
	end      time.Time
}

// fetch queries the spot price history of the last duration for the given
// instance types.
func (s *spotPrices) fetch(product string,
	duration time.Duration,
	availabilityZone *string,
	instanceTypes []*string) error {

	s.cloud.syslog().Debug("Requesting spot prices")

	s.duration = duration
	s.end = time.Now()

	params := &ec2.DescribeSpotPriceHistoryInput{
		ProductDescriptions: []*string{
			aws.String(product),
		},
		StartTime:        aws.Time(s.end.Add(-1 * duration)),
		EndTime:          aws.Time(s.end),
		AvailabilityZone: availabilityZone,
		InstanceTypes:    instanceTypes,
	}

	resp, err := s.cloud.connect().DescribeSpotPriceHistory(params)

	if err != nil {
		s.cloud.syslog().WithError(err).Warn("Failed requesting spot prices")
		return errors.Wrap(err, "cannot describe spot price history")
	}

	s.data = resp.SpotPriceHistory

	return nil
}

func (s *spotPrices) filterData(az string, instanceType string) []*ec2.SpotPrice {
	var r []*ec2.SpotPrice

	for _, p := range s.data {
		if p.AvailabilityZone != nil &&
			p.InstanceType != nil &&
			p.Timestamp != nil &&
			p.SpotPrice != nil &&
			*p.AvailabilityZone == az &&
			*p.InstanceType == instanceType {
			r = append(r, p)
		}
	}
	return r
}

// average weighs every price by how long it was in effect within the
// queried interval. The first price in effect may predate the interval, in
// which case it only counts from the start of the interval.
func (s *spotPrices) average(az string, instanceType string) (float64, error) {
	data := s.filterData(az, instanceType)

	if len(data) == 0 {
		return -1, errors.New("can't determine average, missing spot data")
	}

	sort.Slice(data, func(i, j int) bool {
		return data[i].Timestamp.Before(*data[j].Timestamp)
	})

	if len(data) == 1 || s.duration <= 0 {
		return strconv.ParseFloat(*data[len(data)-1].SpotPrice, 64)
	}

	start := s.end.Add(-1 * s.duration)

	var sum, total float64

	for i, p := range data {
		price, err := strconv.ParseFloat(*p.SpotPrice, 64)
		if err != nil {
			return -1, errors.Wrapf(err, "invalid spot price %q", *p.SpotPrice)
		}

		from := *p.Timestamp
		if from.Before(start) {
			from = start
		}

		until := s.end
		if i+1 < len(data) {
			until = *data[i+1].Timestamp
		}

		if !until.After(from) {
			continue
		}

		d := until.Sub(from).Seconds()
		sum += price * d
		total += d
	}

	if total == 0 {
		return strconv.ParseFloat(*data[len(data)-1].SpotPrice, 64)
	}

	return sum / total, nil
}
