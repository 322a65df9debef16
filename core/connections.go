// This stores the session to the EC2 API, in order to avoid connecting to it
// over and over again.

package spotnode

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
)

type connections struct {
	session *session.Session
	ec2     ec2iface.EC2API
	region  string
}

func (c *connections) setSession(region string) {
	c.session = session.Must(
		session.NewSession(&aws.Config{Region: aws.String(region)}))
}

func (c *connections) connect(region string) {
	logger.Println("Creating EC2 connection in", region)

	if c.session == nil {
		c.setSession(region)
	}

	c.ec2, c.region = ec2.New(c.session), region

	logger.Println("Created EC2 connection in", region)
}
