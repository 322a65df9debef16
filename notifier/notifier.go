// Command notifier runs on the build agent instances and watches the instance
// metadata for the spot interruption notice. When the notice shows up it
// publishes an interruption event to an SNS topic, in the same format as the
// CloudWatch event handled by the spotnode Lambda function, so the node can be
// torn down before EC2 reclaims the instance.
package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/ec2metadata"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sns/snsiface"
	"github.com/namsral/flag"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	spotnode "github.com/AutoSpotting/spotnode/core"
)

const instanceActionPath = "spot/instance-action"

type metadataClient interface {
	GetMetadata(path string) (string, error)
	Region() (string, error)
}

type instanceAction struct {
	Action string `json:"action"`
	Time   string `json:"time"`
}

type notifier struct {
	metadata metadataClient
	sns      snsiface.SNSAPI
	topic    string
}

func main() {
	var topic string
	var pollInterval time.Duration

	fs := flag.NewFlagSetWithEnvPrefix("notifier", "SPOTNODE", flag.ExitOnError)
	fs.StringVar(&topic, "topic", "", "SNS topic notified when the instance is about to be interrupted")
	fs.DurationVar(&pollInterval, "poll_interval", 5*time.Second, "How often the instance metadata is checked")
	fs.Parse(os.Args[1:])

	if topic == "" {
		log.Fatal("Missing topic, use --help to see how to run this program")
	}

	sess := session.Must(session.NewSession())
	metadata := ec2metadata.New(sess)

	region, err := metadata.Region()
	if err != nil {
		log.WithError(err).Fatal("Couldn't get AWS region")
	}

	n := &notifier{
		metadata: metadata,
		sns:      sns.New(sess, aws.NewConfig().WithRegion(region)),
		topic:    topic,
	}

	log.Info("Watching for spot interruption notices")

	for {
		time.Sleep(pollInterval)

		action, ok := n.interrupted()
		if !ok {
			log.Debug("No interruption notice yet")
			continue
		}

		if err := n.notify(action); err != nil {
			log.WithError(err).Warn("Couldn't notify yet, retrying soon")
			continue
		}

		log.Info("Successfully notified, exiting")
		return
	}
}

// interrupted returns the pending instance action, the metadata path only
// exists once EC2 decided to interrupt the instance.
func (n *notifier) interrupted() (instanceAction, bool) {
	var action instanceAction

	out, err := n.metadata.GetMetadata(instanceActionPath)
	if err != nil {
		return action, false
	}

	if err := json.Unmarshal([]byte(out), &action); err != nil {
		log.WithError(err).Warnf("Unexpected instance action %q", out)
		action.Action = "terminate"
	}
	return action, true
}

func (n *notifier) event(action instanceAction) (*events.CloudWatchEvent, error) {
	region, err := n.metadata.Region()
	if err != nil {
		return nil, errors.Wrap(err, "couldn't get AWS region")
	}

	instanceID, err := n.metadata.GetMetadata("instance-id")
	if err != nil {
		return nil, errors.Wrap(err, "couldn't get instance ID")
	}

	detail, err := json.Marshal(map[string]string{
		"instance-id":     instanceID,
		"instance-action": action.Action,
	})
	if err != nil {
		return nil, err
	}

	return &events.CloudWatchEvent{
		Version:    "0",
		DetailType: spotnode.SpotInstanceInterruptionWarningMessage,
		Source:     "aws.ec2",
		Region:     region,
		Time:       time.Now().UTC(),
		Resources:  []string{instanceID},
		Detail:     detail,
	}, nil
}

func (n *notifier) notify(action instanceAction) error {
	event, err := n.event(action)
	if err != nil {
		return err
	}

	message, err := json.Marshal(event)
	if err != nil {
		return err
	}

	log.Infof("Notifying, message: %s", message)

	_, err = n.sns.Publish(&sns.PublishInput{
		Message:  aws.String(string(message)),
		TopicArn: aws.String(n.topic),
	})
	return errors.Wrapf(err, "cannot publish to %s", n.topic)
}
