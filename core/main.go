// Copyright (c) 2016-2022 Cristian Măgherușan-Stanciu
// Licensed under the Open Software License version 3.0

package spotnode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/pkg/errors"
)

// Run executes the configured action against the node backing the
// configured spot request.
func Run(conf *Config) error {
	cloud := NewCloud(conf.CloudName, conf.Region)
	return run(conf, cloud)
}

func run(conf *Config, cloud *Cloud) error {
	registry := NewNodeRegistry()

	node, err := NewSpotAgentNode(NodeConfig{
		SpotRequestID: conf.SpotRequestID,
		InstanceID:    conf.InstanceID,
		Description:   conf.Description,
	}, cloud, registry)
	if err != nil {
		return err
	}
	registry.Add(node)
	debug.Debug(registry.dump())

	out := conf.Output
	if out == nil {
		out = os.Stdout
	}

	switch conf.Action {
	case "describe":
		return describe(out, conf, node)
	case "wait":
		return wait(out, node)
	case "terminate":
		return node.Terminate()
	}
	return errors.Errorf("unknown action %q", conf.Action)
}

func describe(out io.Writer, conf *Config, node *SpotAgentNode) error {
	if conf.InstanceData == nil {
		data, err := loadInstanceData()
		if err != nil {
			// the report is still useful without the static data
			logger.WithError(err).Warn("Instance type data unavailable")
		}
		conf.InstanceData = data
	}

	_, err := fmt.Fprint(out, node.Report(conf.InstanceData))
	return err
}

func wait(out io.Writer, node *SpotAgentNode) error {
	req, err := node.cloud.describeSpotRequest(node.spotRequestID)
	if err != nil {
		return err
	}
	if req == nil {
		return errors.Errorf("spot request %s not found", node.spotRequestID)
	}

	if req.instanceID() == "" {
		if err := req.waitForSpotInstance(); err != nil {
			return err
		}
	}
	node.cacheInstanceID(req.instanceID())

	_, err = fmt.Fprintln(out, node.InstanceID())
	return err
}

// Handler returns the Lambda entry point reacting to spot interruption and
// instance state-change events. The events are either delivered by
// EventBridge or wrapped in SNS notifications, the way the interruption
// notifier publishes them.
func Handler(conf *Config) func(context.Context, json.RawMessage) error {
	return lambdaHandler(conf, func(region string) *Cloud {
		return NewCloud(conf.CloudName, region)
	})
}

func lambdaHandler(conf *Config, newCloud func(region string) *Cloud) func(context.Context, json.RawMessage) error {
	return func(ctx context.Context, payload json.RawMessage) error {
		cwEvents, err := unwrapEvents(payload)
		if err != nil {
			return err
		}

		var errs []error
		for _, event := range cwEvents {
			region := event.Region
			if region == "" {
				region = conf.Region
			}
			errs = append(errs, handleEvent(newCloud(region), event))
		}
		return firstError(errs...)
	}
}

func unwrapEvents(payload json.RawMessage) ([]events.CloudWatchEvent, error) {
	var notification events.SNSEvent
	if err := json.Unmarshal(payload, &notification); err == nil && len(notification.Records) > 0 {
		var cwEvents []events.CloudWatchEvent
		for _, record := range notification.Records {
			var event events.CloudWatchEvent
			if err := json.Unmarshal([]byte(record.SNS.Message), &event); err != nil {
				return nil, errors.Wrapf(err, "invalid SNS message %s", record.SNS.MessageID)
			}
			cwEvents = append(cwEvents, event)
		}
		return cwEvents, nil
	}

	var event events.CloudWatchEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, errors.Wrap(err, "invalid event")
	}
	return []events.CloudWatchEvent{event}, nil
}

func handleEvent(cloud *Cloud, event events.CloudWatchEvent) error {
	return NewEventHandler(cloud, nil).HandleEvent(event)
}
