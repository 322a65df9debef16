// Copyright (c) 2016-2022 Cristian Măgherușan-Stanciu
// Licensed under the Open Software License version 3.0

package spotnode

import (
	"io"
	"os"

	ec2instancesinfo "github.com/cristim/ec2-instances-info"
	"github.com/namsral/flag"
)

const (
	// DefaultRegion is used when neither the region flag nor AWS_REGION are set.
	DefaultRegion = "us-east-1"

	// DefaultCloudName tags the spot requests created by this tool and names
	// the cloud the nodes belong to.
	DefaultCloudName = "spotnode"
)

// Config contains the settings shared by the command line tool and the Lambda
// handler.
type Config struct {
	// Logging
	LogFile  io.Writer
	LogLevel string

	Region    string
	CloudName string

	// Output receives the reports and results of the command line actions.
	Output io.Writer

	// Action is one of describe, wait or terminate.
	Action        string
	SpotRequestID string
	InstanceID    string
	Description   string

	// Static data fetched from ec2instances.info, loaded by the report when
	// left empty.
	InstanceData *ec2instancesinfo.InstanceData
}

// ParseConfig loads the configuration from the command line arguments and
// from SPOTNODE_-prefixed environment variables.
func ParseConfig(conf *Config, args []string) error {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = DefaultRegion
	}

	conf.LogFile = os.Stdout
	conf.Output = os.Stdout

	fs := flag.NewFlagSetWithEnvPrefix("spotnode", "SPOTNODE", flag.ContinueOnError)

	fs.StringVar(&conf.Region, "region", region,
		"AWS region where the spot requests live. Defaults to $AWS_REGION or "+DefaultRegion)
	fs.StringVar(&conf.CloudName, "cloud_name", DefaultCloudName,
		"Name of the cloud the nodes belong to, also used as spot request tag")
	fs.StringVar(&conf.Action, "action", "describe",
		"One of describe, wait or terminate")
	fs.StringVar(&conf.SpotRequestID, "spot_request_id", "",
		"ID of the spot instance request backing the node (sir-...)")
	fs.StringVar(&conf.InstanceID, "instance_id", "",
		"Instance ID, if already known")
	fs.StringVar(&conf.Description, "description", "",
		"Node description, used to build the default node name")
	fs.StringVar(&conf.LogLevel, "log_level", "info",
		"Log level: debug, info, warning or error")

	if err := fs.Parse(args); err != nil {
		return err
	}

	initLogger(conf.LogFile, conf.LogLevel)
	return nil
}
