package spotnode

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		env     map[string]string
		want    Config
		wantErr bool
	}{
		{
			name: "defaults",
			want: Config{
				Region:    DefaultRegion,
				CloudName: DefaultCloudName,
				Action:    "describe",
				LogLevel:  "info",
			},
		},
		{
			name: "region from the AWS environment",
			env:  map[string]string{"AWS_REGION": "eu-west-1"},
			want: Config{
				Region:    "eu-west-1",
				CloudName: DefaultCloudName,
				Action:    "describe",
				LogLevel:  "info",
			},
		},
		{
			name: "command line arguments",
			args: []string{
				"-region", "eu-central-1",
				"-action", "terminate",
				"-spot_request_id", "sir-1",
				"-instance_id", "i-1",
				"-description", "linux builder",
			},
			want: Config{
				Region:        "eu-central-1",
				CloudName:     DefaultCloudName,
				Action:        "terminate",
				SpotRequestID: "sir-1",
				InstanceID:    "i-1",
				Description:   "linux builder",
				LogLevel:      "info",
			},
		},
		{
			name: "prefixed environment variables",
			env: map[string]string{
				"SPOTNODE_SPOT_REQUEST_ID": "sir-2",
				"SPOTNODE_CLOUD_NAME":      "builders",
				"SPOTNODE_ACTION":          "wait",
			},
			want: Config{
				Region:        DefaultRegion,
				CloudName:     "builders",
				Action:        "wait",
				SpotRequestID: "sir-2",
				LogLevel:      "info",
			},
		},
		{
			name:    "unknown flag",
			args:    []string{"-bid", "0.1"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AWS_REGION", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			l, d := logger, debug
			defer func() { logger, debug = l, d }()

			var conf Config
			err := ParseConfig(&conf, tt.args)
			if tt.wantErr {
				assert.Assert(t, err != nil)
				return
			}
			assert.NilError(t, err)

			assert.Equal(t, conf.Region, tt.want.Region)
			assert.Equal(t, conf.CloudName, tt.want.CloudName)
			assert.Equal(t, conf.Action, tt.want.Action)
			assert.Equal(t, conf.SpotRequestID, tt.want.SpotRequestID)
			assert.Equal(t, conf.InstanceID, tt.want.InstanceID)
			assert.Equal(t, conf.Description, tt.want.Description)
			assert.Equal(t, conf.LogLevel, tt.want.LogLevel)
		})
	}
}
