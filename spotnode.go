package main

import (
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	log "github.com/sirupsen/logrus"

	spotnode "github.com/AutoSpotting/spotnode/core"
)

func main() {
	var conf spotnode.Config

	if err := spotnode.ParseConfig(&conf, os.Args[1:]); err != nil {
		log.Fatal(err.Error())
	}

	// on Lambda the handler runs for every CloudWatch event
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		log.Info("Starting spotnode Lambda handler")
		lambda.Start(spotnode.Handler(&conf))
		return
	}

	if err := spotnode.Run(&conf); err != nil {
		log.WithError(err).Fatalf("spotnode %s failed", conf.Action)
	}
}
