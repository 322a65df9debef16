// Copyright (c) 2016-2022 Cristian Măgherușan-Stanciu
// Licensed under the Open Software License version 3.0

package spotnode

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var (
	logger = newLogger(os.Stdout, logrus.InfoLevel)
	debug  = logger
)

func newLogger(out io.Writer, level logrus.Level) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return logrus.NewEntry(l).WithField("component", "spotnode")
}

func initLogger(out io.Writer, level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	if out == nil {
		out = os.Stdout
	}
	logger = newLogger(out, lvl)
	debug = logger.WithField("debug", true)
}
