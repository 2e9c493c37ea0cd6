package main

import (
	"github.com/sirupsen/logrus"

	"github.com/hadv/ethaura-passkeys/internal/log"
)

func newLogger(nodeEnv string) log.Logger {
	l := logrus.New()
	if nodeEnv == "production" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		l.SetLevel(logrus.DebugLevel)
	}
	return log.NewLogrusLogger(l)
}
