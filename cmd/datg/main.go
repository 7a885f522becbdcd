package main

import (
	"os"

	"datg/internal/cli"

	"github.com/sirupsen/logrus"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		ForceColors:     true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
