package main

import (
	"github.com/sirupsen/logrus"

	"github.com/lakshaymaurya-felt/gitlab-cleaner/cmd"
)

var (
	version = "v0.0.0"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, date)
	if err := cmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}
