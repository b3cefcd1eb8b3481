package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/G-Research/readsizer/cmd/sizer/cmd"
	"github.com/G-Research/readsizer/internal/common/logging"
)

// Config is handled by cmd/params.go
func main() {
	logging.ConfigureCommandLineLogging()
	err := cmd.RootCmd().Execute()
	if err != nil {
		logging.WithStacktrace(log.NewEntry(log.StandardLogger()), err).Debug("Command failed")
		os.Exit(1)
	}
}
