//go:build !linux
// +build !linux

package run

import (
	"github.com/sirupsen/logrus"
)

// AddSyslogHooks is a no-op outside linux, -syslog only logs a warning
func AddSyslogHooks() {
	logrus.WithField("app", flagLogAppName).Warn("syslog hooks are only supported on linux, ignoring -syslog")
}
