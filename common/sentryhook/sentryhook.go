// Package sentryhook forwards error level log entries to sentry
package sentryhook

import (
	"fmt"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

type Hook struct{}

func (hook Hook) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.ErrorLevel,
		logrus.FatalLevel,
		logrus.PanicLevel,
	}
}

func (hook Hook) Fire(entry *logrus.Entry) error {
	hub := sentry.CurrentHub().Clone()
	if hub == nil {
		return nil
	}

	hub.WithScope(func(s *sentry.Scope) {
		applyFields(s, entry.Data)

		if err, ok := entry.Data[logrus.ErrorKey].(error); ok {
			s.SetExtra("message", entry.Message)
			hub.CaptureException(err)
		} else {
			hub.CaptureMessage(entry.Message)
		}
	})

	return nil
}

// applyFields turns the log fields into tags for the ones worth grouping by, extras for the rest
func applyFields(s *sentry.Scope, fields logrus.Fields) {
	for k, v := range fields {
		strV := fmt.Sprint(v)
		switch k {
		case "p":
			s.SetTag("package", strV)
		case "slot", "shard":
			s.SetTag(k, strV)
		case "conn":
			s.SetExtra("conn_id", strV)
		case "stck", logrus.ErrorKey:
		default:
			s.SetExtra(k, strV)
		}
	}
}
