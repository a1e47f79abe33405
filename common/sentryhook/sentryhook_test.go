package sentryhook

import (
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestApplyFields(t *testing.T) {
	scope := sentry.NewScope()
	applyFields(scope, logrus.Fields{
		"p":     "broker",
		"slot":  1,
		"shard": 3,
		"conn":  "conn-5",
		"stck":  "broker.go:10",
		"code":  4000,
	})

	evt := scope.ApplyToEvent(sentry.NewEvent(), nil)
	assert.Equal(t, "broker", evt.Tags["package"])
	assert.Equal(t, "1", evt.Tags["slot"])
	assert.Equal(t, "3", evt.Tags["shard"])
	assert.Equal(t, "conn-5", evt.Extra["conn_id"])
	assert.Equal(t, "4000", evt.Extra["code"])

	_, ok := evt.Extra["stck"]
	assert.False(t, ok)
}
