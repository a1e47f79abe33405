package config

import (
	"strings"

	"github.com/mediocregopher/radix/v3"
	"github.com/sirupsen/logrus"
)

// RedisConfigHash is the redis hash options are read from, keys are stored without the "gwrelay." prefix
const RedisConfigHash = "gwrelay_config"

type RedisConfigStore struct {
	Client radix.Client
}

func (rs *RedisConfigStore) GetValue(key string) interface{} {
	prefixStripped := strings.TrimPrefix(key, "gwrelay.")

	var v string
	err := rs.Client.Do(radix.Cmd(&v, "HGET", RedisConfigHash, prefixStripped))
	if err != nil {
		logrus.WithError(err).Error("[redis_config_source] failed retrieving value")
		return nil
	}

	if v == "" {
		return nil
	}

	return v
}

func (rs *RedisConfigStore) SaveValue(key, value string) error {
	prefixStripped := strings.TrimPrefix(key, "gwrelay.")
	return rs.Client.Do(radix.Cmd(nil, "HSET", RedisConfigHash, prefixStripped, value))
}

func (rs *RedisConfigStore) Name() string {
	return "redis"
}
