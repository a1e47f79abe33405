package config

import (
	"os"
	"strings"
)

// EnvSource reads options from the environment, "gwrelay.bot_replicas" is read from GWRELAY_BOT_REPLICAS
type EnvSource struct {
	// also try the key without its first segment, "gwrelay.bot_replicas" falls back to BOT_REPLICAS
	AllowUnprefixed bool
}

func envKey(key string) string {
	properKey := strings.ToUpper(key)
	return strings.Replace(properKey, ".", "_", -1)
}

func (e *EnvSource) GetValue(key string) interface{} {
	if v := os.Getenv(envKey(key)); v != "" {
		return v
	}

	if !e.AllowUnprefixed {
		return nil
	}

	i := strings.Index(key, ".")
	if i == -1 {
		return nil
	}

	if v := os.Getenv(envKey(key[i+1:])); v != "" {
		return v
	}

	return nil
}

func (e *EnvSource) Name() string {
	return "env"
}
