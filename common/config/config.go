// Package config resolves configuration options from a stack of sources, later sources take priority
package config

import (
	"sort"
	"strconv"
	"strings"
)

type ConfigSource interface {
	GetValue(key string) interface{}
	Name() string
}

type ConfigOption struct {
	Name         string
	Description  string
	DefaultValue interface{}
	LoadedValue  interface{}
	Required     bool
	Manager      *ConfigManager

	ConfigSource ConfigSource
}

func (opt *ConfigOption) LoadValue() {
	newVal := opt.DefaultValue
	opt.ConfigSource = nil

	for i := len(opt.Manager.sources) - 1; i >= 0; i-- {
		source := opt.Manager.sources[i]

		v := source.GetValue(opt.Name)
		if v != nil {
			newVal = v
			opt.ConfigSource = source
			break
		}
	}

	// parse ahead of time
	if opt.DefaultValue != nil {
		if _, ok := opt.DefaultValue.(int); ok {
			newVal = interface{}(intVal(newVal))
		} else if _, ok := opt.DefaultValue.(bool); ok {
			newVal = interface{}(boolVal(newVal))
		}
	}

	opt.LoadedValue = newVal
}

func (opt *ConfigOption) GetString() string {
	return strVal(opt.LoadedValue)
}

func (opt *ConfigOption) GetInt() int {
	return intVal(opt.LoadedValue)
}

func (opt *ConfigOption) GetBool() bool {
	return boolVal(opt.LoadedValue)
}

// IsSet returns true if the option was provided by any source
func (opt *ConfigOption) IsSet() bool {
	return opt.ConfigSource != nil
}

// SourceName returns the name of the source the value was loaded from, "default" if none
func (opt *ConfigOption) SourceName() string {
	if opt.ConfigSource == nil {
		return "default"
	}

	return opt.ConfigSource.Name()
}

type ConfigManager struct {
	sources []ConfigSource
	Options map[string]*ConfigOption
}

func NewConfigManager() *ConfigManager {
	return &ConfigManager{
		Options: make(map[string]*ConfigOption),
	}
}

func (c *ConfigManager) AddSource(source ConfigSource) {
	c.sources = append(c.sources, source)
}

func (c *ConfigManager) RegisterOption(name, desc string, defaultValue interface{}) *ConfigOption {
	opt := &ConfigOption{
		Name:         name,
		Description:  desc,
		DefaultValue: defaultValue,
		Manager:      c,
	}

	c.Options[name] = opt
	return opt
}

// RegisterRequiredOption registers a option that MissingRequired reports if no source provides it
func (c *ConfigManager) RegisterRequiredOption(name, desc string, defaultValue interface{}) *ConfigOption {
	opt := c.RegisterOption(name, desc, defaultValue)
	opt.Required = true
	return opt
}

func (c *ConfigManager) Load() {
	for _, v := range c.Options {
		v.LoadValue()
	}
}

// MissingRequired returns the sorted names of required options without a usable value
func (c *ConfigManager) MissingRequired() []string {
	var missing []string
	for name, opt := range c.Options {
		if !opt.Required {
			continue
		}

		if !opt.IsSet() || opt.GetString() == "" || (isInt(opt.DefaultValue) && opt.GetInt() < 1) {
			missing = append(missing, name)
		}
	}

	sort.Strings(missing)
	return missing
}

func isInt(i interface{}) bool {
	_, ok := i.(int)
	return ok
}

func strVal(i interface{}) string {
	switch t := i.(type) {
	case string:
		return t
	case int:
		return strconv.FormatInt(int64(t), 10)
	case Stringer:
		return t.String()
	}

	return ""
}

type Stringer interface {
	String() string
}

func intVal(i interface{}) int {
	switch t := i.(type) {
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return int(n)
	case int:
		return t
	}

	return 0
}

func boolVal(i interface{}) bool {
	switch t := i.(type) {
	case string:
		lower := strings.ToLower(strings.TrimSpace(t))
		if lower == "true" || lower == "yes" || lower == "on" || lower == "enabled" || lower == "1" {
			return true
		}

		return false
	case int:
		return t > 0
	case bool:
		return t
	}

	return false
}
