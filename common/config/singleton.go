package config

var Singleton = NewConfigManager()

func AddSource(source ConfigSource) {
	Singleton.AddSource(source)
}

func RegisterOption(name, desc string, defaultValue interface{}) *ConfigOption {
	return Singleton.RegisterOption(name, desc, defaultValue)
}

func RegisterRequiredOption(name, desc string, defaultValue interface{}) *ConfigOption {
	return Singleton.RegisterRequiredOption(name, desc, defaultValue)
}

func Load() {
	Singleton.Load()
}

func MissingRequired() []string {
	return Singleton.MissingRequired()
}
