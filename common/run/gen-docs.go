package run

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/botlabs-gg/gwrelay/common/config"
)

// GenConfigDocs prints every registered option with its environment variable as markdown
func GenConfigDocs() {
	os.Stdout.Write(configDocs(config.Singleton))
}

func configDocs(manager *config.ConfigManager) []byte {
	keys := make([]string, 0, len(manager.Options))
	for k := range manager.Options {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	var out bytes.Buffer

	for _, k := range keys {
		v := manager.Options[k]

		out.WriteString("**" + v.Description + "**")

		typeStr := ""
		def := ""
		switch t := v.DefaultValue.(type) {
		case string:
			typeStr = "string"
			def = t
		case bool:
			typeStr = "true/false"
			def = "true"
			if !t {
				def = "false"
			}
		case int, uint, float32, float64, int8, int16, int32, int64, uint8, uint16, uint32, uint64:
			typeStr = "number"
			def = fmt.Sprint(t)
		}

		if typeStr != "" {
			out.WriteString(" (" + typeStr)
			if v.Required {
				out.WriteString(", required for the broker")
			} else if def != "" {
				out.WriteString(", default: " + def)
			}
			out.WriteString(")")
		}
		out.WriteString("\n")

		properKey := strings.ToUpper(v.Name)
		properKey = strings.Replace(properKey, ".", "_", -1)
		out.WriteString(properKey + "\n\n")
	}

	return out.Bytes()
}
