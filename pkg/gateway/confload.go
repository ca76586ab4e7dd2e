package gateway

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// LoadConfigFile 从配置文件加载 Config。
// 根据扩展名自动检测格式（.yaml/.yml 或 .json），
// 文件中未出现的字段保持 DefaultConfig() 的默认值。
func LoadConfigFile(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("gateway: config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gateway: read config %q: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return LoadConfigBytes(data, "yaml")
	case ".json":
		return LoadConfigBytes(data, "json")
	default:
		return nil, fmt.Errorf("gateway: unsupported config format %q (want .yaml/.yml/.json)", ext)
	}
}

// LoadConfigBytes 从字节数据加载 Config。format 为 "yaml" 或 "json"。
func LoadConfigBytes(data []byte, format string) (*Config, error) {
	var parser koanf.Parser
	switch format {
	case "yaml":
		parser = kyaml.Parser()
	case "json":
		parser = kjson.Parser()
	default:
		return nil, fmt.Errorf("gateway: unsupported config format %q", format)
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return nil, fmt.Errorf("gateway: parse config: %w", err)
	}

	cfg := DefaultConfig()
	// 复用 json 标签做字段映射，koanf 默认的 DecodeHook 支持
	// "5s" 这类 time.Duration 字符串。
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("gateway: unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
