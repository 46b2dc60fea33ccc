package agent

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile は YAML 形式のエージェント定義を読み込みます。
// 未知のキーはエラーにします。
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read agent file: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML は YAML を Config に変換し、既定値を補います。
func ParseYAML(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.Normalize()
	return cfg, nil
}
