package config

import (
	"gopkg.in/yaml.v3"
	"os"
)

// Load 从 YAML 文件加载配置。
func Load(file string) (Config, error) {
	var c Config
	b, err := os.ReadFile(file)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	return c, nil
}

// MustLoad 从 YAML 文件加载配置（失败 panic）。
func MustLoad(file string) Config {
	c, err := Load(file)
	if err != nil {
		panic(err)
	}
	return c
}

// LoadOrEnv 优先从 YAML 文件加载；file 为空或文件不存在时回退环境变量。
// 适合宿主以可选 -config 参数接入的场景。
func LoadOrEnv(file string) (Config, error) {
	if file == "" {
		return FromEnv(), nil
	}
	if _, err := os.Stat(file); os.IsNotExist(err) {
		return FromEnv(), nil
	}
	return Load(file)
}
