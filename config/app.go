// Package config 加载应用配置（环境变量 + 可选的 YAML 文件）并按配置构建存储后端。
package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/rushteam/roommatch/core"
)

// ModuleConfig 是配置错误的模块名。
const ModuleConfig = "config"

// AppConfig 是命令行与服务共用的应用配置。
type AppConfig struct {
	AppName  string `mapstructure:"app_name" validate:"required"`
	LogLevel string `mapstructure:"app_log_level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Backend 存储后端：sqlite / postgres / memory / redis
	Backend string `mapstructure:"store_backend" validate:"required"`

	// DSN sqlite 为数据目录或 :memory:，postgres 为连接串
	DSN string `mapstructure:"store_dsn" validate:"required_if=Backend sqlite,required_if=Backend postgres"`

	RedisAddr     string `mapstructure:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" validate:"gte=0"`

	// RegistryPath 特征注册表 YAML，为空时使用内置注册表
	RegistryPath string `mapstructure:"registry_path"`
}

// StoreOptions 把存储相关配置转换成构建器参数。
func (c *AppConfig) StoreOptions() map[string]any {
	return map[string]any{
		"dsn":      c.DSN,
		"addr":     c.RedisAddr,
		"password": c.RedisPassword,
		"db":       c.RedisDB,
	}
}

var envKeys = []string{
	"app_name",
	"app_log_level",
	"store_backend",
	"store_dsn",
	"redis_addr",
	"redis_password",
	"redis_db",
	"registry_path",
}

// Load 读取配置：默认值 < 配置文件（path 非空时）< 环境变量 ROOMMATCH_*。
func Load(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetDefault("app_name", "roommatch")
	v.SetDefault("app_log_level", "INFO")
	v.SetDefault("store_backend", "sqlite")
	v.SetDefault("store_dsn", "./data")
	v.SetDefault("redis_db", 0)

	for _, key := range envKeys {
		if err := v.BindEnv(key, "ROOMMATCH_"+strings.ToUpper(key)); err != nil {
			return nil, core.WrapDomainError(ModuleConfig, core.ErrorCodeInvalidInput, "config: bind env "+key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, core.WrapDomainError(ModuleConfig, core.ErrorCodeInvalidInput, "config: read "+path, err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, core.WrapDomainError(ModuleConfig, core.ErrorCodeInvalidInput, "config: decode", err)
	}
	if err := core.Validate(ModuleConfig, cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
