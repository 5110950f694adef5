package metrics

// Config 指标系统的配置结构体
//
// 典型配置示例（YAML）：
//
//	metrics:
//	  enabled: true
//	  service_name: "redis-demo"
//	  version: "v1.0.0"
//	  port: 9090
//	  path: "/metrics"
//	  runtime: true
type Config struct {
	// Enabled 为 false 时 New 返回 noop Meter
	Enabled bool `mapstructure:"enabled"`

	// ServiceName 作为 OpenTelemetry Resource 的 service.name 属性
	ServiceName string `mapstructure:"service_name"`

	// Version 作为 OpenTelemetry Resource 的 service.version 属性
	Version string `mapstructure:"version"`

	// Port 大于 0 且 Path 非空时启动 Prometheus HTTP 服务器
	Port int `mapstructure:"port"`

	// Path Prometheus 指标的 HTTP 路径，必须以 "/" 开头
	Path string `mapstructure:"path"`

	// Runtime 采集 Go 运行时指标（GC、goroutine、内存）
	Runtime bool `mapstructure:"runtime"`
}

// NewDevDefaultConfig 返回开发环境配置：启用采集，但不暴露 HTTP 端口
func NewDevDefaultConfig(serviceName string) *Config {
	return &Config{
		Enabled:     true,
		ServiceName: serviceName,
		Version:     "dev",
	}
}
