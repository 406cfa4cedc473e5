package config

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level            string   `json:"level" yaml:"level"`                       // debug/info/warn/error
	Encoding         string   `json:"encoding" yaml:"encoding"`                 // json/console
	EnableColor      bool     `json:"enableColor" yaml:"enableColor"`           // console 模式下是否彩色
	Development      bool     `json:"development" yaml:"development"`           // 开发模式（错误级别打印堆栈）
	OutputPaths      []string `json:"outputPaths" yaml:"outputPaths"`           // 普通日志输出
	ErrorOutputPaths []string `json:"errorOutputPaths" yaml:"errorOutputPaths"` // 内部错误输出
}

// DefaultLoggerConfig 返回本地开发的默认配置
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level:            "info",
		Encoding:         "json",
		EnableColor:      false,
		Development:      false,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
}
