package config

const (
	// DefaultPedsimStepInterval 引擎时间步长默认值（秒）
	DefaultPedsimStepInterval = .02
	// DefaultPedsimExitTolerance 途经点到达容差默认值（米）
	DefaultPedsimExitTolerance = 1
)

// RuntimeConfig 运行时配置
// 功能：存储仿真运行时的配置信息
// 说明：将YAML配置转换为运行时可用的配置对象，补全默认值
type RuntimeConfig struct {
	All Config  // 全部配置
	C   Control // 全局控制配置
}

// NewRuntimeConfig 根据配置初始化全局变量
// 功能：创建运行时配置对象，进行配置验证与默认值补全
// 参数：config-原始配置对象
// 返回：初始化的运行时配置指针
// 算法说明：
// 1. 创建运行时配置对象
// 2. 补全行人引擎的步长与到达容差默认值
// 说明：确保配置的正确性和一致性，为仿真运行提供有效配置
func NewRuntimeConfig(config Config) *RuntimeConfig {
	rc := &RuntimeConfig{}

	rc.All = config
	rc.C = config.Control
	if rc.C.Pedsim.StepInterval <= 0 {
		rc.C.Pedsim.StepInterval = DefaultPedsimStepInterval
	}
	if rc.C.Pedsim.ExitTolerance <= 0 {
		rc.C.Pedsim.ExitTolerance = DefaultPedsimExitTolerance
	}

	return rc
}
