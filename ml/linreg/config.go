package linreg

import (
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"regress/infra/staticlog"
)

// Config 估计缺省参数, 可由yaml文件覆盖
type Config struct {
	SSC   SSCOptions `yaml:"ssc"`
	Alpha float64    `yaml:"alpha"` // 置信水平
	Boot  BootConfig `yaml:"bootstrap"`
}

// 用 atomic.Value 存当前配置, 支持热更新时无锁读取
var cfgValue atomic.Value // stores *Config

func defaultConfig() *Config {
	return &Config{
		SSC:   SSCOptions{Adj: true, ClusterAdj: true},
		Alpha: 0.95,
		Boot: BootConfig{
			B:             999,
			WeightsType:   WEIGHTS_RADEMACHER,
			ImposeNull:    true,
			BootstrapType: "11",
			Adj:           true,
			ClusterAdj:    true,
		},
	}
}

// LoadConfig 读取yaml配置并与缺省合并
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read yaml: %w", err)
	}

	c := defaultConfig()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if c.Alpha <= 0 || c.Alpha >= 1 {
		return nil, fmt.Errorf("invalid alpha: %v", c.Alpha)
	}
	if c.Boot.B <= 0 {
		return nil, fmt.Errorf("invalid bootstrap iterations: %d", c.Boot.B)
	}
	return c, nil
}

// InitConfig 加载配置并存入全局, 失败不影响已有配置
func InitConfig(path string) error {
	c, err := LoadConfig(path)
	if err != nil {
		return err
	}
	cfgValue.Store(c)
	staticlog.Log.Infof("linreg config loaded from %s", path)
	return nil
}

// currentConfig O(1)读取, 未初始化时返回内置缺省
func currentConfig() *Config {
	cAny := cfgValue.Load()
	if cAny == nil {
		return defaultConfig()
	}
	return cAny.(*Config)
}
