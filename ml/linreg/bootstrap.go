package linreg

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// bootstrap权重分布族
const (
	WEIGHTS_RADEMACHER = "rademacher"
	WEIGHTS_MAMMEN     = "mammen"
	WEIGHTS_WEBB       = "webb"
	WEIGHTS_NORMAL     = "normal"
)

// BootConfig wild bootstrap配置
type BootConfig struct {
	B             int    `yaml:"b"`              // 迭代次数
	WeightsType   string `yaml:"weights"`        // rademacher/mammen/webb/normal
	ImposeNull    bool   `yaml:"impose_null"`    // 是否在DGP上施加原假设
	BootstrapType string `yaml:"bootstrap_type"` // "11"/"31"/"13"/"33", HC变体码
	Seed          int64  `yaml:"-"`              // 0为非确定性
	Adj           bool   `yaml:"adj"`            // 小样本修正
	ClusterAdj    bool   `yaml:"cluster_adj"`    // 聚类小样本修正
}

// BootResult bootstrap检验结果
type BootResult struct {
	Param         string  // 被检验的系数名
	Statistic     float64 // 原样本t统计量
	PValue        float64 // 双尾bootstrap p值
	BootstrapType string
	ImposeNull    bool
}

// Bootstrapper wild bootstrap子程序的外部接口
// R为限制向量(恰好选中一个系数); cluster为nil时做异方差wild bootstrap
type Bootstrapper interface {
	Run(X *mat.Dense, Y []float64, R []float64, cluster []string, cfg BootConfig) (stat, pvalue float64, err error)
}

// WildBootstrap 委托外部bootstrap子程序对单个系数做wild(聚类)bootstrap检验
// clusterCol为空时为异方差版本; IV与固定效应模型不支持
func (f *FitResult) WildBootstrap(engine Bootstrapper, param string, clusterCol string, cfg BootConfig) (*BootResult, error) {
	m := f.model
	if engine == nil {
		return nil, fmt.Errorf("%w: nil bootstrap engine", ErrInvalidInput)
	}
	if m.isIV() {
		return nil, fmt.Errorf("%w: wild bootstrap is not supported for IV estimation", ErrVcovNotSupported)
	}
	if m.HasFixef {
		return nil, fmt.Errorf("%w: wild bootstrap is not supported for models with fixed effects", ErrVcovNotSupported)
	}

	// 限制向量: 恰好选中param
	R := make([]float64, f.K)
	found := false
	for i, name := range m.CoefNames {
		if name == param {
			R[i] = 1
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: parameter %q not among coefficients", ErrInvalidInput, param)
	}

	var cluster []string
	if clusterCol != "" {
		col, ok := m.Columns[clusterCol]
		if !ok {
			return nil, fmt.Errorf("%w: cluster variable %q not found in model columns", ErrInvalidInput, clusterCol)
		}
		cluster = col
	}

	// 零值字段回填全局缺省
	def := currentConfig().Boot
	if cfg.B <= 0 {
		cfg.B = def.B
	}
	if cfg.WeightsType == "" {
		cfg.WeightsType = def.WeightsType
	}
	if cfg.BootstrapType == "" {
		cfg.BootstrapType = def.BootstrapType
	}

	y := make([]float64, f.N)
	for i := 0; i < f.N; i++ {
		y[i] = m.Y.AtVec(i)
	}

	stat, pvalue, err := engine.Run(m.X, y, R, cluster, cfg)
	if err != nil {
		return nil, err
	}

	return &BootResult{
		Param:         param,
		Statistic:     stat,
		PValue:        pvalue,
		BootstrapType: cfg.BootstrapType,
		ImposeNull:    cfg.ImposeNull,
	}, nil
}
