package linreg

// SSCOptions 小样本修正开关
type SSCOptions struct {
	Adj        bool    `yaml:"adj"`         // (N-1)/(N-k)
	ClusterAdj bool    `yaml:"cluster_adj"` // G/(G-1), 仅聚类
	Sign       float64 `yaml:"-"`           // 符号因子, 0按+1处理
}

// SmallSampleCorrection 计算小样本修正标量, 统一乘在vcov矩阵上
// iid/hetero调用时G=1, 聚类时传真实G
func SmallSampleCorrection(o SSCOptions, N, k, G int, kind VcovKind) float64 {
	c := 1.0
	if o.Adj && N > k {
		c *= float64(N-1) / float64(N-k)
	}
	if kind == VCOV_CRV && o.ClusterAdj && G > 1 {
		c *= float64(G) / float64(G-1)
	}
	if o.Sign != 0 {
		c *= o.Sign
	}
	return c
}
