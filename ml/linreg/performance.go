package linreg

import (
	"math"

	"github.com/gonum/stat"
)

// Performance 拟合质量指标
type Performance struct {
	RMSE        float64 // sqrt(Σû²/N)
	R2          float64
	AdjR2       float64
	R2Within    float64 // 无固定效应时与R2同式, within只是名义上的(保留既有口径)
	AdjR2Within float64
}

// Performance 计算拟合质量指标
// 调整项为标准 (N-1)/(N-k-1) 惩罚
func (f *FitResult) Performance() Performance {
	yRaw := make([]float64, f.N)
	for i := 0; i < f.N; i++ {
		yRaw[i] = f.model.Y.AtVec(i)
	}
	ymean := stat.Mean(yRaw, nil)

	var ssu, ssy float64
	for i := 0; i < f.N; i++ {
		ssu += f.Uhat[i] * f.Uhat[i]
		d := yRaw[i] - ymean
		ssy += d * d
	}
	// within口径对去中心化的Y计算, 基础线性场景两者一致
	ssyWithin := ssy

	n := float64(f.N)
	k := float64(f.K)

	r2 := 1 - ssu/ssy
	r2Within := 1 - ssu/ssyWithin
	penalty := (n - 1) / (n - k - 1)

	return Performance{
		RMSE:        math.Sqrt(ssu / n),
		R2:          r2,
		AdjR2:       1 - (1-r2)*penalty,
		R2Within:    r2Within,
		AdjR2Within: 1 - (1-r2Within)*penalty,
	}
}
