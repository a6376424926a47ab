package linreg

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// FTest 联合检验 H0: Rβ = q, 基础设计固定 R=全1行, q=0 (系数和为0)
// IV模型先用工具变量作回归元重估一阶段, 取其vcov做检验
func FTest(f *FitResult, spec VcovSpec) (float64, error) {
	var vc *VcovResult
	var err error

	if f.model.isIV() {
		firstStage, ferr := NewModel(f.model.Y, f.model.Z,
			WithWeights(f.model.Weights),
			WithColumns(f.model.Columns))
		if ferr != nil {
			return 0, ferr
		}
		fsFit, ferr := Fit(firstStage)
		if ferr != nil {
			return 0, fmt.Errorf("first stage fit: %w", ferr)
		}
		vc, err = fsFit.Vcov(spec)
	} else {
		vc, err = f.Vcov(spec)
	}
	if err != nil {
		return 0, err
	}

	// R=全1时 Rβ = Σβ, R V R' = ΣΣ V_ij, 1×1系统直接标量化
	rBeta := floats.Sum(f.Beta)
	var rvr float64
	for a := 0; a < f.K; a++ {
		for b := 0; b < f.K; b++ {
			rvr += vc.Matrix.At(a, b)
		}
	}
	if rvr <= 0 {
		return 0, fmt.Errorf("%w: R V R' = %v is not positive", ErrSingularMatrix, rvr)
	}

	return rBeta * rBeta / rvr, nil
}
