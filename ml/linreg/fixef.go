package linreg

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// FixefResult 固定效应水平估计
type FixefResult struct {
	// Effects 固定效应变量 → 水平 → 估计值; 每个变量去掉一个参照水平
	Effects map[string]map[string]float64
	// SumFE 每个观测的固定效应合计, predict在无新数据固定效应时需要
	SumFE []float64
}

// Fixef 从残差化响应恢复固定效应各水平的估计
// 每个固定效应变量丢一个参照水平避免与截距/其他组共线
func (f *FitResult) Fixef() (*FixefResult, error) {
	m := f.model
	if !m.HasFixef {
		return nil, fmt.Errorf("%w: declare fixed effects with WithFixef", ErrNoFixef)
	}
	if m.isIV() {
		return nil, fmt.Errorf("%w: fixef recovery is not supported for IV models", ErrVcovNotSupported)
	}
	if !m.caps().useTDist {
		return nil, fmt.Errorf("%w: fixef recovery is not supported for %v models", ErrVcovNotSupported, m.Family)
	}

	// 虚拟变量设计矩阵: 每个变量的水平排序后丢第一个做参照
	type dumCol struct {
		varName string
		level   string
	}
	var cols []dumCol
	levelIdx := make([]map[string]int, len(m.FixefCols)) // 变量内水平→列偏移(参照为-1)

	for ci, fc := range m.FixefCols {
		seen := make(map[string]bool)
		var levels []string
		for _, lab := range fc.Labels {
			if !seen[lab] {
				seen[lab] = true
				levels = append(levels, lab)
			}
		}
		sort.Strings(levels)

		levelIdx[ci] = make(map[string]int, len(levels))
		for li, lev := range levels {
			if li == 0 {
				levelIdx[ci][lev] = -1 // 参照水平
				continue
			}
			levelIdx[ci][lev] = len(cols)
			cols = append(cols, dumCol{varName: fc.Name, level: lev})
		}
	}
	kFE := len(cols)
	if kFE == 0 {
		return nil, fmt.Errorf("%w: fixed effect columns have a single level each", ErrInvalidInput)
	}

	D := mat.NewDense(f.N, kFE, nil)
	for ci, fc := range m.FixefCols {
		for i, lab := range fc.Labels {
			j := levelIdx[ci][lab]
			if j >= 0 {
				D.Set(i, j, 1)
			}
		}
	}

	// 残差化响应 û = Y - Xβ, 解最小二乘 (D'D)α = D'û
	uhat := mat.NewVecDense(f.N, f.Resid())
	var DT mat.Dense
	DT.CloneFrom(D.T())
	var tDD mat.Dense
	tDD.Mul(&DT, D)
	var tDu mat.VecDense
	tDu.MulVec(&DT, uhat)

	pinv, err := pseudoInverse(&tDD)
	if err != nil {
		return nil, err
	}
	var alpha mat.VecDense
	alpha.MulVec(pinv, &tDu)

	effects := make(map[string]map[string]float64, len(m.FixefCols))
	for j, c := range cols {
		if effects[c.varName] == nil {
			effects[c.varName] = make(map[string]float64)
		}
		effects[c.varName][c.level] = alpha.AtVec(j)
	}

	sumFE := make([]float64, f.N)
	var dAlpha mat.VecDense
	dAlpha.MulVec(D, &alpha)
	copy(sumFE, dAlpha.RawVector().Data)

	return &FixefResult{Effects: effects, SumFE: sumFE}, nil
}
