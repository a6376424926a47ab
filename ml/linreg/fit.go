package linreg

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// FitResult 点估计阶段输出, 后续各阶段只读
type FitResult struct {
	model *Model

	N int // 观测数
	K int // 系数个数

	Beta []float64 // 回归系数 β, 解 (Z'X)β = Z'Y
	YHat []float64 // 线性预测 Xβ
	Uhat []float64 // 残差 Y - Xβ

	Scores  *mat.Dense // N×k 得分矩阵, 第i行 = Z_i · û_i
	Hessian *mat.Dense // 信息矩阵 Z'Z

	tZX    *mat.Dense // Z'X
	tZXinv *mat.Dense // (Z'X)^(-1)
	tXZ    *mat.Dense // X'Z, 仅IV
	tZZinv *mat.Dense // (Z'Z)^(-1), 仅IV
}

// Fit 求解线性系统 (Z'X)β = Z'Y; 非IV时Z≡X, 即正规方程
// Z'X奇异是致命数值错误, 不做正则化回退
func Fit(m *Model) (*FitResult, error) {
	n, k := m.X.Dims()

	var ZT mat.Dense
	ZT.CloneFrom(m.Z.T())

	var tZX mat.Dense
	tZX.Mul(&ZT, m.X)

	var tZy mat.VecDense
	tZy.MulVec(&ZT, m.Y)

	var tZXinv mat.Dense
	if err := tZXinv.Inverse(&tZX); err != nil {
		return nil, fmt.Errorf("%w: Z'X is not invertible: %v", ErrSingularMatrix, err)
	}

	// β = (Z'X)^(-1) Z'Y
	var beta mat.VecDense
	beta.MulVec(&tZXinv, &tZy)

	yhat := mat.NewVecDense(n, nil)
	yhat.MulVec(m.X, &beta)
	resid := mat.NewVecDense(n, nil)
	resid.SubVec(m.Y, yhat)

	// 得分矩阵: Z逐行乘残差
	scores := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		u := resid.AtVec(i)
		for j := 0; j < k; j++ {
			scores.Set(i, j, m.Z.At(i, j)*u)
		}
	}

	var hessian mat.Dense
	hessian.Mul(&ZT, m.Z)

	fit := &FitResult{
		model:   m,
		N:       n,
		K:       k,
		Beta:    vecToSlice(&beta),
		YHat:    vecToSlice(yhat),
		Uhat:    vecToSlice(resid),
		Scores:  scores,
		Hessian: &hessian,
		tZX:     &tZX,
		tZXinv:  &tZXinv,
	}

	// IV额外的交叉矩, OLS/Poisson路径不需要
	if m.isIV() {
		var tXZ mat.Dense
		tXZ.CloneFrom(tZX.T())
		var tZZinv mat.Dense
		if err := tZZinv.Inverse(&hessian); err != nil {
			return nil, fmt.Errorf("%w: Z'Z is not invertible: %v", ErrSingularMatrix, err)
		}
		fit.tXZ = &tXZ
		fit.tZZinv = &tZZinv
	}

	return fit, nil
}

// Model 返回输入模型(只读)
func (f *FitResult) Model() *Model {
	return f.model
}

// Resid 残差向量副本
func (f *FitResult) Resid() []float64 {
	out := make([]float64, len(f.Uhat))
	copy(out, f.Uhat)
	return out
}

// Coef 系数名 → 估计值
func (f *FitResult) Coef() map[string]float64 {
	out := make(map[string]float64, f.K)
	for i, name := range f.model.CoefNames {
		out[name] = f.Beta[i]
	}
	return out
}

func vecToSlice(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	copy(out, v.RawVector().Data)
	return out
}
