package linreg

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Predict 预测
// newX为nil时复用样本内拟合值(响应口径 Y-û, 含固定效应贡献);
// 给定新数据时为link口径 Xβ, 线性模型两种口径一致(无逆link变换)
func (f *FitResult) Predict(newX *mat.Dense, ptype string) ([]float64, error) {
	if ptype != PREDICT_LINK && ptype != PREDICT_RESPONSE {
		return nil, fmt.Errorf("%w: predict type must be %q or %q, got %q", ErrInvalidInput, PREDICT_LINK, PREDICT_RESPONSE, ptype)
	}

	if newX == nil {
		out := make([]float64, f.N)
		for i := 0; i < f.N; i++ {
			out[i] = f.model.Y.AtVec(i) - f.Uhat[i]
		}
		return out, nil
	}

	n, k := newX.Dims()
	if k != f.K {
		return nil, fmt.Errorf("%w: new data has %d columns, model has %d coefficients", ErrInvalidInput, k, f.K)
	}
	var yhat mat.VecDense
	yhat.MulVec(newX, mat.NewVecDense(f.K, append([]float64(nil), f.Beta...)))
	out := make([]float64, n)
	copy(out, yhat.RawVector().Data)
	return out, nil
}
