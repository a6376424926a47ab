package linreg

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// pseudoInverse 用SVD求广义逆, jackknife降秩系统与固定效应恢复用
// 系数主路径不走这里: 那里奇异直接报错
func pseudoInverse(A *mat.Dense) (*mat.Dense, error) {
	var svd mat.SVD
	ok := svd.Factorize(A, mat.SVDThin)
	if !ok {
		return nil, fmt.Errorf("%w: SVD factorization failed", ErrSingularMatrix)
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// Σ 取倒数, 小奇异值截断
	sigma := svd.Values(nil)
	m, n := A.Dims()
	sInv := mat.NewDense(n, m, nil)

	tol := 1e-12
	for i, val := range sigma {
		if val > tol {
			sInv.Set(i, i, 1.0/val)
		}
	}

	// A⁺ = V * Σ⁺ * Uᵀ
	var temp mat.Dense
	temp.Mul(&v, sInv)
	var uT mat.Dense
	uT.CloneFrom(u.T())

	var pinv mat.Dense
	pinv.Mul(&temp, &uT)

	return &pinv, nil
}

// 对称矩阵三明治 bread·meat·bread
func sandwich(bread, meat *mat.Dense) *mat.Dense {
	var bm, out mat.Dense
	bm.Mul(bread, meat)
	out.Mul(&bm, bread)
	return &out
}
