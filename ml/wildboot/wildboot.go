// Package wildboot 实现wild(聚类)bootstrap检验引擎, 供linreg经Bootstrapper接口消费
package wildboot

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"regress/infra/staticlog"
	"regress/ml/linreg"
)

// Engine 实现 linreg.Bootstrapper
type Engine struct{}

func New() *Engine {
	return &Engine{}
}

// mammen两点分布参数
var (
	mammenLo   = -(math.Sqrt(5) - 1) / 2
	mammenHi   = (math.Sqrt(5) + 1) / 2
	mammenProb = (math.Sqrt(5) + 1) / (2 * math.Sqrt(5))
	webbVals   = []float64{
		-math.Sqrt(1.5), -1, -math.Sqrt(0.5),
		math.Sqrt(0.5), 1, math.Sqrt(1.5),
	}
)

// Run 对R选中的单个系数做wild bootstrap
// cluster为nil时逐观测抽权重(异方差版), 否则逐簇
// rademacher权重且 2^G <= B 时降级为全枚举并打警告
func (e *Engine) Run(X *mat.Dense, Y []float64, R []float64, cluster []string, cfg linreg.BootConfig) (float64, float64, error) {
	n, k := X.Dims()
	if len(Y) != n {
		return 0, 0, fmt.Errorf("%w: Y has %d rows, X has %d", linreg.ErrInvalidInput, len(Y), n)
	}
	p := -1
	for i, r := range R {
		if r != 0 {
			if p >= 0 {
				return 0, 0, fmt.Errorf("%w: restriction vector must select exactly one coefficient", linreg.ErrInvalidInput)
			}
			p = i
		}
	}
	if p < 0 || len(R) != k {
		return 0, 0, fmt.Errorf("%w: restriction vector must select exactly one of %d coefficients", linreg.ErrInvalidInput, k)
	}
	switch cfg.BootstrapType {
	case "11", "31", "13", "33":
	default:
		return 0, 0, fmt.Errorf("%w: bootstrap type must be 11, 31, 13 or 33, got %q", linreg.ErrInvalidInput, cfg.BootstrapType)
	}
	switch cfg.WeightsType {
	case linreg.WEIGHTS_RADEMACHER, linreg.WEIGHTS_MAMMEN, linreg.WEIGHTS_WEBB, linreg.WEIGHTS_NORMAL:
	default:
		return 0, 0, fmt.Errorf("%w: unknown bootstrap weights type %q", linreg.ErrInvalidInput, cfg.WeightsType)
	}
	if cfg.B <= 0 {
		return 0, 0, fmt.Errorf("%w: bootstrap iterations must be positive", linreg.ErrInvalidInput)
	}

	// 聚类编号
	var clusterIDs []int
	G := 0
	if cluster != nil {
		if len(cluster) != n {
			return 0, 0, fmt.Errorf("%w: cluster has %d rows, X has %d", linreg.ErrInvalidInput, len(cluster), n)
		}
		index := make(map[string]int)
		clusterIDs = make([]int, n)
		for i, lab := range cluster {
			if lab == "" || lab == "NaN" || lab == "nan" {
				return 0, 0, fmt.Errorf("%w: cluster variable has a missing value at row %d", linreg.ErrNaNInClusterVar, i)
			}
			id, ok := index[lab]
			if !ok {
				id = len(index)
				index[lab] = id
			}
			clusterIDs[i] = id
		}
		G = len(index)
	}

	// 投影算子 A = (X'X)^(-1) X'
	var XT mat.Dense
	XT.CloneFrom(X.T())
	var tXX mat.Dense
	tXX.Mul(&XT, X)
	var tXXinv mat.Dense
	if err := tXXinv.Inverse(&tXX); err != nil {
		return 0, 0, fmt.Errorf("%w: X'X is not invertible: %v", linreg.ErrSingularMatrix, err)
	}
	var A mat.Dense
	A.Mul(&tXXinv, &XT)

	// 全样本估计与残差
	yVec := mat.NewVecDense(n, append([]float64(nil), Y...))
	var beta mat.VecDense
	beta.MulVec(&A, yVec)
	uhat := make([]float64, n)
	fitted := make([]float64, n)
	for i := 0; i < n; i++ {
		var xb float64
		for j := 0; j < k; j++ {
			xb += X.At(i, j) * beta.AtVec(j)
		}
		fitted[i] = xb
		uhat[i] = Y[i] - xb
	}

	// 杠杆率, "3x"/"x3"变体需要
	lev := make([]float64, n)
	for i := 0; i < n; i++ {
		var h float64
		for a := 0; a < k; a++ {
			var la float64
			for b := 0; b < k; b++ {
				la += tXXinv.At(a, b) * X.At(i, b)
			}
			h += X.At(i, a) * la
		}
		if h >= 1 {
			return 0, 0, fmt.Errorf("%w: leverage >= 1 at observation %d", linreg.ErrSingularMatrix, i)
		}
		lev[i] = h
	}

	sscOpt := linreg.SSCOptions{Adj: cfg.Adj, ClusterAdj: cfg.ClusterAdj}
	kind := linreg.VCOV_HETERO
	gSSC := 1
	if cluster != nil {
		kind = linreg.VCOV_CRV
		gSSC = G
	}
	ssc := linreg.SmallSampleCorrection(sscOpt, n, k, gSSC, kind)

	denomAdj := cfg.BootstrapType[1] == '3'
	numerAdj := cfg.BootstrapType[0] == '3'

	sePP := func(resid []float64) float64 {
		return math.Sqrt(ssc * e.varPP(X, &tXXinv, resid, clusterIDs, G, denomAdj, lev, p))
	}

	tOrig := beta.AtVec(p) / sePP(uhat)

	// DGP残差: 施加原假设时去掉第p列重估
	dgpResid := uhat
	dgpFitted := fitted
	center := beta.AtVec(p)
	if cfg.ImposeNull {
		var err error
		dgpFitted, dgpResid, err = restrictedFit(X, Y, p)
		if err != nil {
			return 0, 0, err
		}
		center = 0
	}
	if numerAdj {
		adj := make([]float64, n)
		for i := range dgpResid {
			adj[i] = dgpResid[i] / (1 - lev[i])
		}
		dgpResid = adj
	}

	// rademacher + 小簇数: 可能的符号组合不足, 降级为全枚举
	fullEnum := cluster != nil && cfg.WeightsType == linreg.WEIGHTS_RADEMACHER && G < 63 && (int64(1)<<uint(G)) <= int64(cfg.B)
	if fullEnum {
		staticlog.Log.Warnf("wildboot: 2^G=%d <= B=%d, switching to full enumeration", int64(1)<<uint(G), cfg.B)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	yStar := make([]float64, n)
	betaStar := mat.NewVecDense(k, nil)
	uStar := make([]float64, n)

	oneDraw := func(v []float64) float64 {
		for i := 0; i < n; i++ {
			var w float64
			if cluster != nil {
				w = v[clusterIDs[i]]
			} else {
				w = v[i]
			}
			yStar[i] = dgpFitted[i] + w*dgpResid[i]
		}
		betaStar.MulVec(&A, mat.NewVecDense(n, yStar))
		for i := 0; i < n; i++ {
			var xb float64
			for j := 0; j < k; j++ {
				xb += X.At(i, j) * betaStar.AtVec(j)
			}
			uStar[i] = yStar[i] - xb
		}
		return (betaStar.AtVec(p) - center) / sePP(uStar)
	}

	var tBoot []float64
	if fullEnum {
		total := 1 << uint(G)
		v := make([]float64, G)
		for s := 0; s < total; s++ {
			for g := 0; g < G; g++ {
				if s&(1<<uint(g)) != 0 {
					v[g] = 1
				} else {
					v[g] = -1
				}
			}
			tBoot = append(tBoot, oneDraw(v))
		}
	} else {
		draws := n
		if cluster != nil {
			draws = G
		}
		v := make([]float64, draws)
		for b := 0; b < cfg.B; b++ {
			for i := range v {
				v[i] = drawWeight(rng, cfg.WeightsType)
			}
			tBoot = append(tBoot, oneDraw(v))
		}
	}

	// 双尾p值
	exceed := 0
	for _, t := range tBoot {
		if math.Abs(t) >= math.Abs(tOrig) {
			exceed++
		}
	}
	pvalue := float64(exceed) / float64(len(tBoot))

	return tOrig, pvalue, nil
}

// varPP 三明治估计的(p,p)元: (A' meat A)_pp, meat按HC/CRV1口径
func (e *Engine) varPP(X *mat.Dense, tXXinv *mat.Dense, resid []float64, clusterIDs []int, G int, levAdj bool, lev []float64, p int) float64 {
	n, k := X.Dims()

	// w_p = (X'X)^(-1) 第p行
	wp := make([]float64, k)
	for j := 0; j < k; j++ {
		wp[j] = tXXinv.At(p, j)
	}

	u := resid
	if levAdj {
		u = make([]float64, n)
		for i := 0; i < n; i++ {
			u[i] = resid[i] / (1 - lev[i])
		}
	}

	if clusterIDs == nil {
		// HC: Σ_i (w_p·X_i)² û_i²
		var out float64
		for i := 0; i < n; i++ {
			var wx float64
			for j := 0; j < k; j++ {
				wx += wp[j] * X.At(i, j)
			}
			out += wx * wx * u[i] * u[i]
		}
		return out
	}

	// CRV1: Σ_g (Σ_{i∈g} (w_p·X_i) û_i)²
	sums := make([]float64, G)
	for i := 0; i < n; i++ {
		var wx float64
		for j := 0; j < k; j++ {
			wx += wp[j] * X.At(i, j)
		}
		sums[clusterIDs[i]] += wx * u[i]
	}
	var out float64
	for _, s := range sums {
		out += s * s
	}
	return out
}

// restrictedFit 去掉第p列在其余回归元上重估, 返回受限拟合值与残差
func restrictedFit(X *mat.Dense, Y []float64, p int) (fitted, resid []float64, err error) {
	n, k := X.Dims()
	fitted = make([]float64, n)
	resid = make([]float64, n)

	if k == 1 {
		// 唯一回归元被限制为0, DGP退化为纯残差
		copy(resid, Y)
		return fitted, resid, nil
	}

	Xr := mat.NewDense(n, k-1, nil)
	for i := 0; i < n; i++ {
		jj := 0
		for j := 0; j < k; j++ {
			if j == p {
				continue
			}
			Xr.Set(i, jj, X.At(i, j))
			jj++
		}
	}

	var XrT mat.Dense
	XrT.CloneFrom(Xr.T())
	var tXrXr mat.Dense
	tXrXr.Mul(&XrT, Xr)
	var inv mat.Dense
	if ierr := inv.Inverse(&tXrXr); ierr != nil {
		return nil, nil, fmt.Errorf("%w: restricted X'X is not invertible: %v", linreg.ErrSingularMatrix, ierr)
	}
	var tXry mat.VecDense
	tXry.MulVec(&XrT, mat.NewVecDense(n, append([]float64(nil), Y...)))
	var gamma mat.VecDense
	gamma.MulVec(&inv, &tXry)

	for i := 0; i < n; i++ {
		var xb float64
		for j := 0; j < k-1; j++ {
			xb += Xr.At(i, j) * gamma.AtVec(j)
		}
		fitted[i] = xb
		resid[i] = Y[i] - xb
	}
	return fitted, resid, nil
}

func drawWeight(rng *rand.Rand, weightsType string) float64 {
	switch weightsType {
	case linreg.WEIGHTS_RADEMACHER:
		if rng.Intn(2) == 0 {
			return -1
		}
		return 1
	case linreg.WEIGHTS_MAMMEN:
		if rng.Float64() < mammenProb {
			return mammenLo
		}
		return mammenHi
	case linreg.WEIGHTS_WEBB:
		return webbVals[rng.Intn(len(webbVals))]
	default: // normal
		return rng.NormFloat64()
	}
}
