package linreg

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func fitTestModel(t *testing.T, opts ...ModelOption) *FitResult {
	t.Helper()
	Y, X, cols := testData(t)
	opts = append([]ModelOption{WithColumns(cols)}, opts...)
	m, err := NewModel(Y, X, opts...)
	require.NoError(t, err)
	fit, err := Fit(m)
	require.NoError(t, err)
	return fit
}

func requireMatInDelta(t *testing.T, want, got *mat.Dense, tol float64) {
	t.Helper()
	wr, wc := want.Dims()
	gr, gc := got.Dims()
	require.Equal(t, wr, gr)
	require.Equal(t, wc, gc)
	for i := 0; i < wr; i++ {
		for j := 0; j < wc; j++ {
			require.InDelta(t, want.At(i, j), got.At(i, j), tol, "element (%d,%d)", i, j)
		}
	}
}

func TestVcovIIDClosedForm(t *testing.T) {
	fit := fitTestModel(t)
	vc, err := fit.Vcov(IID())
	require.NoError(t, err)

	// 闭式: V = ssc · σ² · (X'X)^(-1), σ²=Σû²/(N-1)
	var sigma2 float64
	for _, u := range fit.Uhat {
		sigma2 += u * u
	}
	sigma2 /= float64(fit.N - 1)
	ssc := SmallSampleCorrection(fit.sscOptions(), fit.N, fit.K, 1, VCOV_IID)
	require.InDelta(t, ssc, vc.SSC, 1e-12)

	var inv mat.Dense
	require.NoError(t, inv.Inverse(fit.Hessian))
	var want mat.Dense
	want.Scale(ssc*sigma2, &inv)
	requireMatInDelta(t, &want, vc.Matrix, 1e-10)
	require.Equal(t, 1, vc.G)
}

func TestVcovHC1PermutationInvariance(t *testing.T) {
	Y, X, _ := testData(t)
	m, err := NewModel(Y, X)
	require.NoError(t, err)
	fit, err := Fit(m)
	require.NoError(t, err)
	vc, err := fit.Vcov(HC1())
	require.NoError(t, err)

	// 任意重排观测顺序, HC1结果不变
	perm := []int{4, 7, 0, 2, 8, 1, 6, 3, 5}
	Xp := mat.NewDense(9, 3, nil)
	yp := make([]float64, 9)
	for to, from := range perm {
		yp[to] = Y.AtVec(from)
		for j := 0; j < 3; j++ {
			Xp.Set(to, j, X.At(from, j))
		}
	}
	mp, err := NewModel(mat.NewVecDense(9, yp), Xp)
	require.NoError(t, err)
	fitp, err := Fit(mp)
	require.NoError(t, err)
	vcp, err := fitp.Vcov(HC1())
	require.NoError(t, err)

	requireMatInDelta(t, vc.Matrix, vcp.Matrix, 1e-10)
}

func TestVcovHC2HC3Manual(t *testing.T) {
	fit := fitTestModel(t)
	m := fit.model

	var inv mat.Dense
	require.NoError(t, inv.Inverse(fit.Hessian))
	ssc := SmallSampleCorrection(fit.sscOptions(), fit.N, fit.K, 1, VCOV_HETERO)

	// 手算杠杆率
	lev := make([]float64, fit.N)
	for i := 0; i < fit.N; i++ {
		for a := 0; a < fit.K; a++ {
			for b := 0; b < fit.K; b++ {
				lev[i] += m.X.At(i, a) * inv.At(a, b) * m.X.At(i, b)
			}
		}
	}

	for _, tc := range []struct {
		spec  VcovSpec
		scale func(h float64) float64
	}{
		{HC2(), func(h float64) float64 { return 1 / (1 - h) }},        // 得分缩放1/√(1-h), meat平方后即1/(1-h)
		{HC3(), func(h float64) float64 { return 1 / ((1 - h) * (1 - h)) }},
	} {
		meat := mat.NewDense(fit.K, fit.K, nil)
		for i := 0; i < fit.N; i++ {
			w := tc.scale(lev[i]) * fit.Uhat[i] * fit.Uhat[i]
			for a := 0; a < fit.K; a++ {
				for b := 0; b < fit.K; b++ {
					meat.Set(a, b, meat.At(a, b)+w*m.X.At(i, a)*m.X.At(i, b))
				}
			}
		}
		var want mat.Dense
		want.Scale(ssc, sandwich(&inv, meat))

		vc, err := fit.Vcov(tc.spec)
		require.NoError(t, err)
		requireMatInDelta(t, &want, vc.Matrix, 1e-10)
	}
}

func TestVcovUnsupportedCombinations(t *testing.T) {
	Y, X, cols := testData(t)
	Z := mat.NewDense(9, 3, nil)
	Z.CloneFrom(X)
	for i := 0; i < 9; i++ {
		Z.Set(i, 2, X.At(i, 2)*0.8+0.1*float64(i))
	}
	fe := FixefColumn{Name: "grp", Labels: cols["firm"]}

	// HC2/HC3 + 固定效应
	feFit := fitTestModel(t, WithFixef(fe))
	for _, spec := range []VcovSpec{HC2(), HC3()} {
		_, err := feFit.Vcov(spec)
		require.ErrorIs(t, err, ErrVcovNotSupported)
	}

	// HC2/HC3/CRV3 + IV
	mIV, err := NewModel(Y, X, WithInstruments(Z), WithColumns(cols))
	require.NoError(t, err)
	ivFit, err := Fit(mIV)
	require.NoError(t, err)
	for _, spec := range []VcovSpec{HC2(), HC3(), CRV3("firm")} {
		_, err := ivFit.Vcov(spec)
		require.ErrorIs(t, err, ErrVcovNotSupported)
	}

	// poisson族: 无iid/CRV3能力
	pFit := fitTestModel(t, WithFamily(FAMILY_POISSON))
	_, err = pFit.Vcov(IID())
	require.ErrorIs(t, err, ErrVcovNotSupported)
	_, err = pFit.Vcov(CRV3("firm"))
	require.ErrorIs(t, err, ErrVcovNotSupported)
}

func TestVcovClusterColumnErrors(t *testing.T) {
	fit := fitTestModel(t)

	// 列不存在
	_, err := fit.Vcov(CRV1("nope"))
	require.ErrorIs(t, err, ErrInvalidInput)

	// 聚类列缺失值, 在矩阵计算前报错
	Y, X, _ := testData(t)
	m, err := NewModel(Y, X, WithColumns(map[string][]string{
		"clusterA": {"a", "a", "", "b", "b", "b", "c", "c", "c"},
	}))
	require.NoError(t, err)
	f2, err := Fit(m)
	require.NoError(t, err)
	_, err = f2.Vcov(CRV1("clusterA"))
	require.ErrorIs(t, err, ErrNaNInClusterVar)
}

func TestVcovCRV1Manual(t *testing.T) {
	fit := fitTestModel(t)
	vc, err := fit.Vcov(CRV1("firm"))
	require.NoError(t, err)
	require.Equal(t, 3, vc.G)

	// 手算: meat = Σ_g score_g score_g'
	ids := []int{0, 0, 0, 1, 1, 1, 2, 2, 2}
	scores := make([][]float64, 3)
	for g := range scores {
		scores[g] = make([]float64, fit.K)
	}
	for i := 0; i < fit.N; i++ {
		for j := 0; j < fit.K; j++ {
			scores[ids[i]][j] += fit.model.X.At(i, j) * fit.Uhat[i]
		}
	}
	meat := mat.NewDense(fit.K, fit.K, nil)
	for g := 0; g < 3; g++ {
		for a := 0; a < fit.K; a++ {
			for b := 0; b < fit.K; b++ {
				meat.Set(a, b, meat.At(a, b)+scores[g][a]*scores[g][b])
			}
		}
	}
	var inv mat.Dense
	require.NoError(t, inv.Inverse(fit.Hessian))
	ssc := SmallSampleCorrection(fit.sscOptions(), fit.N, fit.K, 3, VCOV_CRV)
	var want mat.Dense
	want.Scale(ssc, sandwich(&inv, meat))
	requireMatInDelta(t, &want, vc.Matrix, 1e-10)
}

func TestVcovCRV1WeightedScores(t *testing.T) {
	// 非单位权重: 簇得分和必须用 w_i·û_i 累加
	Y, X, cols := testData(t)
	w := mat.NewVecDense(9, []float64{2, 1, 0.5, 1.5, 1, 3, 0.25, 2, 1})
	m, err := NewModel(Y, X, WithColumns(cols), WithWeights(w))
	require.NoError(t, err)
	fit, err := Fit(m)
	require.NoError(t, err)

	vc, err := fit.Vcov(CRV1("firm"))
	require.NoError(t, err)

	ids := []int{0, 0, 0, 1, 1, 1, 2, 2, 2}
	scores := make([][]float64, 3)
	unweighted := make([][]float64, 3)
	for g := range scores {
		scores[g] = make([]float64, fit.K)
		unweighted[g] = make([]float64, fit.K)
	}
	for i := 0; i < fit.N; i++ {
		for j := 0; j < fit.K; j++ {
			scores[ids[i]][j] += X.At(i, j) * w.AtVec(i) * fit.Uhat[i]
			unweighted[ids[i]][j] += X.At(i, j) * fit.Uhat[i]
		}
	}
	meat := mat.NewDense(fit.K, fit.K, nil)
	meatU := mat.NewDense(fit.K, fit.K, nil)
	for g := 0; g < 3; g++ {
		for a := 0; a < fit.K; a++ {
			for b := 0; b < fit.K; b++ {
				meat.Set(a, b, meat.At(a, b)+scores[g][a]*scores[g][b])
				meatU.Set(a, b, meatU.At(a, b)+unweighted[g][a]*unweighted[g][b])
			}
		}
	}
	var inv mat.Dense
	require.NoError(t, inv.Inverse(fit.Hessian))
	ssc := SmallSampleCorrection(fit.sscOptions(), fit.N, fit.K, 3, VCOV_CRV)
	var want mat.Dense
	want.Scale(ssc, sandwich(&inv, meat))
	requireMatInDelta(t, &want, vc.Matrix, 1e-10)

	// 丢掉权重因子会得到另一个meat, 两者确实不同
	var wrong mat.Dense
	wrong.Scale(ssc, sandwich(&inv, meatU))
	diff := 0.0
	for a := 0; a < fit.K; a++ {
		for b := 0; b < fit.K; b++ {
			d := wrong.At(a, b) - vc.Matrix.At(a, b)
			diff += d * d
		}
	}
	require.Greater(t, diff, 1e-12)
}

func TestVcovLeverageSaturated(t *testing.T) {
	// 第三个观测独占一个虚拟回归元, 其杠杆率恰为1, HC2/HC3无定义
	X := mat.NewDense(3, 2, []float64{
		1, 0,
		1, 0,
		0, 1,
	})
	Y := mat.NewVecDense(3, []float64{1.2, 0.8, 2.0})
	m, err := NewModel(Y, X)
	require.NoError(t, err)
	fit, err := Fit(m)
	require.NoError(t, err)

	for _, spec := range []VcovSpec{HC2(), HC3()} {
		_, err := fit.Vcov(spec)
		require.ErrorIs(t, err, ErrSingularMatrix)
		require.Contains(t, err.Error(), "leverage")
	}

	// HC1不做杠杆率缩放, 不受此限制
	_, err = fit.Vcov(HC1())
	require.NoError(t, err)
}

func TestVcovIVSandwichManual(t *testing.T) {
	// IV两阶段三明治: bread=inv(X'Z(Z'Z)⁻¹Z'X), Ω经交叉矩变换后夹入
	Y, X, cols := testData(t)
	Z := mat.NewDense(9, 3, nil)
	Z.CloneFrom(X)
	for i := 0; i < 9; i++ {
		Z.Set(i, 2, X.At(i, 2)*0.8+X.At(i, 1)*0.3+0.1*float64(i))
	}
	m, err := NewModel(Y, X, WithInstruments(Z), WithColumns(cols))
	require.NoError(t, err)
	fit, err := Fit(m)
	require.NoError(t, err)

	var ZT mat.Dense
	ZT.CloneFrom(Z.T())
	var tZZ, tZZinv, tZX, tXZ mat.Dense
	tZZ.Mul(&ZT, Z)
	require.NoError(t, tZZinv.Inverse(&tZZ))
	tZX.Mul(&ZT, X)
	tXZ.CloneFrom(tZX.T())

	var m1, m2, bread mat.Dense
	m1.Mul(&tXZ, &tZZinv)
	m2.Mul(&m1, &tZX)
	require.NoError(t, bread.Inverse(&m2))

	// X'Z (Z'Z)⁻¹ Ω (Z'Z)⁻¹ Z'X
	transform := func(omega *mat.Dense) *mat.Dense {
		var a, b, c, out mat.Dense
		a.Mul(&tXZ, &tZZinv)
		b.Mul(&a, omega)
		c.Mul(&b, &tZZinv)
		out.Mul(&c, &tZX)
		return &out
	}

	// HC1: Ω = Σ_i (Z_i û_i)(Z_i û_i)'
	omegaHC := mat.NewDense(fit.K, fit.K, nil)
	for i := 0; i < fit.N; i++ {
		for a := 0; a < fit.K; a++ {
			for b := 0; b < fit.K; b++ {
				omegaHC.Set(a, b, omegaHC.At(a, b)+Z.At(i, a)*Z.At(i, b)*fit.Uhat[i]*fit.Uhat[i])
			}
		}
	}
	sscH := SmallSampleCorrection(fit.sscOptions(), fit.N, fit.K, 1, VCOV_HETERO)
	var wantHC mat.Dense
	wantHC.Scale(sscH, sandwich(&bread, transform(omegaHC)))
	vcHC, err := fit.Vcov(HC1())
	require.NoError(t, err)
	requireMatInDelta(t, &wantHC, vcHC.Matrix, 1e-8)

	// CRV1: Ω = Σ_g s_g s_g', s_g = Σ_{i∈g} Z_i û_i
	ids := []int{0, 0, 0, 1, 1, 1, 2, 2, 2}
	sums := make([][]float64, 3)
	for g := range sums {
		sums[g] = make([]float64, fit.K)
	}
	for i := 0; i < fit.N; i++ {
		for j := 0; j < fit.K; j++ {
			sums[ids[i]][j] += Z.At(i, j) * fit.Uhat[i]
		}
	}
	omegaCRV := mat.NewDense(fit.K, fit.K, nil)
	for g := 0; g < 3; g++ {
		for a := 0; a < fit.K; a++ {
			for b := 0; b < fit.K; b++ {
				omegaCRV.Set(a, b, omegaCRV.At(a, b)+sums[g][a]*sums[g][b])
			}
		}
	}
	sscC := SmallSampleCorrection(fit.sscOptions(), fit.N, fit.K, 3, VCOV_CRV)
	var wantCRV mat.Dense
	wantCRV.Scale(sscC, sandwich(&bread, transform(omegaCRV)))
	vcCRV, err := fit.Vcov(CRV1("firm"))
	require.NoError(t, err)
	requireMatInDelta(t, &wantCRV, vcCRV.Matrix, 1e-8)
}

func TestVcovCRVLabelInvariance(t *testing.T) {
	// 簇身份由分组决定, 与标签取值/簇内顺序无关
	fit := fitTestModel(t)
	base, err := fit.Vcov(CRV1("firm"))
	require.NoError(t, err)

	Y, X, _ := testData(t)
	relabel := map[string][]string{
		"firm": {"z9", "z9", "z9", "k1", "k1", "k1", "m", "m", "m"},
	}
	m2, err := NewModel(Y, X, WithColumns(relabel))
	require.NoError(t, err)
	f2, err := Fit(m2)
	require.NoError(t, err)
	vc2, err := f2.Vcov(CRV1("firm"))
	require.NoError(t, err)
	requireMatInDelta(t, base.Matrix, vc2.Matrix, 1e-12)

	// 簇内重排观测
	perm := []int{2, 0, 1, 5, 3, 4, 8, 6, 7}
	Xp := mat.NewDense(9, 3, nil)
	yp := make([]float64, 9)
	labp := make([]string, 9)
	for to, from := range perm {
		yp[to] = Y.AtVec(from)
		labp[to] = relabel["firm"][from]
		for j := 0; j < 3; j++ {
			Xp.Set(to, j, X.At(from, j))
		}
	}
	m3, err := NewModel(mat.NewVecDense(9, yp), Xp, WithColumns(map[string][]string{"firm": labp}))
	require.NoError(t, err)
	f3, err := Fit(m3)
	require.NoError(t, err)
	vc3, err := f3.Vcov(CRV1("firm"))
	require.NoError(t, err)
	requireMatInDelta(t, base.Matrix, vc3.Matrix, 1e-10)
}

func TestVcovCRV3SingleCluster(t *testing.T) {
	Y, X, _ := testData(t)
	m, err := NewModel(Y, X, WithColumns(map[string][]string{
		"all": {"g", "g", "g", "g", "g", "g", "g", "g", "g"},
	}))
	require.NoError(t, err)
	fit, err := Fit(m)
	require.NoError(t, err)
	_, err = fit.Vcov(CRV3("all"))
	require.ErrorIs(t, err, ErrInvalidInput)
	require.Contains(t, err.Error(), "G > 1")
}

func TestVcovCRV3ManualJackknife(t *testing.T) {
	fit := fitTestModel(t)
	vc, err := fit.Vcov(CRV3("firm"))
	require.NoError(t, err)

	// 手算留一簇jackknife, 全样本β为中心
	ids := []int{0, 0, 0, 1, 1, 1, 2, 2, 2}
	m := fit.model
	ssc := SmallSampleCorrection(fit.sscOptions(), fit.N, fit.K, 3, VCOV_CRV)

	want := mat.NewDense(fit.K, fit.K, nil)
	for g := 0; g < 3; g++ {
		var rowsX []float64
		var rowsY []float64
		for i := 0; i < fit.N; i++ {
			if ids[i] == g {
				continue
			}
			for j := 0; j < fit.K; j++ {
				rowsX = append(rowsX, m.X.At(i, j))
			}
			rowsY = append(rowsY, m.Y.AtVec(i))
		}
		sub := mat.NewDense(len(rowsY), fit.K, rowsX)
		subm, err := NewModel(mat.NewVecDense(len(rowsY), rowsY), sub)
		require.NoError(t, err)
		subfit, err := Fit(subm)
		require.NoError(t, err)
		for a := 0; a < fit.K; a++ {
			da := subfit.Beta[a] - fit.Beta[a]
			for b := 0; b < fit.K; b++ {
				db := subfit.Beta[b] - fit.Beta[b]
				want.Set(a, b, want.At(a, b)+ssc*da*db)
			}
		}
	}
	requireMatInDelta(t, want, vc.Matrix, 1e-8)
}

func TestVcovCRV3RefitCallback(t *testing.T) {
	// 固定效应模型走注入回调的通用路径
	Y, X, cols := testData(t)
	fe := FixefColumn{Name: "grp", Labels: cols["firm"]}

	calls := 0
	refit := func(keep []bool) ([]float64, error) {
		calls++
		var rowsX, rowsY []float64
		nkeep := 0
		for i, k := range keep {
			if !k {
				continue
			}
			nkeep++
			for j := 0; j < 3; j++ {
				rowsX = append(rowsX, X.At(i, j))
			}
			rowsY = append(rowsY, Y.AtVec(i))
		}
		sub, err := NewModel(mat.NewVecDense(nkeep, rowsY), mat.NewDense(nkeep, 3, rowsX))
		if err != nil {
			return nil, err
		}
		subfit, err := Fit(sub)
		if err != nil {
			return nil, err
		}
		return subfit.Beta, nil
	}

	m, err := NewModel(Y, X, WithColumns(cols), WithFixef(fe), WithRefit(refit))
	require.NoError(t, err)
	fit, err := Fit(m)
	require.NoError(t, err)

	vc, err := fit.Vcov(CRV3("firm"))
	require.NoError(t, err)
	require.Equal(t, 3, calls)

	// 回调做的是与快路径相同的OLS, 结果应一致
	plain := fitTestModel(t)
	want, err := plain.Vcov(CRV3("firm"))
	require.NoError(t, err)
	requireMatInDelta(t, want.Matrix, vc.Matrix, 1e-8)

	// 未注入回调时报错
	m2, err := NewModel(Y, X, WithColumns(cols), WithFixef(fe))
	require.NoError(t, err)
	fit2, err := Fit(m2)
	require.NoError(t, err)
	_, err = fit2.Vcov(CRV3("firm"))
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseVcov(t *testing.T) {
	spec, err := ParseVcovTag("hetero")
	require.NoError(t, err)
	require.Equal(t, VCOV_HETERO, spec.Kind)
	require.Equal(t, DETAIL_HC1, spec.Detail)

	_, err = ParseVcovTag("HC9")
	require.ErrorIs(t, err, ErrInvalidInput)

	spec, err = ParseVcovMap(map[string]string{"CRV1": "firm"})
	require.NoError(t, err)
	require.True(t, spec.IsClustered)
	require.Equal(t, "firm", spec.ClusterVar)

	_, err = ParseVcovMap(map[string]string{"CRV2": "firm"})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = ParseVcovMap(map[string]string{"CRV1": "a", "CRV3": "b"})
	require.ErrorIs(t, err, ErrInvalidInput)

	// 列表形式: 单元素可用, 多维聚类直接拒绝, 空列表是非法输入而非多维请求
	spec, err = ParseVcovList([]string{"firm"})
	require.NoError(t, err)
	require.Equal(t, DETAIL_CRV1, spec.Detail)
	_, err = ParseVcovList([]string{"firm", "year"})
	require.ErrorIs(t, err, ErrVcovNotSupported)
	_, err = ParseVcovList(nil)
	require.ErrorIs(t, err, ErrInvalidInput)
}
