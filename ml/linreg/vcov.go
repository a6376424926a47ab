package linreg

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// VcovResult 协方差估计阶段输出
type VcovResult struct {
	Matrix *mat.Dense // k×k 对称vcov矩阵
	SSC    float64    // 小样本修正标量(已乘入Matrix)
	Kind   VcovKind
	Detail VcovDetail

	IsClustered bool
	ClusterVar  string
	G           int // 聚类数, 非聚类为1
}

// Vcov 按推断规格计算vcov矩阵
// 不支持的组合直接拒绝, 不降级; 奇异矩阵致命
func (f *FitResult) Vcov(spec VcovSpec) (*VcovResult, error) {
	m := f.model
	caps := m.caps()

	// 组合校验, 全部在矩阵计算之前
	if spec.Kind == VCOV_HETERO && (spec.Detail == DETAIL_HC2 || spec.Detail == DETAIL_HC3) {
		if m.HasFixef {
			return nil, fmt.Errorf("%w: %v inference is not supported for models with fixed effects", ErrVcovNotSupported, spec.Detail)
		}
		if m.isIV() {
			return nil, fmt.Errorf("%w: %v inference is not supported for IV estimation", ErrVcovNotSupported, spec.Detail)
		}
	}
	if spec.Detail == DETAIL_CRV3 {
		if m.isIV() {
			return nil, fmt.Errorf("%w: CRV3 inference is not supported for IV estimation", ErrVcovNotSupported)
		}
		if !caps.supportCRV3 {
			return nil, fmt.Errorf("%w: CRV3 inference is not supported for %v models", ErrVcovNotSupported, m.Family)
		}
	}
	if spec.Kind == VCOV_IID && !caps.supportIID {
		return nil, fmt.Errorf("%w: iid inference is not supported for %v models", ErrVcovNotSupported, m.Family)
	}

	// 聚类列校验与因子化, 缺失值直接报错(不静默丢弃)
	var clusterIDs []int
	G := 1
	if spec.IsClustered {
		col, ok := m.Columns[spec.ClusterVar]
		if !ok {
			return nil, fmt.Errorf("%w: cluster variable %q not found in model columns", ErrInvalidInput, spec.ClusterVar)
		}
		var err error
		clusterIDs, G, err = factorizeClusters(spec.ClusterVar, col)
		if err != nil {
			return nil, err
		}
	}

	sscOpt := f.sscOptions()

	// bread: 非IV为信息矩阵的逆; IV用两阶段矩结构
	bread, err := f.bread()
	if err != nil {
		return nil, err
	}

	res := &VcovResult{
		Kind:        spec.Kind,
		Detail:      spec.Detail,
		IsClustered: spec.IsClustered,
		ClusterVar:  spec.ClusterVar,
		G:           G,
	}

	switch spec.Kind {
	case VCOV_IID:
		res.SSC = SmallSampleCorrection(sscOpt, f.N, f.K, 1, VCOV_IID)
		// σ² = Σû² / (N-1); meat ∝ 信息矩阵, 塌缩为标量形式
		sigma2 := 0.0
		for _, u := range f.Uhat {
			sigma2 += u * u
		}
		sigma2 /= float64(f.N - 1)
		var v mat.Dense
		v.Scale(res.SSC*sigma2, bread)
		res.Matrix = &v

	case VCOV_HETERO:
		res.SSC = SmallSampleCorrection(sscOpt, f.N, f.K, 1, VCOV_HETERO)
		scores, err := f.transformedScores(spec.Detail)
		if err != nil {
			return nil, err
		}
		// meat = S'S (三明治)
		var ss mat.Dense
		ss.Mul(scores.T(), scores)
		meat := &ss
		if m.isIV() {
			// Ω经工具变量交叉矩变换后再夹进bread
			meat = f.ivMeat(meat)
		}
		var v mat.Dense
		v.Scale(res.SSC, sandwich(bread, meat))
		res.Matrix = &v

	case VCOV_CRV:
		res.SSC = SmallSampleCorrection(sscOpt, f.N, f.K, G, VCOV_CRV)
		switch spec.Detail {
		case DETAIL_CRV1:
			meat := f.crv1Meat(clusterIDs, G)
			if m.isIV() {
				meat = f.ivMeat(meat)
			}
			var v mat.Dense
			v.Scale(res.SSC, sandwich(bread, meat))
			res.Matrix = &v
		case DETAIL_CRV3:
			v, err := f.crv3Vcov(clusterIDs, G, res.SSC)
			if err != nil {
				return nil, err
			}
			res.Matrix = v
		default:
			return nil, fmt.Errorf("%w: unknown CRV detail %v", ErrInvalidInput, spec.Detail)
		}

	default:
		return nil, fmt.Errorf("%w: unknown vcov kind %v", ErrInvalidInput, spec.Kind)
	}

	return res, nil
}

func (f *FitResult) sscOptions() SSCOptions {
	if f.model.SSCOpt != nil {
		return *f.model.SSCOpt
	}
	return currentConfig().SSC
}

// bread = inverse(Z'Z), IV时 inverse(X'Z (Z'Z)^(-1) Z'X)
func (f *FitResult) bread() (*mat.Dense, error) {
	if f.model.isIV() {
		var t1, t2 mat.Dense
		t1.Mul(f.tXZ, f.tZZinv)
		t2.Mul(&t1, f.tZX)
		var inv mat.Dense
		if err := inv.Inverse(&t2); err != nil {
			return nil, fmt.Errorf("%w: IV bread matrix is not invertible: %v", ErrSingularMatrix, err)
		}
		return &inv, nil
	}
	var inv mat.Dense
	if err := inv.Inverse(f.Hessian); err != nil {
		return nil, fmt.Errorf("%w: hessian is not invertible: %v", ErrSingularMatrix, err)
	}
	return &inv, nil
}

// transformedScores HC1返回原始得分; HC2/HC3按杠杆率缩放
// 杠杆率 h_i = X_i · ((X'X)^(-1) X_i')
func (f *FitResult) transformedScores(detail VcovDetail) (*mat.Dense, error) {
	if detail == DETAIL_HC1 {
		return f.Scores, nil
	}

	m := f.model
	// L = X (X'X)^(-1), 逐行点积得hat矩阵对角
	var L mat.Dense
	L.Mul(m.X, f.tZXinv)

	out := mat.NewDense(f.N, f.K, nil)
	for i := 0; i < f.N; i++ {
		h := 0.0
		for j := 0; j < f.K; j++ {
			h += m.X.At(i, j) * L.At(i, j)
		}
		if h >= 1 {
			// 近完美拟合/重复行会令 1-h → 0
			return nil, fmt.Errorf("%w: leverage >= 1 at observation %d, %v adjustment undefined", ErrSingularMatrix, i, detail)
		}
		var scale float64
		if detail == DETAIL_HC2 {
			scale = 1.0 / math.Sqrt(1.0-h)
		} else {
			scale = 1.0 / (1.0 - h)
		}
		for j := 0; j < f.K; j++ {
			out.Set(i, j, f.Scores.At(i, j)*scale)
		}
	}
	return out, nil
}

// ivMeat 把Ω夹进工具变量交叉矩: X'Z (Z'Z)^(-1) Ω (Z'Z)^(-1) Z'X
func (f *FitResult) ivMeat(omega *mat.Dense) *mat.Dense {
	var t1, t2, t3, out mat.Dense
	t1.Mul(f.tXZ, f.tZZinv)
	t2.Mul(&t1, omega)
	t3.Mul(&t2, f.tZZinv)
	out.Mul(&t3, f.tZX)
	return &out
}

// crv1Meat 按簇累加加权得分和的外积: meat = Σ_g score_g score_g'
func (f *FitResult) crv1Meat(clusterIDs []int, G int) *mat.Dense {
	m := f.model
	// score_g = Σ_{i∈g} Z_i' · (w_i û_i)
	scoreG := make([][]float64, G)
	for g := range scoreG {
		scoreG[g] = make([]float64, f.K)
	}
	for i := 0; i < f.N; i++ {
		wu := m.Weights.AtVec(i) * f.Uhat[i]
		row := scoreG[clusterIDs[i]]
		for j := 0; j < f.K; j++ {
			row[j] += m.Z.At(i, j) * wu
		}
	}

	meat := mat.NewDense(f.K, f.K, nil)
	for g := 0; g < G; g++ {
		s := scoreG[g]
		for a := 0; a < f.K; a++ {
			for b := 0; b < f.K; b++ {
				meat.Set(a, b, meat.At(a, b)+s[a]*s[b])
			}
		}
	}
	return meat
}

// crv3Vcov 留一簇jackknife: V = ssc · Σ_g (β_(-g) - β)(β_(-g) - β)'
// 中心取全样本估计而非jackknife均值
func (f *FitResult) crv3Vcov(clusterIDs []int, G int, ssc float64) (*mat.Dense, error) {
	if G <= 1 {
		return nil, fmt.Errorf("%w: CRV3 requires G > 1 clusters, got G=%d", ErrInvalidInput, G)
	}

	m := f.model
	betaJack := make([][]float64, G)

	if !m.HasFixef {
		// 快路径: 预计算X'X/X'Y, 逐簇降秩后解正规方程
		var XT mat.Dense
		XT.CloneFrom(m.X.T())
		var tXX mat.Dense
		tXX.Mul(&XT, m.X)
		var tXy mat.VecDense
		tXy.MulVec(&XT, m.Y)

		// 每簇的 X_g'X_g 与 X_g'Y_g
		tXgXg := make([]*mat.Dense, G)
		tXgy := make([][]float64, G)
		for g := 0; g < G; g++ {
			tXgXg[g] = mat.NewDense(f.K, f.K, nil)
			tXgy[g] = make([]float64, f.K)
		}
		for i := 0; i < f.N; i++ {
			g := clusterIDs[i]
			y := m.Y.AtVec(i)
			for a := 0; a < f.K; a++ {
				xa := m.X.At(i, a)
				tXgy[g][a] += xa * y
				for b := 0; b < f.K; b++ {
					tXgXg[g].Set(a, b, tXgXg[g].At(a, b)+xa*m.X.At(i, b))
				}
			}
		}

		for g := 0; g < G; g++ {
			var A mat.Dense
			A.Sub(&tXX, tXgXg[g])
			pinv, err := pseudoInverse(&A)
			if err != nil {
				return nil, err
			}
			b := make([]float64, f.K)
			for a := 0; a < f.K; a++ {
				b[a] = tXy.AtVec(a) - tXgy[g][a]
			}
			var bg mat.VecDense
			bg.MulVec(pinv, mat.NewVecDense(f.K, b))
			betaJack[g] = vecToSlice(&bg)
		}
	} else {
		// 通用路径: 去掉簇g整体重估, 由注入的回调完成
		if m.Refit == nil {
			return nil, fmt.Errorf("%w: CRV3 with fixed effects requires a refit callback (WithRefit)", ErrInvalidInput)
		}
		for g := 0; g < G; g++ {
			keep := make([]bool, f.N)
			for i := 0; i < f.N; i++ {
				keep[i] = clusterIDs[i] != g
			}
			bg, err := m.Refit(keep)
			if err != nil {
				return nil, fmt.Errorf("CRV3 refit for cluster %d: %w", g, err)
			}
			if len(bg) != f.K {
				return nil, fmt.Errorf("%w: refit returned %d coefficients, want %d", ErrInvalidInput, len(bg), f.K)
			}
			betaJack[g] = bg
		}
	}

	v := mat.NewDense(f.K, f.K, nil)
	for g := 0; g < G; g++ {
		for a := 0; a < f.K; a++ {
			da := betaJack[g][a] - f.Beta[a]
			for b := 0; b < f.K; b++ {
				db := betaJack[g][b] - f.Beta[b]
				v.Set(a, b, v.At(a, b)+da*db)
			}
		}
	}
	v.Scale(ssc, v)
	return v, nil
}

// factorizeClusters 标签→簇编号, 按首次出现顺序编号
// 簇身份由标签的相等关系决定, 与标签取值本身无关
func factorizeClusters(name string, labels []string) ([]int, int, error) {
	ids := make([]int, len(labels))
	index := make(map[string]int)
	for i, lab := range labels {
		if lab == "" || lab == "NaN" || lab == "nan" {
			return nil, 0, fmt.Errorf("%w: column %q has a missing value at row %d, please drop missing values before estimation", ErrNaNInClusterVar, name, i)
		}
		id, ok := index[lab]
		if !ok {
			id = len(index)
			index[lab] = id
		}
		ids[i] = id
	}
	return ids, len(index), nil
}
