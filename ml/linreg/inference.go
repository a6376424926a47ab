package linreg

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"
)

// CoefRow 单个系数的推断汇总
type CoefRow struct {
	Estimate float64 // 点估计
	StdError float64 // 标准误
	TValue   float64 // t/z统计量
	PValue   float64 // 双尾p值
	CILower  float64
	CIUpper  float64
}

// InferenceResult 推断汇总阶段输出, 只依赖vcov与β, 与重估计无关
type InferenceResult struct {
	CoefNames []string
	Estimate  []float64
	StdError  []float64
	TStat     []float64
	PValue    []float64
	CILower   []float64
	CIUpper   []float64

	Alpha float64 // 置信水平
	DF    float64 // 自由度: iid/hetero为N-k, 聚类为G-1
}

// Inference 由vcov矩阵与系数计算标准误/t统计量/p值/置信区间
// alpha<=0时取全局config缺省(0.95)
func Inference(f *FitResult, vc *VcovResult, alpha float64) (*InferenceResult, error) {
	if vc == nil {
		return nil, fmt.Errorf("%w: nil vcov result", ErrInvalidInput)
	}
	if alpha <= 0 {
		alpha = currentConfig().Alpha
	}
	if alpha >= 1 {
		return nil, fmt.Errorf("%w: confidence level must be in (0,1), got %v", ErrInvalidInput, alpha)
	}

	k := f.K
	var df float64
	if vc.Kind == VCOV_CRV {
		df = float64(vc.G - 1)
	} else {
		df = float64(f.N - f.K)
	}
	if df <= 0 {
		return nil, fmt.Errorf("%w: degrees of freedom %v <= 0", ErrInvalidInput, df)
	}

	res := &InferenceResult{
		CoefNames: append([]string(nil), f.model.CoefNames...),
		Estimate:  append([]float64(nil), f.Beta...),
		StdError:  make([]float64, k),
		TStat:     make([]float64, k),
		PValue:    make([]float64, k),
		CILower:   make([]float64, k),
		CIUpper:   make([]float64, k),
		Alpha:     alpha,
		DF:        df,
	}

	// 线性族用t分布, 共享此路径的非线性族用标准正态
	useT := f.model.caps().useTDist
	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	ndist := distuv.Normal{Mu: 0, Sigma: 1}

	var z float64
	if useT {
		z = math.Abs(tdist.Quantile((1 - alpha) / 2))
	} else {
		z = math.Abs(ndist.Quantile((1 - alpha) / 2))
	}

	for i := 0; i < k; i++ {
		se := math.Sqrt(vc.Matrix.At(i, i))
		res.StdError[i] = se

		// 完美拟合时SE=0, 不产生NaN: β≠0取±Inf, β=0取0
		var t float64
		switch {
		case se > 0:
			t = f.Beta[i] / se
		case f.Beta[i] == 0:
			t = 0
		default:
			t = math.Inf(1)
			if f.Beta[i] < 0 {
				t = math.Inf(-1)
			}
		}
		res.TStat[i] = t

		if useT {
			res.PValue[i] = 2 * tdist.Survival(math.Abs(t))
		} else {
			res.PValue[i] = 2 * ndist.Survival(math.Abs(t))
		}

		res.CILower[i] = f.Beta[i] - z*se
		res.CIUpper[i] = f.Beta[i] + z*se
	}

	return res, nil
}

// Tidy 系数名索引的汇总表
func (r *InferenceResult) Tidy() map[string]CoefRow {
	out := make(map[string]CoefRow, len(r.CoefNames))
	for i, name := range r.CoefNames {
		out[name] = CoefRow{
			Estimate: r.Estimate[i],
			StdError: r.StdError[i],
			TValue:   r.TStat[i],
			PValue:   r.PValue[i],
			CILower:  r.CILower[i],
			CIUpper:  r.CIUpper[i],
		}
	}
	return out
}

func (r *InferenceResult) Coef() map[string]float64   { return r.column(r.Estimate) }
func (r *InferenceResult) SE() map[string]float64     { return r.column(r.StdError) }
func (r *InferenceResult) TValue() map[string]float64 { return r.column(r.TStat) }
func (r *InferenceResult) P() map[string]float64      { return r.column(r.PValue) }

// ConfInt 系数名 → [下界, 上界]
func (r *InferenceResult) ConfInt() map[string][2]float64 {
	out := make(map[string][2]float64, len(r.CoefNames))
	for i, name := range r.CoefNames {
		out[name] = [2]float64{r.CILower[i], r.CIUpper[i]}
	}
	return out
}

func (r *InferenceResult) column(v []float64) map[string]float64 {
	out := make(map[string]float64, len(r.CoefNames))
	for i, name := range r.CoefNames {
		out[name] = v[i]
	}
	return out
}

// String 按R风格输出系数表
func (r *InferenceResult) String() string {
	lo := (1 - r.Alpha) / 2 * 100
	hi := (1 - (1-r.Alpha)/2) * 100
	var b strings.Builder
	fmt.Fprintf(&b, "%-16s %12s %12s %10s %10s %12s %12s\n",
		"Coefficient", "Estimate", "Std. Error", "t value", "Pr(>|t|)",
		fmt.Sprintf("%.1f %%", lo), fmt.Sprintf("%.1f %%", hi))
	for i := range r.CoefNames {
		fmt.Fprintf(&b, "%-16s %12.6g %12.6g %10.4g %10.4g %12.6g %12.6g\n",
			r.CoefNames[i], r.Estimate[i], r.StdError[i], r.TStat[i], r.PValue[i], r.CILower[i], r.CIUpper[i])
	}
	return b.String()
}
