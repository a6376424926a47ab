package linreg

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// FixefColumn 固定效应标签列: 列名 + 每个观测的水平标签
type FixefColumn struct {
	Name   string
	Labels []string
}

// RefitFunc CRV3+固定效应时注入的回调: 在keep[i]==true的子样本上重估, 返回系数
// 由外层编排层提供, 避免对编排层的反向依赖
type RefitFunc func(keep []bool) ([]float64, error)

// Model 单个回归问题的全部输入, 构造后不再修改
type Model struct {
	Y       *mat.VecDense // N×1 因变量
	X       *mat.Dense    // N×k 设计矩阵
	Z       *mat.Dense    // N×k 工具变量矩阵, 非IV时等于X
	Weights *mat.VecDense // N×1 权重, 缺省全1

	Family    Family
	HasFixef  bool
	FixefCols []FixefColumn       // 固定效应标签列, HasFixef时必填
	Columns   map[string][]string // 数据集中可引用的标签列(聚类列从这里取)
	CoefNames []string            // 系数名, 缺省 x0..x{k-1}

	Refit  RefitFunc
	SSCOpt *SSCOptions // 小样本修正配置, nil时用全局config缺省
}

type ModelOption func(*Model)

// WithInstruments 声明IV估计, Z与X列数必须一致
func WithInstruments(Z *mat.Dense) ModelOption {
	return func(m *Model) {
		m.Z = Z
		m.Family = FAMILY_IV
	}
}

func WithWeights(w *mat.VecDense) ModelOption {
	return func(m *Model) { m.Weights = w }
}

func WithFamily(f Family) ModelOption {
	return func(m *Model) { m.Family = f }
}

// WithFixef 声明固定效应及其标签列
func WithFixef(cols ...FixefColumn) ModelOption {
	return func(m *Model) {
		m.HasFixef = true
		m.FixefCols = cols
	}
}

// WithColumns 附加可引用的标签列(聚类变量)
func WithColumns(cols map[string][]string) ModelOption {
	return func(m *Model) { m.Columns = cols }
}

func WithCoefNames(names []string) ModelOption {
	return func(m *Model) { m.CoefNames = names }
}

// WithRefit 注入CRV3+固定效应路径的整体重估回调
func WithRefit(fn RefitFunc) ModelOption {
	return func(m *Model) { m.Refit = fn }
}

func WithSSC(o SSCOptions) ModelOption {
	return func(m *Model) { m.SSCOpt = &o }
}

// NewModel 输入校验在任何矩阵计算之前完成
func NewModel(Y *mat.VecDense, X *mat.Dense, opts ...ModelOption) (*Model, error) {
	if Y == nil || X == nil {
		return nil, fmt.Errorf("%w: Y and X must be non-nil", ErrInvalidInput)
	}
	n, k := X.Dims()
	if n == 0 || k == 0 {
		return nil, fmt.Errorf("%w: X must be non-empty, got %dx%d", ErrInvalidInput, n, k)
	}
	if Y.Len() != n {
		return nil, fmt.Errorf("%w: Y has %d rows, X has %d", ErrInvalidInput, Y.Len(), n)
	}

	m := &Model{Y: Y, X: X, Z: X, Family: FAMILY_OLS}
	for _, opt := range opts {
		opt(m)
	}

	if m.Z == nil {
		m.Z = X
	}
	zn, zk := m.Z.Dims()
	if zn != n {
		return nil, fmt.Errorf("%w: Z has %d rows, X has %d", ErrInvalidInput, zn, n)
	}
	if zk != k {
		return nil, fmt.Errorf("%w: Z has %d columns, X has %d", ErrInvalidInput, zk, k)
	}
	if m.Family == FAMILY_IV && m.Z == X {
		return nil, fmt.Errorf("%w: IV family requires an instrument matrix", ErrInvalidInput)
	}

	if m.Weights == nil {
		ones := make([]float64, n)
		for i := range ones {
			ones[i] = 1.0
		}
		m.Weights = mat.NewVecDense(n, ones)
	} else if m.Weights.Len() != n {
		return nil, fmt.Errorf("%w: weights has %d rows, X has %d", ErrInvalidInput, m.Weights.Len(), n)
	}

	if m.CoefNames == nil {
		names := make([]string, k)
		for i := range names {
			names[i] = fmt.Sprintf("x%d", i)
		}
		m.CoefNames = names
	} else if len(m.CoefNames) != k {
		return nil, fmt.Errorf("%w: got %d coefficient names for %d columns", ErrInvalidInput, len(m.CoefNames), k)
	}

	if _, ok := familyCapsTable[m.Family]; !ok {
		return nil, fmt.Errorf("%w: unknown model family %v", ErrInvalidInput, m.Family)
	}

	if m.HasFixef {
		if len(m.FixefCols) == 0 {
			return nil, fmt.Errorf("%w: fixed effects declared without label columns", ErrInvalidInput)
		}
		for _, fc := range m.FixefCols {
			if len(fc.Labels) != n {
				return nil, fmt.Errorf("%w: fixef column %s has %d labels for %d observations", ErrInvalidInput, fc.Name, len(fc.Labels), n)
			}
		}
	}
	for name, col := range m.Columns {
		if len(col) != n {
			return nil, fmt.Errorf("%w: column %s has %d rows, X has %d", ErrInvalidInput, name, len(col), n)
		}
	}

	return m, nil
}

func (m *Model) caps() familyCaps {
	return familyCapsTable[m.Family]
}

func (m *Model) isIV() bool {
	return m.Family == FAMILY_IV
}
