package linreg

import "fmt"

// VcovSpec 在边界处一次性解析出的推断规格, 内部逻辑不再碰原始字符串
type VcovSpec struct {
	Kind        VcovKind
	Detail      VcovDetail
	IsClustered bool
	ClusterVar  string // 聚类列名, 非聚类时为空
}

// IID 构造iid推断规格
func IID() VcovSpec {
	return VcovSpec{Kind: VCOV_IID, Detail: DETAIL_IID}
}

// Hetero 异方差稳健(等价HC1)
func Hetero() VcovSpec {
	return VcovSpec{Kind: VCOV_HETERO, Detail: DETAIL_HC1}
}

func HC1() VcovSpec { return VcovSpec{Kind: VCOV_HETERO, Detail: DETAIL_HC1} }
func HC2() VcovSpec { return VcovSpec{Kind: VCOV_HETERO, Detail: DETAIL_HC2} }
func HC3() VcovSpec { return VcovSpec{Kind: VCOV_HETERO, Detail: DETAIL_HC3} }

// CRV1 一维聚类稳健(解析式)
func CRV1(clusterVar string) VcovSpec {
	return VcovSpec{Kind: VCOV_CRV, Detail: DETAIL_CRV1, IsClustered: true, ClusterVar: clusterVar}
}

// CRV3 一维聚类jackknife
func CRV3(clusterVar string) VcovSpec {
	return VcovSpec{Kind: VCOV_CRV, Detail: DETAIL_CRV3, IsClustered: true, ClusterVar: clusterVar}
}

// ParseVcovTag 解析字符串标签: iid / hetero / HC1 / HC2 / HC3
func ParseVcovTag(tag string) (VcovSpec, error) {
	switch tag {
	case "iid":
		return IID(), nil
	case "hetero", "HC1":
		return HC1(), nil
	case "HC2":
		return HC2(), nil
	case "HC3":
		return HC3(), nil
	default:
		return VcovSpec{}, fmt.Errorf("%w: vcov tag must be iid, hetero, HC1, HC2 or HC3, got %q", ErrInvalidInput, tag)
	}
}

// ParseVcovMap 解析 {CRV1: 列名} / {CRV3: 列名} 形式的规格, 必须恰好一个条目
func ParseVcovMap(m map[string]string) (VcovSpec, error) {
	if len(m) != 1 {
		return VcovSpec{}, fmt.Errorf("%w: vcov map must contain exactly one entry, got %d", ErrInvalidInput, len(m))
	}
	for kind, col := range m {
		if col == "" {
			return VcovSpec{}, fmt.Errorf("%w: empty cluster variable name", ErrInvalidInput)
		}
		switch kind {
		case "CRV1":
			return CRV1(col), nil
		case "CRV3":
			return CRV3(col), nil
		default:
			return VcovSpec{}, fmt.Errorf("%w: vcov map key must be CRV1 or CRV3, got %q", ErrInvalidInput, kind)
		}
	}
	return VcovSpec{}, fmt.Errorf("%w: empty vcov map", ErrInvalidInput)
}

// ParseVcovList 列表形式预留给多维聚类; 基础协方差层未实现多维组合, 仅接受单元素
func ParseVcovList(cols []string) (VcovSpec, error) {
	switch len(cols) {
	case 0:
		return VcovSpec{}, fmt.Errorf("%w: empty cluster variable list", ErrInvalidInput)
	case 1:
		return CRV1(cols[0]), nil
	default:
		return VcovSpec{}, fmt.Errorf("%w: multi-way clustering is not implemented, got %d cluster variables", ErrVcovNotSupported, len(cols))
	}
}
