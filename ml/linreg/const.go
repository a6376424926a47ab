package linreg

// Family 模型族, 决定各推断方式是否可用
type Family int

const (
	FAMILY_OLS     Family = iota // "ols"
	FAMILY_IV                    // "iv"
	FAMILY_POISSON               // "poisson"
	FAMILY_ERROR                 // "ERROR"
)

func (f Family) String() string {
	switch f {
	case FAMILY_OLS:
		return "ols"
	case FAMILY_IV:
		return "iv"
	case FAMILY_POISSON:
		return "poisson"
	default:
		return "ERROR"
	}
}

func GetMyFamily(s string) Family {
	switch s {
	case "ols":
		return FAMILY_OLS
	case "iv":
		return FAMILY_IV
	case "poisson":
		return FAMILY_POISSON
	default:
		return FAMILY_ERROR
	}
}

// familyCaps 各模型族的能力表, vcov/inference分支查这里而不是判断类型
type familyCaps struct {
	supportIID  bool // 是否支持iid推断
	supportCRV3 bool // 是否支持CRV3 jackknife
	useTDist    bool // t分布(线性模型) or 正态(非线性族)
}

var familyCapsTable = map[Family]familyCaps{
	FAMILY_OLS:     {supportIID: true, supportCRV3: true, useTDist: true},
	FAMILY_IV:      {supportIID: true, supportCRV3: false, useTDist: true},
	FAMILY_POISSON: {supportIID: false, supportCRV3: false, useTDist: false},
}

// VcovKind vcov大类
type VcovKind int

const (
	VCOV_IID    VcovKind = iota // "iid"
	VCOV_HETERO                 // "hetero"
	VCOV_CRV                    // "CRV"
)

func (k VcovKind) String() string {
	switch k {
	case VCOV_IID:
		return "iid"
	case VCOV_HETERO:
		return "hetero"
	case VCOV_CRV:
		return "CRV"
	default:
		return "ERROR"
	}
}

// VcovDetail vcov细类
type VcovDetail int

const (
	DETAIL_IID  VcovDetail = iota // "iid"
	DETAIL_HC1                    // "HC1", "hetero"等价
	DETAIL_HC2                    // "HC2"
	DETAIL_HC3                    // "HC3"
	DETAIL_CRV1                   // "CRV1"
	DETAIL_CRV3                   // "CRV3"
)

func (d VcovDetail) String() string {
	switch d {
	case DETAIL_IID:
		return "iid"
	case DETAIL_HC1:
		return "HC1"
	case DETAIL_HC2:
		return "HC2"
	case DETAIL_HC3:
		return "HC3"
	case DETAIL_CRV1:
		return "CRV1"
	case DETAIL_CRV3:
		return "CRV3"
	default:
		return "ERROR"
	}
}

const (
	PREDICT_LINK     = "link"
	PREDICT_RESPONSE = "response"
)
