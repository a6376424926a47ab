package linreg

import "errors"

// 错误哨兵, 调用方用 errors.Is 区分
var (
	// ErrInvalidInput 输入校验失败(维度/类型/参数非法)
	ErrInvalidInput = errors.New("linreg: invalid input")
	// ErrVcovNotSupported 请求的vcov与模型组合不支持(不降级, 直接拒绝)
	ErrVcovNotSupported = errors.New("linreg: vcov type not supported")
	// ErrNaNInClusterVar 聚类列存在缺失值, 需调用方先清洗数据
	ErrNaNInClusterVar = errors.New("linreg: missing values in cluster variable")
	// ErrSingularMatrix 矩阵不可逆, 估计过程终止
	ErrSingularMatrix = errors.New("linreg: singular matrix")
	// ErrNoFixef 模型未声明固定效应
	ErrNoFixef = errors.New("linreg: model has no fixed effects")
)
