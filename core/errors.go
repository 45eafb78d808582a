package core

import (
	"errors"
	"fmt"
)

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message）
//   - 可选携带底层错误（Err），支持 errors.Is / errors.As 穿透
//
// 使用场景：
//   - Store 错误：NOT_FOUND, NOT_SUPPORTED
//   - 推荐生成失败：RECOMMENDATION_GENERATION_FAILED
//   - 输入错误：INVALID_INPUT
type DomainError struct {
	Code    string // 错误代码（如 "NOT_FOUND", "INVALID_INPUT"）
	Message string // 错误消息
	Module  string // 模块名称（如 "store", "recommend", "preference"）
	Err     error  // 底层错误（可选）
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is 按 Module + Code 判等，使 errors.Is(err, ErrStoreNotFound) 对包装后的错误同样成立。
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Module == t.Module && e.Code == t.Code
}

// IsDomainError 检查错误链中是否存在 DomainError
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取错误链中的第一个 DomainError，如果不存在则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// WrapDomainError 创建携带底层错误的领域错误
func WrapDomainError(module, code, message string, err error) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// 错误代码常量
const (
	ErrorCodeNotFound         = "NOT_FOUND"                        // 资源不存在
	ErrorCodeNotSupported     = "NOT_SUPPORTED"                    // 操作不支持
	ErrorCodeUnavailable      = "UNAVAILABLE"                      // 服务不可用
	ErrorCodeInvalidInput     = "INVALID_INPUT"                    // 输入无效
	ErrorCodeInternalError    = "INTERNAL_ERROR"                   // 内部错误
	ErrorCodeGenerationFailed = "RECOMMENDATION_GENERATION_FAILED" // 推荐生成失败（未写入任何部分结果）
)

// 模块名称常量
const (
	ModuleStore       = "store"       // 存储模块
	ModuleFilter      = "filter"      // 属性过滤
	ModuleRecommend   = "recommend"   // 混合推荐
	ModulePreference  = "preference"  // 偏好更新
	ModuleInteraction = "interaction" // 交互记录
	ModuleRegistry    = "registry"    // 特征注册表
	ModuleProfile     = "profile"     // 注册与资料修改
)

// NewGenerationFailed 把任意阶段的失败包装成统一的推荐生成失败错误。
func NewGenerationFailed(stage string, err error) *DomainError {
	return WrapDomainError(ModuleRecommend, ErrorCodeGenerationFailed,
		"recommend: generation failed at stage "+stage, err)
}

// NewInvalidInput 创建 INVALID_INPUT 错误
func NewInvalidInput(module, message string) *DomainError {
	return NewDomainError(module, ErrorCodeInvalidInput, message)
}

func hasCode(err error, code string) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == code
	}
	return false
}

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool {
	return hasCode(err, ErrorCodeNotFound)
}

// IsNotSupported 检查错误是否为 NOT_SUPPORTED
func IsNotSupported(err error) bool {
	return hasCode(err, ErrorCodeNotSupported)
}

// IsUnavailable 检查错误是否为 UNAVAILABLE
func IsUnavailable(err error) bool {
	return hasCode(err, ErrorCodeUnavailable)
}

// IsInvalidInput 检查错误是否为 INVALID_INPUT
func IsInvalidInput(err error) bool {
	return hasCode(err, ErrorCodeInvalidInput)
}

// IsGenerationFailed 检查错误是否为推荐生成失败
func IsGenerationFailed(err error) bool {
	return hasCode(err, ErrorCodeGenerationFailed)
}
