package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 启动期配置错误（chunk size/overlap等），进程级致命
	ErrCodeConfiguration ErrorCode = "CONFIGURATION_ERROR"

	// 摄取错误：源文件不可读/不可解析
	ErrCodeExtraction ErrorCode = "EXTRACTION_ERROR"

	// 向量后端错误
	ErrCodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE" // 连接/超时，可重试
	ErrCodeBackendRejected    ErrorCode = "BACKEND_REJECTED"    // 请求非法，不重试

	// 数据完整性错误：payload缺少必需字段
	ErrCodeDataIntegrity ErrorCode = "DATA_INTEGRITY"

	// 通用错误
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrCodeInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrCodeInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrCodeEmbedding      ErrorCode = "EMBEDDING_ERROR"
)

// ErrorType 错误类型
type ErrorType int

const (
	ErrorTypeSystem ErrorType = iota
	ErrorTypeBusiness
	ErrorTypeValidation
	ErrorTypeExternal
)

// AppError 应用错误结构体
type AppError struct {
	Code     ErrorCode   `json:"code"`
	Message  string      `json:"message"`
	Type     ErrorType   `json:"type"`
	HTTPCode int         `json:"-"`
	Details  interface{} `json:"details,omitempty"`
	Cause    error       `json:"-"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加错误详情
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause 添加错误原因
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// NewConfigurationError 创建配置错误（启动期致命）
func NewConfigurationError(message string) *AppError {
	return &AppError{
		Code:     ErrCodeConfiguration,
		Message:  message,
		Type:     ErrorTypeSystem,
		HTTPCode: http.StatusInternalServerError,
	}
}

// NewExtractionError 创建源解析错误
func NewExtractionError(sourceName, reason string) *AppError {
	return &AppError{
		Code:     ErrCodeExtraction,
		Message:  fmt.Sprintf("failed to extract text from %s: %s", sourceName, reason),
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusUnprocessableEntity,
	}
}

// NewBackendUnavailableError 创建后端不可达错误（可重试）
func NewBackendUnavailableError(message string) *AppError {
	return &AppError{
		Code:     ErrCodeBackendUnavailable,
		Message:  message,
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusServiceUnavailable,
	}
}

// NewBackendRejectedError 创建后端拒绝错误（不重试）
func NewBackendRejectedError(message string) *AppError {
	return &AppError{
		Code:     ErrCodeBackendRejected,
		Message:  message,
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusBadGateway,
	}
}

// NewDataIntegrityError 创建数据完整性错误
func NewDataIntegrityError(message string) *AppError {
	return &AppError{
		Code:     ErrCodeDataIntegrity,
		Message:  message,
		Type:     ErrorTypeSystem,
		HTTPCode: http.StatusInternalServerError,
	}
}

// NewNotFoundError 创建资源未找到错误
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("%s not found", resource),
		Type:     ErrorTypeBusiness,
		HTTPCode: http.StatusNotFound,
	}
}

// NewInvalidInputError 创建输入无效错误
func NewInvalidInputError(field, reason string) *AppError {
	return &AppError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("Invalid input for field '%s': %s", field, reason),
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewEmbeddingError 创建向量化错误
func NewEmbeddingError(reason string) *AppError {
	return &AppError{
		Code:     ErrCodeEmbedding,
		Message:  fmt.Sprintf("embedding failed: %s", reason),
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusBadGateway,
	}
}

// IsCode 检查错误链中是否存在指定错误码
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsRetryable 判断错误是否可安全重试
// 幂等upsert保证重试不会产生重复数据
func IsRetryable(err error) bool {
	return IsCode(err, ErrCodeBackendUnavailable)
}

// GetAppError 获取AppError，如果不是则包装为系统错误
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return &AppError{
		Code:     ErrCodeInternalServer,
		Message:  "Internal server error",
		Type:     ErrorTypeSystem,
		HTTPCode: http.StatusInternalServerError,
		Cause:    err,
	}
}
