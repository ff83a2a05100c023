// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// 通用错误类型
	ErrorTypeValidation ErrorType = "validation_error"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeError      ErrorType = "processing_error"
	ErrorTypeTimeout    ErrorType = "timeout"

	// 感知引擎错误类型
	// 注意：零触发不是错误，编排器直接返回空结果
	ErrorTypeTriggerEvaluation       ErrorType = "trigger_evaluation_failure"
	ErrorTypePotentialResolution     ErrorType = "potential_resolution_failure"
	ErrorTypeClassificationAmbiguity ErrorType = "classification_ambiguity"
	ErrorTypeRemoteService           ErrorType = "remote_service_failure"
	ErrorTypeContradiction           ErrorType = "contradiction_error"
	ErrorTypeTimeViolation           ErrorType = "time_violation"
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string // 用户友好的错误代码
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewProcessingError 创建处理错误
func NewProcessingError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeError, message, originalError)
}

// NewTriggerEvaluationError 创建触发评估错误（动作/情境格式非法，拒绝动作，不改状态）
func NewTriggerEvaluationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeTriggerEvaluation, message, originalError)
}

// NewPotentialResolutionError 创建潜在可能性解析错误（缺少必要注册，降级为无打断）
func NewPotentialResolutionError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypePotentialResolution, message, originalError)
}

// NewClassificationAmbiguityError 创建分类不明确错误（默认临时实体，只记录，绝不静默提升）
func NewClassificationAmbiguityError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeClassificationAmbiguity, message, originalError)
}

// NewRemoteServiceError 创建远端生成服务错误
func NewRemoteServiceError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeRemoteService, message, originalError)
}

// NewContradictionError 创建世界事实矛盾错误
func NewContradictionError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeContradiction, message, originalError)
}

// NewTimeViolationError 创建时间违规错误（无 Explicit/ImpliedSkip 的自发跳跃）
func NewTimeViolationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeTimeViolation, message, originalError)
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool {
	return isType(err, ErrorTypeValidation)
}

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool {
	return isType(err, ErrorTypeNotFound)
}

// IsRemoteServiceError 检查是否为远端服务错误
func IsRemoteServiceError(err error) bool {
	return isType(err, ErrorTypeRemoteService)
}

// IsContradictionError 检查是否为矛盾错误
func IsContradictionError(err error) bool {
	return isType(err, ErrorTypeContradiction)
}

// IsTimeViolationError 检查是否为时间违规错误
func IsTimeViolationError(err error) bool {
	return isType(err, ErrorTypeTimeViolation)
}

// IsClassificationAmbiguityError 检查是否为分类不明确错误
func IsClassificationAmbiguityError(err error) bool {
	return isType(err, ErrorTypeClassificationAmbiguity)
}

func isType(err error, errType ErrorType) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == errType
	}
	return false
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeError:
		return "PROCESSING_ERROR"
	case ErrorTypeTimeout:
		return "TIMEOUT"
	case ErrorTypeTriggerEvaluation:
		return "TRIGGER_EVALUATION_FAILURE"
	case ErrorTypePotentialResolution:
		return "POTENTIAL_RESOLUTION_FAILURE"
	case ErrorTypeClassificationAmbiguity:
		return "CLASSIFICATION_AMBIGUITY"
	case ErrorTypeRemoteService:
		return "REMOTE_SERVICE_FAILURE"
	case ErrorTypeContradiction:
		return "CONTRADICTION_ERROR"
	case ErrorTypeTimeViolation:
		return "TIME_VIOLATION"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError 包装现有错误
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		// 如果已经是 AppError，只更新消息
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
			Code:    appError.Code,
		}
	}

	// 否则创建新的 AppError
	return NewAppError(errType, message, err)
}
