package rag

import (
	"errors"
	"fmt"
)

// ErrNoRelevantContext 检索合法地返回了零条高于阈值的结果。
// 这是一个预期内的结果而不是故障: 上层应返回 "not found" 类响应,
// 绝不能退化为用空上下文生成回答。
var ErrNoRelevantContext = errors.New("no relevant context above threshold")

// ValidationError 请求参数非法（top_k/score_threshold 越界等）。
// 在任何外部调用之前检出, 对应客户端错误响应。
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("参数 %s 非法: %s", e.Field, e.Message)
}

// NewValidationError 创建参数校验错误
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError 判断是否为参数校验错误
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ConfigError 配置错误（缺少凭证、存储不可达、非法组件配置）。
// 对请求致命, 对应服务端错误响应。
type ConfigError struct {
	Component string
	Message   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s 配置错误: %s", e.Component, e.Message)
}

// NewConfigError 创建配置错误
func NewConfigError(component, message string) *ConfigError {
	return &ConfigError{Component: component, Message: message}
}

// IsConfigError 判断是否为配置错误
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// ProviderError 外部模型服务故障（网络、配额、响应格式错误）。
// 不在核心内重试, 直接向上传播。
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s 服务调用失败: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError 包装外部服务错误
func NewProviderError(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Err: err}
}

// IsProviderError 判断是否为外部服务错误
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
