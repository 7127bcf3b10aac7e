package errs

import (
	"errors"
	"fmt"
)

// ConfigurationError 配置缺失或非法（启动时致命）
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Reason)
}

// ConnectivityError 场景目录 REST API 不可达或拒绝请求（启动时致命）
type ConnectivityError struct {
	URL        string
	StatusCode int // 0 表示未收到响应
	Reason     string
	Err        error
}

func (e *ConnectivityError) Error() string {
	msg := fmt.Sprintf("connectivity error: GET %s", e.URL)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// SubscriptionError MQTT broker 不可达、认证失败或订阅失败
// 启动阶段致命；运行阶段由自动重连处理
type SubscriptionError struct {
	Broker string
	Reason string
	Err    error
}

func (e *SubscriptionError) Error() string {
	msg := fmt.Sprintf("subscription error: %s: %s", e.Broker, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}

// PayloadError 消息格式错误：记录日志并丢弃，不中断订阅
type PayloadError struct {
	Topic  string
	Reason string
	Err    error
}

func (e *PayloadError) Error() string {
	msg := "payload error"
	if e.Topic != "" {
		msg += " on " + e.Topic
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}

// IsConfiguration 判断是否为 ConfigurationError
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsConnectivity 判断是否为 ConnectivityError
func IsConnectivity(err error) bool {
	var target *ConnectivityError
	return errors.As(err, &target)
}

// IsSubscription 判断是否为 SubscriptionError
func IsSubscription(err error) bool {
	var target *SubscriptionError
	return errors.As(err, &target)
}

// IsPayload 判断是否为 PayloadError
func IsPayload(err error) bool {
	var target *PayloadError
	return errors.As(err, &target)
}
