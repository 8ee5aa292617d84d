package service

import (
	"errors"
	"fmt"
)

// ErrorKind 错误分类，handler 按分类映射 HTTP 状态码
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindInvalidItem       ErrorKind = "invalid_item_reference"
	KindNotFound          ErrorKind = "not_found"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindConflict          ErrorKind = "conflict"
	KindPersistence       ErrorKind = "persistence"
	KindExternal          ErrorKind = "external_processor"
)

// AppError 服务层统一错误。Retryable 只对 KindExternal 有意义：
// 外部渠道结果未知，提现意图仍为 pending，由对账任务收尾
type AppError struct {
	Kind      ErrorKind
	Message   string
	Retryable bool
	Err       error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 只比较分类，errors.Is(err, ErrInsufficientFunds) 这样使用
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrValidation             = &AppError{Kind: KindValidation, Message: "参数错误"}
	ErrInvalidItemReference   = &AppError{Kind: KindInvalidItem, Message: "商品不存在"}
	ErrNotFound               = &AppError{Kind: KindNotFound, Message: "记录不存在"}
	ErrInsufficientFunds      = &AppError{Kind: KindInsufficientFunds, Message: "余额不足"}
	ErrBalanceOverflow        = &AppError{Kind: KindValidation, Message: "入账后余额超出上限"}
	ErrConflict               = &AppError{Kind: KindConflict, Message: "请求冲突"}
	ErrPersistence            = &AppError{Kind: KindPersistence, Message: "存储失败"}
	ErrExternalProcessor      = &AppError{Kind: KindExternal, Message: "支付渠道调用失败"}
	errSplitAmountNotPositive = errors.New("分账金额必须大于0")
)

func newError(kind ErrorKind, message string, err error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

func validationError(format string, args ...interface{}) *AppError {
	return newError(KindValidation, fmt.Sprintf(format, args...), nil)
}

// asPersistence 已经分类的错误原样返回，其余视为存储错误
func asPersistence(message string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}
	return newError(KindPersistence, message, err)
}

// KindOf 返回错误分类，未分类的错误归为 KindPersistence
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindPersistence
}
