package handler

import (
	goerrors "github.com/go-errors/errors"
)

// Error 处理器内部错误，由统一错误处理返回 500
type Error struct {
	Kind    string // 错误计数的 type 标签
	Message string // 返回给调用方的通用描述
	Err     *goerrors.Error
}

func (e *Error) Error() string {
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fail(kind, message string, err error) error {
	return &Error{
		Kind:    kind,
		Message: message,
		Err:     goerrors.Wrap(err, 1),
	}
}
