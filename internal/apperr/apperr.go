// Package apperr はトランスポートに依存しないエラー分類を提供します。
package apperr

import "errors"

// Kind はエラーの分類を表します。HTTP ステータスへの変換は httpx が行います。
type Kind string

const (
	KindConfiguration   Kind = "configuration"
	KindValidation      Kind = "validation"
	KindUnauthorized    Kind = "unauthorized"
	KindNotFound        Kind = "not_found"
	KindTooManyRequests Kind = "too_many_requests"
	KindTooLarge        Kind = "too_large"
	KindInternal        Kind = "internal"
)

// Error は分類とクライアント向けメッセージを持つエラーです。
// Message はそのままレスポンスに載るため、内部の識別子を含めないでください。
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New は分類付きのエラーを作成します。
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap は既存のエラーを包みます。既に *Error の場合は分類を引き継ぎます。
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Kind: existing.Kind, Message: msg, Err: err}
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf はエラーの分類を返します。分類がなければ KindInternal です。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf はクライアントに返してよいメッセージを返します。
func MessageOf(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}
