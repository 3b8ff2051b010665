// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, note, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated        = "UNAUTHENTICATED"
	ErrCodeForbidden              = "FORBIDDEN"
	ErrCodeNoteNotFound           = "NOTE_NOT_FOUND"
	ErrCodeSharedNoteNotFound     = "SHARED_NOTE_NOT_FOUND"
	ErrCodeInvalidRequest         = "INVALID_REQUEST"
	ErrCodeValidationFailed       = "VALIDATION_FAILED"
	ErrCodeInvalidCredentials     = "INVALID_CREDENTIALS"
	ErrCodeEmailAlreadyRegistered = "EMAIL_ALREADY_REGISTERED"
	ErrCodeUserNotFound           = "USER_NOT_FOUND"
	ErrCodeInternal               = "INTERNAL_ERROR"
)

// NewUnauthenticatedError は呼び出し元の識別情報が解決できなかった場合のエラーを生成する。
// トークンの欠落・不正・期限切れを区別せず、同一のエラーを返す。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は所有者以外がノートを操作しようとした場合のエラーを生成する。
func NewForbiddenError(operation string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("このノートに対する操作は許可されていません: %s", operation),
		Category: "auth",
		Action:   "ノートの所有者のアカウントでログインしてください。",
	}
}

// NewNoteNotFoundError はノートが見つからない場合のエラーを生成する。
func NewNoteNotFoundError(noteID int64) *APIError {
	return &APIError{
		Code:     ErrCodeNoteNotFound,
		Message:  fmt.Sprintf("指定されたノートが見つかりません: %d", noteID),
		Category: "note",
		Action:   "ノートIDを確認してください。",
	}
}

// NewSharedNoteNotFoundError は共有トークンに対応するノートが見つからない場合のエラーを生成する。
// トークン値はメッセージに含めない。
func NewSharedNoteNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeSharedNoteNotFound,
		Message:  "共有されたノートが見つかりません。",
		Category: "note",
		Action:   "共有リンクが正しいか確認してください。",
	}
}

// NewInvalidRequestError はリクエストボディの解析に失敗した場合のエラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewInvalidNoteIDError はパスのノートIDが正の整数でない場合のエラーを生成する。
func NewInvalidNoteIDError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "ノートIDが不正です。",
		Category: "validation",
		Action:   "正の整数のノートIDを指定してください。",
	}
}

// NewValidationError は入力値が不正な場合のエラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力値が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidCredentialsError はログイン情報が一致しない場合のエラーを生成する。
// ユーザーの存在有無は区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewEmailAlreadyRegisteredError は登録済みのメールアドレスで登録しようとした場合のエラーを生成する。
func NewEmailAlreadyRegisteredError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailAlreadyRegistered,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログインするか、別のメールアドレスを使用してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
