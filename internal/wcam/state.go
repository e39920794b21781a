package wcam

import (
	"errors"
	"fmt"
)

// ErrorReason はキャプチャ失敗の分類を表す
type ErrorReason string

const (
	// ErrorUnplugged はデバイスが最新の列挙結果に存在しないことを表す
	ErrorUnplugged ErrorReason = "unplugged"
	// ErrorAlreadyInUse は他のアプリケーションがデバイスを占有していることを表す
	ErrorAlreadyInUse ErrorReason = "already_in_use"
	// ErrorOther はその他のバックエンド失敗を表す（メッセージは診断用）
	ErrorOther ErrorReason = "other"
)

// CaptureState はリクエストのキャプチャ状態を表す閉じた直和型
// 常にいずれか1つの変種のみが成立する
type CaptureState interface {
	isCaptureState()
	String() string
}

// StateNotInitialized はキャプチャが未作成であることを表す初期状態
type StateNotInitialized struct{}

func (StateNotInitialized) isCaptureState() {}
func (StateNotInitialized) String() string  { return "not_initialized" }

// StateActive はキャプチャセッションが動作中であることを表す
type StateActive struct {
	Session    Session
	Resolution Resolution // セッションが実際に使用している解像度
}

func (StateActive) isCaptureState() {}
func (s StateActive) String() string {
	return fmt.Sprintf("active(%s)", s.Resolution)
}

// StateError はキャプチャの失敗を表す
// 次のループティックで自動的に再試行される
type StateError struct {
	Reason  ErrorReason
	Message string // ErrorOther の場合の診断メッセージ
}

func (StateError) isCaptureState() {}
func (s StateError) String() string {
	if s.Reason == ErrorOther && s.Message != "" {
		return fmt.Sprintf("error(%s: %s)", s.Reason, s.Message)
	}
	return fmt.Sprintf("error(%s)", s.Reason)
}

// OpenError はバックエンドのキャプチャ作成失敗を分類付きで表す
type OpenError struct {
	Reason ErrorReason
	Err    error
}

// Error はエラーメッセージを返す
func (e *OpenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("キャプチャのオープンに失敗 (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("キャプチャのオープンに失敗 (%s)", e.Reason)
}

// Unwrap はラップされたエラーを返す
func (e *OpenError) Unwrap() error {
	return e.Err
}

// classifyOpenError はバックエンドのオープン失敗をStateErrorへ変換する
// 分類されていないエラーはすべてErrorOtherとして吸収する
func classifyOpenError(err error) StateError {
	var openErr *OpenError
	if errors.As(err, &openErr) {
		msg := ""
		if openErr.Reason == ErrorOther && openErr.Err != nil {
			msg = openErr.Err.Error()
		}
		return StateError{Reason: openErr.Reason, Message: msg}
	}
	return StateError{Reason: ErrorOther, Message: err.Error()}
}
