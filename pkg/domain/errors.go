package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrQuotaExhausted は日次クォータの残っているクレデンシャルが無いことを示します。
	ErrQuotaExhausted = errors.New("quota exhausted: no credential has remaining daily quota")
	// ErrContentFiltered はプロバイダーのコンテンツポリシーによる拒否です。
	ErrContentFiltered = errors.New("content filtered by provider")
	// ErrTimedOut はジョブ全体の時間予算を超えたことを示します。
	ErrTimedOut = errors.New("generation timed out")
	// ErrNoHistoryID は送信は成功したが履歴 ID が返らなかったことを示します。
	ErrNoHistoryID = errors.New("submitted but no history id was returned")
)

// VideoHistoryHint は動画失敗時に運用者へ案内するプロバイダーの履歴ページです。
const VideoHistoryHint = "please check https://jimeng.jianying.com/ai-tool/video/generate for the result"

// TransportError はネットワーク・DNS・TLS 層のエラーです。
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteAPIError は整形されたエラー応答です。HTTPStatus は HTTP レベルで失敗した場合のみ設定されます。
type RemoteAPIError struct {
	Code       string
	Message    string
	HTTPStatus int
}

func (e *RemoteAPIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote api error [%s]", e.Code)
	}
	return fmt.Sprintf("remote api error [%s]: %s", e.Code, e.Message)
}

// SigningError は署名処理内部の論理エラーです。利用者に見せる想定はありません。
type SigningError struct {
	Scheme string
	Err    error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("signing error (%s): %v", e.Scheme, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// UploadPhase はアップロードプロトコルの段階です。
type UploadPhase string

const (
	PhaseResolve UploadPhase = "resolve"
	PhaseToken   UploadPhase = "token"
	PhaseApply   UploadPhase = "apply"
	PhasePut     UploadPhase = "put"
	PhaseCommit  UploadPhase = "commit"
)

// UploadFailed はアップロードのいずれかの段階での失敗です。
type UploadFailed struct {
	Phase UploadPhase
	Err   error
}

func (e *UploadFailed) Error() string {
	return fmt.Sprintf("upload failed at %s phase: %v", e.Phase, e.Err)
}

func (e *UploadFailed) Unwrap() error { return e.Err }

// GenerationFailed はジョブが失敗で終了したことを示します。
type GenerationFailed struct {
	HistoryID string
	FailCode  int
	Cause     string
	Hint      string
	Err       error
}

func (e *GenerationFailed) Error() string {
	msg := fmt.Sprintf("generation failed (history_id=%s, fail_code=%d): %s", e.HistoryID, e.FailCode, e.Cause)
	if e.Hint != "" {
		msg += "; " + e.Hint
	}
	return msg
}

func (e *GenerationFailed) Unwrap() error { return e.Err }

// ContentFiltered はコンテンツフィルターにより拒否されたジョブです。
type ContentFiltered struct {
	HistoryID string
	FailCode  int
	Hint      string
}

func (e *ContentFiltered) Error() string {
	msg := fmt.Sprintf("content filtered (history_id=%s, fail_code=%d)", e.HistoryID, e.FailCode)
	if e.Hint != "" {
		msg += "; " + e.Hint
	}
	return msg
}

func (e *ContentFiltered) Is(target error) bool { return target == ErrContentFiltered }

// TimedOut は時間予算内に終端状態へ到達しなかったジョブです。
type TimedOut struct {
	HistoryID string
	Elapsed   time.Duration
	Attempts  int
	Hint      string
}

func (e *TimedOut) Error() string {
	msg := fmt.Sprintf("generation timed out after %s (%d polls, history_id=%s)", e.Elapsed.Round(time.Second), e.Attempts, e.HistoryID)
	if e.Hint != "" {
		msg += "; " + e.Hint
	}
	return msg
}

func (e *TimedOut) Is(target error) bool { return target == ErrTimedOut }

// IsRetryable はワーカープールがジョブ全体を再送してよいエラーかどうかを返します。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var (
		transportErr *TransportError
		uploadErr    *UploadFailed
		remoteErr    *RemoteAPIError
		genErr       *GenerationFailed
	)
	// 送信済みのジョブは再送しない。GenerationFailed は通信エラーを包むことがある。
	switch {
	case errors.Is(err, ErrQuotaExhausted), errors.Is(err, ErrContentFiltered), errors.Is(err, ErrTimedOut), errors.Is(err, ErrNoHistoryID):
		return false
	case errors.As(err, &genErr):
		return false
	case errors.As(err, &transportErr):
		return true
	case errors.As(err, &uploadErr):
		return uploadErr.Phase != PhaseResolve
	case errors.As(err, &remoteErr):
		return remoteErr.HTTPStatus >= 500 || remoteErr.HTTPStatus == 429
	default:
		return false
	}
}
