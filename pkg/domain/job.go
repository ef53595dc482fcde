package domain

// JobKind は生成ジョブの種類です。
type JobKind string

const (
	JobImage     JobKind = "image"
	JobComposite JobKind = "composite"
	JobVideo     JobKind = "video"
)

// UsageType はジョブがどの日次クォータを消費するかを返します。合成は画像枠です。
func (k JobKind) UsageType() GenerationType {
	if k == JobVideo {
		return GenerationVideo
	}
	return GenerationImage
}

// JobStatus はクライアント側で見たジョブの状態です。
type JobStatus string

const (
	StatusSubmitted JobStatus = "SUBMITTED"
	StatusPolling   JobStatus = "POLLING"
	StatusSucceeded JobStatus = "SUCCEEDED"
	StatusFailed    JobStatus = "FAILED"
	StatusTimedOut  JobStatus = "TIMED_OUT"
)

// IsTerminal は終端状態かどうかを返します。
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusTimedOut:
		return true
	default:
		return false
	}
}

// リモート側の履歴ステータスコード
const (
	RemoteStatusSuccess        = 10
	RemoteStatusProcessing     = 20
	RemoteStatusFailed         = 30
	RemoteStatusPostProcessing = 42
	RemoteStatusFinalizing     = 45
	RemoteStatusCompleted      = 50

	// FailCodeContentFiltered はコンテンツフィルターによる失敗サブコードです。
	FailCodeContentFiltered = 2038
)

// GenerationJob は1回の generate 呼び出しの間だけ存在するジョブです。
// RemoteHistoryID が空の場合は「送信済み・ハンドルなし」を意味します。
type GenerationJob struct {
	SubmissionID    string
	RemoteHistoryID string
	Kind            JobKind
	Model           string
	ProviderModel   string
	Prompt          string
	Width           int
	Height          int
	Status          JobStatus
	ResultAssets    []string
	FailureReason   string
	FreshCookies    []Cookie
}

// GenerationResult はファサードが呼び出し元に返す結果です。
type GenerationResult struct {
	CredentialID int64
	Job          GenerationJob
	URLs         []string
}

// URL は最初のアセット URL を返します。動画ジョブでは唯一の結果です。
func (r *GenerationResult) URL() string {
	if r == nil || len(r.URLs) == 0 {
		return ""
	}
	return r.URLs[0]
}

// UploadedAsset はアップロード中だけ存在するアセットです。
type UploadedAsset struct {
	Size  int
	CRC32 string
	URI   string
}

// CreditBalance はプロバイダー内のクレジット残高のスナップショットです。
type CreditBalance struct {
	Gift     int
	Purchase int
	VIP      int
}

// Total は残高の合計です。
func (b CreditBalance) Total() int {
	return b.Gift + b.Purchase + b.VIP
}
