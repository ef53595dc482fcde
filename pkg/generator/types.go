package generator

const (
	// DefaultUploadConcurrency は1ジョブ内で同時にアップロードする画像数の上限です。
	DefaultUploadConcurrency = 4
)
