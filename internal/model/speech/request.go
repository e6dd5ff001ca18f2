package speech

// ASRRequest 语音识别请求
type ASRRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Audio     []byte `json:"-"`
	Format    string `json:"format"`   // wav, flac, ogg, webm, pcm
	Language  string `json:"language"` // 目录语言代码，例如 hi
}

// TTSRequest 语音合成请求
type TTSRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Text      string `json:"text"`
	Language  string `json:"language"`
}
