package speech

import "time"

// ASRResponse 语音识别响应
type ASRResponse struct {
	Text      string    `json:"text"`
	Language  string    `json:"language"`
	Provider  string    `json:"provider,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// TTSResponse 语音合成响应
type TTSResponse struct {
	Audio       []byte    `json:"-"`
	Format      string    `json:"format"`
	ContentType string    `json:"contentType"`
	Language    string    `json:"language"`
	Cached      bool      `json:"cached"`
	CreatedAt   time.Time `json:"createdAt"`
}
