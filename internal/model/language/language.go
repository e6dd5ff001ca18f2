package language

// Entry describes one language offered to the frontend.
type Entry struct {
	Code         string `json:"code"`
	DisplayName  string `json:"displayName"`
	NativeName   string `json:"nativeName,omitempty"`
	ProviderCode string `json:"-"` // Bhashini 语言标识，为空表示翻译/语音 provider 不支持
	SpeechLocale string `json:"-"` // 语音识别 locale，例如 hi-IN
	VoiceID      string `json:"-"` // TTS 音色，Bhashini 使用 gender
}

// Seed returns the languages the assistant supports, in display order.
func Seed() []Entry {
	return []Entry{
		{Code: "en", DisplayName: "English", NativeName: "English", ProviderCode: "en", SpeechLocale: "en-IN", VoiceID: "female"},
		{Code: "hi", DisplayName: "Hindi", NativeName: "हिन्दी", ProviderCode: "hi", SpeechLocale: "hi-IN", VoiceID: "female"},
		{Code: "ta", DisplayName: "Tamil", NativeName: "தமிழ்", ProviderCode: "ta", SpeechLocale: "ta-IN", VoiceID: "female"},
		{Code: "te", DisplayName: "Telugu", NativeName: "తెలుగు", ProviderCode: "te", SpeechLocale: "te-IN", VoiceID: "female"},
		{Code: "kn", DisplayName: "Kannada", NativeName: "ಕನ್ನಡ", ProviderCode: "kn", SpeechLocale: "kn-IN", VoiceID: "female"},
		{Code: "bn", DisplayName: "Bengali", NativeName: "বাংলা", ProviderCode: "bn", SpeechLocale: "bn-IN", VoiceID: "female"},
		{Code: "mr", DisplayName: "Marathi", NativeName: "मराठी", ProviderCode: "mr", SpeechLocale: "mr-IN", VoiceID: "female"},
		{Code: "gu", DisplayName: "Gujarati", NativeName: "ગુજરાતી", ProviderCode: "gu", SpeechLocale: "gu-IN", VoiceID: "female"},
		{Code: "ml", DisplayName: "Malayalam", NativeName: "മലയാളം", ProviderCode: "ml", SpeechLocale: "ml-IN", VoiceID: "female"},
		{Code: "pa", DisplayName: "Punjabi", NativeName: "ਪੰਜਾਬੀ", ProviderCode: "pa", SpeechLocale: "pa-IN", VoiceID: "female"},
	}
}
