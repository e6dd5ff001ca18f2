package bhashini

import "encoding/base64"

type languagePair struct {
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage,omitempty"`
}

// 配置接口 getModelsPipeline

type configRequest struct {
	PipelineTasks         []configTask          `json:"pipelineTasks"`
	PipelineRequestConfig pipelineRequestConfig `json:"pipelineRequestConfig"`
}

type configTask struct {
	TaskType Task             `json:"taskType"`
	Config   configTaskConfig `json:"config"`
}

type configTaskConfig struct {
	Language languagePair `json:"language"`
}

type pipelineRequestConfig struct {
	PipelineID string `json:"pipelineId"`
}

type configResponse struct {
	PipelineResponseConfig []struct {
		TaskType Task `json:"taskType"`
		Config   []struct {
			ServiceID string       `json:"serviceId"`
			Language  languagePair `json:"language"`
		} `json:"config"`
	} `json:"pipelineResponseConfig"`
	PipelineInferenceAPIEndPoint struct {
		CallbackURL     string `json:"callbackUrl"`
		InferenceAPIKey struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"inferenceApiKey"`
	} `json:"pipelineInferenceAPIEndPoint"`
}

// 推理接口

type computeRequest struct {
	PipelineTasks []computeTask `json:"pipelineTasks"`
	InputData     computeInput  `json:"inputData"`
}

type computeTask struct {
	TaskType Task           `json:"taskType"`
	Config   map[string]any `json:"config"`
}

type computeInput struct {
	Input []inputText  `json:"input,omitempty"`
	Audio []inputAudio `json:"audio,omitempty"`
}

type inputText struct {
	Source string `json:"source"`
}

type inputAudio struct {
	AudioContent string `json:"audioContent"`
}

type computeResponse struct {
	PipelineResponse []struct {
		TaskType Task `json:"taskType"`
		Output   []struct {
			Source string `json:"source"`
			Target string `json:"target"`
		} `json:"output"`
		Audio []struct {
			AudioContent string `json:"audioContent"`
		} `json:"audio"`
	} `json:"pipelineResponse"`
}

func encodeAudio(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func decodeAudio(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
