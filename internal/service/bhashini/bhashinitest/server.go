// Package bhashinitest provides an in-process fake of the ULCA pipeline for tests.
package bhashinitest

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
)

const inferenceKey = "fake-inference-key"

// Server is a fake ULCA config + compute endpoint pair.
type Server struct {
	*httptest.Server

	// Translate maps (source, target, text) to a translation. Returning ok=false yields a 500.
	Translate func(source, target, text string) (string, bool)
	// Recognize returns the transcript for the uploaded audio.
	Recognize func(language string, audio []byte) (string, bool)
	// Synthesize returns audio for the text.
	Synthesize func(language, gender, text string) ([]byte, bool)

	ConfigCalls  atomic.Int64
	ComputeCalls atomic.Int64

	mu       sync.Mutex
	lastTask map[string]any
}

// NewServer starts a fake provider. Callers must Close it.
func NewServer() *Server {
	s := &Server{}
	mux := http.NewServeMux()
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/compute", s.handleCompute)
	s.Server = httptest.NewServer(mux)
	return s
}

// ConfigURL is the value to pass as the pipeline config endpoint.
func (s *Server) ConfigURL() string { return s.URL + "/config" }

// LastTaskConfig returns the config object of the most recent compute request.
func (s *Server) LastTaskConfig() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTask
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.ConfigCalls.Add(1)
	if r.Header.Get("userID") == "" || r.Header.Get("ulcaApiKey") == "" {
		http.Error(w, "missing credentials", http.StatusUnauthorized)
		return
	}

	var req struct {
		PipelineTasks []struct {
			TaskType string `json:"taskType"`
		} `json:"pipelineTasks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.PipelineTasks) == 0 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]any{
		"pipelineResponseConfig": []any{map[string]any{
			"taskType": req.PipelineTasks[0].TaskType,
			"config":   []any{map[string]any{"serviceId": "fake-" + req.PipelineTasks[0].TaskType}},
		}},
		"pipelineInferenceAPIEndPoint": map[string]any{
			"callbackUrl":     s.URL + "/compute",
			"inferenceApiKey": map[string]any{"name": "Authorization", "value": inferenceKey},
		},
	})
}

func (s *Server) handleCompute(w http.ResponseWriter, r *http.Request) {
	s.ComputeCalls.Add(1)
	if r.Header.Get("Authorization") != inferenceKey {
		http.Error(w, "bad inference key", http.StatusUnauthorized)
		return
	}

	var req struct {
		PipelineTasks []struct {
			TaskType string         `json:"taskType"`
			Config   map[string]any `json:"config"`
		} `json:"pipelineTasks"`
		InputData struct {
			Input []struct {
				Source string `json:"source"`
			} `json:"input"`
			Audio []struct {
				AudioContent string `json:"audioContent"`
			} `json:"audio"`
		} `json:"inputData"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.PipelineTasks) == 0 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	task := req.PipelineTasks[0]
	s.mu.Lock()
	s.lastTask = task.Config
	s.mu.Unlock()

	lang, _ := task.Config["language"].(map[string]any)
	source, _ := lang["sourceLanguage"].(string)
	target, _ := lang["targetLanguage"].(string)

	switch task.TaskType {
	case "translation":
		if s.Translate == nil || len(req.InputData.Input) == 0 {
			break
		}
		out, ok := s.Translate(source, target, req.InputData.Input[0].Source)
		if !ok {
			break
		}
		writeJSON(w, map[string]any{"pipelineResponse": []any{map[string]any{
			"taskType": "translation",
			"output":   []any{map[string]any{"source": req.InputData.Input[0].Source, "target": out}},
		}}})
		return
	case "asr":
		if s.Recognize == nil || len(req.InputData.Audio) == 0 {
			break
		}
		audio, err := base64.StdEncoding.DecodeString(req.InputData.Audio[0].AudioContent)
		if err != nil {
			break
		}
		text, ok := s.Recognize(source, audio)
		if !ok {
			break
		}
		writeJSON(w, map[string]any{"pipelineResponse": []any{map[string]any{
			"taskType": "asr",
			"output":   []any{map[string]any{"source": text}},
		}}})
		return
	case "tts":
		if s.Synthesize == nil || len(req.InputData.Input) == 0 {
			break
		}
		gender, _ := task.Config["gender"].(string)
		audio, ok := s.Synthesize(source, gender, req.InputData.Input[0].Source)
		if !ok {
			break
		}
		writeJSON(w, map[string]any{"pipelineResponse": []any{map[string]any{
			"taskType": "tts",
			"audio":    []any{map[string]any{"audioContent": base64.StdEncoding.EncodeToString(audio)}},
		}}})
		return
	}

	http.Error(w, "provider failure", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
