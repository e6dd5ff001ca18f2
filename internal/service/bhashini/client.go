// Package bhashini 封装 ULCA 多语言 pipeline 的两段式调用：先向配置接口查询某个任务
// (translation / asr / tts) 在给定语言对下的 serviceId 与推理地址，再向推理地址提交计算请求。
// 配置结果按 (task, source, target) 缓存，进程生命周期内有效。
package bhashini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/apex/log"

	"github.com/zhouzirui/janvani/backend/internal/metrics"
)

// Task 是 ULCA pipeline 的任务类型。
type Task string

const (
	TaskTranslation Task = "translation"
	TaskASR         Task = "asr"
	TaskTTS         Task = "tts"
)

const providerName = "bhashini"

// ErrEmptyResult is returned when the provider answered 2xx without usable output.
var ErrEmptyResult = errors.New("bhashini: empty result")

// StatusError carries a non-2xx provider response.
type StatusError struct {
	Stage  string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bhashini %s: unexpected status %d: %s", e.Stage, e.Status, e.Body)
}

// Config 描述调用 ULCA 所需的凭证与超时。
type Config struct {
	UserID     string
	APIKey     string
	PipelineID string
	ConfigURL  string
	Timeout    time.Duration
}

// Client 是线程安全的 ULCA pipeline 客户端。
type Client struct {
	cfg        Config
	httpClient *http.Client

	mu        sync.Mutex
	endpoints map[endpointKey]endpoint
}

type endpointKey struct {
	task   Task
	source string
	target string
}

type endpoint struct {
	serviceID   string
	callbackURL string
	authName    string
	authValue   string
}

// NewClient 创建客户端。httpClient 为空时使用带 cfg.Timeout 的默认客户端。
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		endpoints:  make(map[endpointKey]endpoint),
	}
}

// Translate 翻译一段文本。source/target 是 ULCA 语言代码（如 hi、en）。
func (c *Client) Translate(ctx context.Context, text, source, target string) (out string, err error) {
	start := time.Now()
	defer func() { metrics.ObserveProvider(providerName, string(TaskTranslation), start, err) }()

	lang := languagePair{SourceLanguage: source, TargetLanguage: target}
	resp, err := c.compute(ctx, TaskTranslation, lang, nil, computeInput{
		Input: []inputText{{Source: text}},
	})
	if err != nil {
		return "", err
	}

	if len(resp.PipelineResponse) == 0 || len(resp.PipelineResponse[0].Output) == 0 {
		return "", ErrEmptyResult
	}
	out = strings.TrimSpace(resp.PipelineResponse[0].Output[0].Target)
	if out == "" {
		return "", ErrEmptyResult
	}
	return out, nil
}

// RecognizeRequest 描述一次语音识别调用。
type RecognizeRequest struct {
	Audio      []byte
	Format     string
	SampleRate int
	Language   string
}

// Recognize 执行语音识别，返回转写文本。
func (c *Client) Recognize(ctx context.Context, req RecognizeRequest) (text string, err error) {
	start := time.Now()
	defer func() { metrics.ObserveProvider(providerName, string(TaskASR), start, err) }()

	format := req.Format
	if format == "" {
		format = "wav"
	}
	extra := map[string]any{
		"audioFormat":  format,
		"samplingRate": req.SampleRate,
	}
	resp, err := c.compute(ctx, TaskASR, languagePair{SourceLanguage: req.Language}, extra, computeInput{
		Audio: []inputAudio{{AudioContent: encodeAudio(req.Audio)}},
	})
	if err != nil {
		return "", err
	}

	if len(resp.PipelineResponse) == 0 || len(resp.PipelineResponse[0].Output) == 0 {
		return "", ErrEmptyResult
	}
	text = strings.TrimSpace(resp.PipelineResponse[0].Output[0].Source)
	if text == "" {
		return "", ErrEmptyResult
	}
	return text, nil
}

// SynthesizeRequest 描述一次语音合成调用。
type SynthesizeRequest struct {
	Text       string
	Language   string
	Gender     string
	SampleRate int
}

// Synthesize 合成语音，返回 wav 字节。
func (c *Client) Synthesize(ctx context.Context, req SynthesizeRequest) (audio []byte, err error) {
	start := time.Now()
	defer func() { metrics.ObserveProvider(providerName, string(TaskTTS), start, err) }()

	gender := req.Gender
	if gender == "" {
		gender = "female"
	}
	extra := map[string]any{
		"gender":       gender,
		"samplingRate": req.SampleRate,
	}
	resp, err := c.compute(ctx, TaskTTS, languagePair{SourceLanguage: req.Language}, extra, computeInput{
		Input: []inputText{{Source: req.Text}},
	})
	if err != nil {
		return nil, err
	}

	if len(resp.PipelineResponse) == 0 || len(resp.PipelineResponse[0].Audio) == 0 {
		return nil, ErrEmptyResult
	}
	audio, err = decodeAudio(resp.PipelineResponse[0].Audio[0].AudioContent)
	if err != nil {
		return nil, fmt.Errorf("bhashini tts: decode audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, ErrEmptyResult
	}
	return audio, nil
}

func (c *Client) compute(ctx context.Context, task Task, lang languagePair, extra map[string]any, input computeInput) (*computeResponse, error) {
	ep, err := c.resolve(ctx, task, lang)
	if err != nil {
		return nil, err
	}

	taskConfig := map[string]any{
		"language":  lang,
		"serviceId": ep.serviceID,
	}
	for k, v := range extra {
		taskConfig[k] = v
	}

	body := computeRequest{
		PipelineTasks: []computeTask{{TaskType: task, Config: taskConfig}},
		InputData:     input,
	}

	headers := http.Header{}
	if ep.authName != "" {
		headers.Set(ep.authName, ep.authValue)
	}

	var resp computeResponse
	if err := c.postJSON(ctx, "compute", ep.callbackURL, headers, body, &resp); err != nil {
		// serviceId 可能已下线，清掉缓存让下次请求重新查询配置。
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Status >= 400 && statusErr.Status < 500 {
			c.forget(task, lang)
		}
		return nil, err
	}
	return &resp, nil
}

// resolve 查询并缓存 (task, source, target) 对应的推理端点。
func (c *Client) resolve(ctx context.Context, task Task, lang languagePair) (endpoint, error) {
	key := endpointKey{task: task, source: lang.SourceLanguage, target: lang.TargetLanguage}

	c.mu.Lock()
	ep, ok := c.endpoints[key]
	c.mu.Unlock()
	if ok {
		return ep, nil
	}

	body := configRequest{
		PipelineTasks: []configTask{{
			TaskType: task,
			Config:   configTaskConfig{Language: lang},
		}},
		PipelineRequestConfig: pipelineRequestConfig{PipelineID: c.cfg.PipelineID},
	}

	headers := http.Header{}
	headers.Set("userID", c.cfg.UserID)
	headers.Set("ulcaApiKey", c.cfg.APIKey)

	var resp configResponse
	if err := c.postJSON(ctx, "config", c.cfg.ConfigURL, headers, body, &resp); err != nil {
		return endpoint{}, err
	}

	if len(resp.PipelineResponseConfig) == 0 || len(resp.PipelineResponseConfig[0].Config) == 0 {
		return endpoint{}, fmt.Errorf("bhashini config: no %s service for %s->%s: %w",
			task, lang.SourceLanguage, lang.TargetLanguage, ErrEmptyResult)
	}
	callback := resp.PipelineInferenceAPIEndPoint.CallbackURL
	if callback == "" {
		return endpoint{}, fmt.Errorf("bhashini config: missing callbackUrl: %w", ErrEmptyResult)
	}

	ep = endpoint{
		serviceID:   resp.PipelineResponseConfig[0].Config[0].ServiceID,
		callbackURL: callback,
		authName:    resp.PipelineInferenceAPIEndPoint.InferenceAPIKey.Name,
		authValue:   resp.PipelineInferenceAPIEndPoint.InferenceAPIKey.Value,
	}

	c.mu.Lock()
	c.endpoints[key] = ep
	c.mu.Unlock()

	log.WithFields(log.Fields{
		"task":      task,
		"source":    lang.SourceLanguage,
		"target":    lang.TargetLanguage,
		"serviceId": ep.serviceID,
	}).Debug("bhashini.resolve")

	return ep, nil
}

func (c *Client) forget(task Task, lang languagePair) {
	c.mu.Lock()
	delete(c.endpoints, endpointKey{task: task, source: lang.SourceLanguage, target: lang.TargetLanguage})
	c.mu.Unlock()
}

func (c *Client) postJSON(ctx context.Context, stage, url string, headers http.Header, body, out any) error {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("bhashini %s: marshal request: %w", stage, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("bhashini %s: build request: %w", stage, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, vals := range headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bhashini %s: %w", stage, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("bhashini %s: read response: %w", stage, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Stage: stage, Status: resp.StatusCode, Body: truncateBody(raw, maxErrorBody)}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("bhashini %s: decode response: %w", stage, err)
	}
	return nil
}

const maxErrorBody = 256

// truncateBody 截断错误响应体，保证不切断多字节字符。
func truncateBody(raw []byte, limit int) string {
	s := strings.ToValidUTF8(strings.TrimSpace(string(raw)), "")
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
