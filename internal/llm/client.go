package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/edumint/edumint-backend/internal/config"
	"github.com/edumint/edumint-backend/internal/errs"
	"github.com/edumint/edumint-backend/internal/logger"
)

// Client is the text/TTS backend boundary. Both "backend unavailable" and
// "malformed response" surface as errs.ErrGeneration; the pipeline treats
// them the same way (abort the run, let the caller decide about retrying).
type Client interface {
	// GenerateText returns the plain-text completion for a prompt.
	GenerateText(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	// GenerateJSON constrains the response to application/json and decodes
	// it into a generic object.
	GenerateJSON(ctx context.Context, prompt string, opts GenerateOptions) (map[string]any, error)
	// GenerateSpeech renders a two-speaker script into raw PCM audio.
	GenerateSpeech(ctx context.Context, script string, opts SpeechOptions) (*SpeechResult, error)
}

type GenerateOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
	// ResponseSchema, when set, is forwarded as a structured-output schema
	// alongside the JSON mime type.
	ResponseSchema map[string]any
}

type SpeechOptions struct {
	Model        string
	TeacherVoice string
	StudentVoice string
	Temperature  float64
}

// SpeechResult is the validated decode of a TTS response: the concatenated
// inline audio payload plus its mime parameters (e.g. "audio/L16;rate=24000").
type SpeechResult struct {
	PCM      []byte
	MimeType string
}

type client struct {
	log        *logger.Logger
	httpClient *http.Client

	baseURL   string
	apiKey    string
	textModel string
	ttsModel  string

	maxRetries int
}

func NewClient(cfg config.Config, log *logger.Logger) (Client, error) {
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY")
	}
	return &client{
		log:        log.With("service", "LLMClient"),
		httpClient: &http.Client{Timeout: cfg.GeminiTimeout},
		baseURL:    strings.TrimRight(cfg.GeminiBaseURL, "/"),
		apiKey:     cfg.GeminiAPIKey,
		textModel:  cfg.GeminiTextModel,
		ttsModel:   cfg.GeminiTTSModel,
		maxRetries: cfg.GeminiMaxRetries,
	}, nil
}

// ---- wire types (generateContent REST surface) ----

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature        *float64        `json:"temperature,omitempty"`
	MaxOutputTokens    int             `json:"maxOutputTokens,omitempty"`
	ResponseMimeType   string          `json:"responseMimeType,omitempty"`
	ResponseSchema     map[string]any  `json:"responseSchema,omitempty"`
	ResponseModalities []string        `json:"responseModalities,omitempty"`
	SpeechConfig       *speechConfigWB `json:"speechConfig,omitempty"`
}

type speechConfigWB struct {
	MultiSpeakerVoiceConfig *multiSpeakerVoiceConfig `json:"multiSpeakerVoiceConfig,omitempty"`
}

type multiSpeakerVoiceConfig struct {
	SpeakerVoiceConfigs []speakerVoiceConfig `json:"speakerVoiceConfigs"`
}

type speakerVoiceConfig struct {
	Speaker     string      `json:"speaker"`
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason,omitempty"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// ---- operations ----

func (c *client) GenerateText(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	resp, err := c.generate(ctx, c.modelOr(opts.Model), generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: textConfig(opts, ""),
	})
	if err != nil {
		return "", err
	}
	text, err := firstText(resp)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (c *client) GenerateJSON(ctx context.Context, prompt string, opts GenerateOptions) (map[string]any, error) {
	resp, err := c.generate(ctx, c.modelOr(opts.Model), generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: textConfig(opts, "application/json"),
	})
	if err != nil {
		return nil, err
	}
	text, err := firstText(resp)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &out); err != nil {
		return nil, errs.Generationf("response is not valid JSON: %v", err)
	}
	return out, nil
}

func (c *client) GenerateSpeech(ctx context.Context, script string, opts SpeechOptions) (*SpeechResult, error) {
	model := opts.Model
	if model == "" {
		model = c.ttsModel
	}
	temp := opts.Temperature
	if temp == 0 {
		temp = 0.3
	}
	req := generateRequest{
		Contents: []content{{Parts: []part{{Text: script}}}},
		GenerationConfig: &generationConfig{
			Temperature:        &temp,
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfigWB{
				MultiSpeakerVoiceConfig: &multiSpeakerVoiceConfig{
					SpeakerVoiceConfigs: []speakerVoiceConfig{
						{Speaker: "Teacher", VoiceConfig: voiceConfig{prebuiltVoiceConfig{opts.TeacherVoice}}},
						{Speaker: "Student", VoiceConfig: voiceConfig{prebuiltVoiceConfig{opts.StudentVoice}}},
					},
				},
			},
		},
	}
	resp, err := c.generate(ctx, model, req)
	if err != nil {
		return nil, err
	}
	return decodeSpeech(resp)
}

// decodeSpeech is the single validating decode of the TTS response shape.
// An empty audio payload is a hard failure; there is no fallback here.
func decodeSpeech(resp *generateResponse) (*SpeechResult, error) {
	if len(resp.Candidates) == 0 {
		return nil, errs.Generationf("TTS response has no candidates")
	}
	var pcm []byte
	mimeType := "audio/L16;rate=24000"
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.InlineData == nil || p.InlineData.Data == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
		if err != nil {
			return nil, errs.Generationf("TTS inline data is not valid base64: %v", err)
		}
		pcm = append(pcm, data...)
		if p.InlineData.MimeType != "" {
			mimeType = p.InlineData.MimeType
		}
	}
	if len(pcm) == 0 {
		return nil, errs.Generationf("TTS response contains no audio payload")
	}
	return &SpeechResult{PCM: pcm, MimeType: mimeType}, nil
}

func (c *client) modelOr(model string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return c.textModel
}

func textConfig(opts GenerateOptions, mimeType string) *generationConfig {
	gc := &generationConfig{MaxOutputTokens: opts.MaxTokens}
	if opts.Temperature > 0 {
		t := opts.Temperature
		gc.Temperature = &t
	}
	if mimeType != "" {
		gc.ResponseMimeType = mimeType
	}
	if opts.ResponseSchema != nil {
		gc.ResponseSchema = opts.ResponseSchema
	}
	return gc
}

func firstText(resp *generateResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", errs.Generationf("response has no candidates")
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", errs.Generationf("response candidate has no text")
	}
	return b.String(), nil
}

func (c *client) generate(ctx context.Context, model string, req generateRequest) (*generateResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, model)

	var last error
	backoff := 750 * time.Millisecond
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		resp, retryable, err := c.doOnce(ctx, url, body)
		if err == nil {
			return resp, nil
		}
		last = err
		if !retryable || attempt == c.maxRetries {
			break
		}
		c.log.Warn("generate attempt failed, retrying", "model", model, "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
	}
	return nil, fmt.Errorf("%w: %v", errs.ErrGeneration, last)
}

func (c *client) doOnce(ctx context.Context, url string, body []byte) (*generateResponse, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, true, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, 64<<20))
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("backend status %d: %s", httpResp.StatusCode, snippet(data))
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("backend status %d: %s", httpResp.StatusCode, snippet(data))
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, false, fmt.Errorf("decode response: %w", err)
	}
	if out.Error != nil {
		return nil, false, fmt.Errorf("backend error %s: %s", out.Error.Status, out.Error.Message)
	}
	return &out, false, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 300 {
		s = s[:300] + "…"
	}
	return s
}
