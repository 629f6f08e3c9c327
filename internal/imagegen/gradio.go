package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const gradioMaxImageSize = 20 * 1024 * 1024

var gradioDataRe = regexp.MustCompile(`data:\s*(\[.*\])`)

// GradioSynthesizer talks to a Gradio app's call API. Generation is a two
// step exchange: POST the inputs to get an event id, then GET the event's
// SSE stream and read the result URL from its data line.
type GradioSynthesizer struct {
	endpoint string
	client   *http.Client
}

// NewGradioSynthesizer creates a backend for endpoint, e.g.
// https://host/gradio_api/call/generate.
func NewGradioSynthesizer(endpoint string, timeout time.Duration) *GradioSynthesizer {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &GradioSynthesizer{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

func (g *GradioSynthesizer) Synthesize(ctx context.Context, req Request) (string, error) {
	if g.endpoint == "" {
		return "", fmt.Errorf("gradio endpoint not configured")
	}
	width, height := req.Class.Size()

	eventID, err := g.submit(ctx, req.Prompt(), width, height)
	if err != nil {
		return "", err
	}
	imageURL, err := g.result(ctx, eventID)
	if err != nil {
		return "", err
	}
	return g.download(ctx, imageURL)
}

func (g *GradioSynthesizer) submit(ctx context.Context, prompt string, width, height int) (string, error) {
	// The app's inputs are [prompt, height, width].
	body, _ := json.Marshal(map[string]any{"data": []any{prompt, height, width}})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build gradio request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gradio submit: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gradio submit failed: HTTP %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("read gradio submit response: %w", err)
	}
	var submitted struct {
		EventID string `json:"event_id"`
	}
	if json.Unmarshal(raw, &submitted) == nil && submitted.EventID != "" {
		return submitted.EventID, nil
	}
	// Some deployments answer with the bare id.
	var bare string
	if json.Unmarshal(raw, &bare) == nil && bare != "" {
		return bare, nil
	}
	return "", fmt.Errorf("no event_id returned from gradio")
}

func (g *GradioSynthesizer) result(ctx context.Context, eventID string) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"/"+eventID, nil)
	if err != nil {
		return "", fmt.Errorf("build gradio result request: %w", err)
	}
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gradio result: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gradio result fetch failed: HTTP %d", resp.StatusCode)
	}

	text, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return "", fmt.Errorf("read gradio result: %w", err)
	}
	m := gradioDataRe.FindSubmatch(text)
	if m == nil {
		return "", fmt.Errorf("could not parse gradio SSE response")
	}
	var data []struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(m[1], &data); err != nil {
		return "", fmt.Errorf("decode gradio result: %w", err)
	}
	if len(data) == 0 || data[0].URL == "" {
		return "", fmt.Errorf("no image url in gradio response")
	}
	return data[0].URL, nil
}

// download fetches the image so the session does not depend on the Gradio
// host's temporary file URLs.
func (g *GradioSynthesizer) download(ctx context.Context, imageURL string) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build image download request: %w", err)
	}
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("image download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image download failed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, gradioMaxImageSize))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return "", ErrNoImage
	}
	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" || !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(data)
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return dataURI(mimeType, data), nil
}
