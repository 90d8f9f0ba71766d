package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// fileType values of the recognition request: 1 for raster images the
// service accepts directly, 0 for everything else (treated as PDF).
func requestFileType(filePath string) int {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".jpg", ".jpeg", ".png":
		return 1
	default:
		return 0
	}
}

type recognitionRequest struct {
	File     string `json:"file"`
	FileType int    `json:"fileType"`
}

// APIModel calls the hosted layout-parsing API. The response nests one
// markdown document per page under layoutParsingResults.
type APIModel struct {
	url    string
	token  string
	client *http.Client
}

func NewAPIModel(url, token string, timeout time.Duration) *APIModel {
	return &APIModel{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

type apiResponse struct {
	Result struct {
		LayoutParsingResults []struct {
			Markdown struct {
				Text string `json:"text"`
			} `json:"markdown"`
		} `json:"layoutParsingResults"`
	} `json:"result"`
}

func (m *APIModel) Recognize(ctx context.Context, filePath string) (*Result, error) {
	body, err := encodeRequest(filePath)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "token "+m.token)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api recognition: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api recognition: unexpected status %s", resp.Status)
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode api response: %w", err)
	}

	pages := make([]string, 0, len(parsed.Result.LayoutParsingResults))
	for _, r := range parsed.Result.LayoutParsingResults {
		pages = append(pages, r.Markdown.Text)
	}

	return &Result{Engine: "api", Pages: pages, Merged: mergePages(pages)}, nil
}

// LocalModel calls a self-hosted recognition server. The server exposes a
// single /ocr endpoint with the same request shape as the hosted API and
// returns one markdown string per page.
type LocalModel struct {
	url    string
	client *http.Client
}

func NewLocalModel(url string, timeout time.Duration) *LocalModel {
	return &LocalModel{
		url:    strings.TrimSuffix(url, "/") + "/ocr",
		client: &http.Client{Timeout: timeout},
	}
}

type localResponse struct {
	Pages []string `json:"pages"`
}

func (m *LocalModel) Recognize(ctx context.Context, filePath string) (*Result, error) {
	body, err := encodeRequest(filePath)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("local recognition: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("local recognition: unexpected status %s", resp.Status)
	}

	var parsed localResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode local response: %w", err)
	}

	return &Result{Engine: "local", Pages: parsed.Pages, Merged: mergePages(parsed.Pages)}, nil
}

func encodeRequest(filePath string) (io.Reader, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	payload, err := json.Marshal(recognitionRequest{
		File:     base64.StdEncoding.EncodeToString(data),
		FileType: requestFileType(filePath),
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	return bytes.NewReader(payload), nil
}
