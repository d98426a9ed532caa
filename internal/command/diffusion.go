package command

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"matrixbot/internal/config"
	"matrixbot/internal/domain"
)

// Diffusion answers "!sd <prompt>" by rendering the prompt through an
// A1111-compatible txt2img HTTP backend. Generation is slow, so the
// command acknowledges immediately and holds a long request timeout.
type Diffusion struct {
	baseURL string
	steps   int
	width   int
	height  int
	http    *http.Client
	logger  *slog.Logger
}

func NewDiffusion(cfg config.DiffusionConfig, logger *slog.Logger) *Diffusion {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Diffusion{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		steps:   cfg.Steps,
		width:   cfg.Width,
		height:  cfg.Height,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *Diffusion) Trigger() string { return "!sd" }

type txt2imgRequest struct {
	Prompt      string `json:"prompt"`
	Steps       int    `json:"steps"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	SamplerName string `json:"sampler_name"`
}

type txt2imgResponse struct {
	Images []string `json:"images"`
}

func (c *Diffusion) Execute(ctx context.Context, inv *domain.Invocation) error {
	prompt := strings.TrimSpace(inv.Args)
	if prompt == "" {
		_, err := inv.Client.SendMessage(ctx, inv.RoomID, "Usage: !sd <prompt>")
		return err
	}

	if _, err := inv.Client.SendMessage(ctx, inv.RoomID, "Generating..."); err != nil {
		c.logger.Warn("diffusion ack failed", "room", inv.RoomID, "err", err)
	}

	data, err := c.generate(ctx, prompt)
	if err != nil {
		return err
	}
	return inv.Images.Route(ctx, inv.RoomID, "sd.png", data)
}

func (c *Diffusion) generate(ctx context.Context, prompt string) ([]byte, error) {
	body, err := json.Marshal(txt2imgRequest{
		Prompt:      prompt,
		Steps:       c.steps,
		Width:       c.width,
		Height:      c.height,
		SamplerName: "Euler a",
	})
	if err != nil {
		return nil, fmt.Errorf("encode txt2img request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sdapi/v1/txt2img", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build txt2img request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image backend unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("image backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out txt2imgResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode txt2img response: %w", err)
	}
	if len(out.Images) == 0 {
		return nil, fmt.Errorf("image backend returned no images")
	}

	data, err := base64.StdEncoding.DecodeString(out.Images[0])
	if err != nil {
		return nil, fmt.Errorf("decode generated image: %w", err)
	}
	return data, nil
}
