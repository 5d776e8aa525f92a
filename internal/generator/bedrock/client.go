// Package bedrock is a generator.Client for Anthropic models hosted on Amazon
// Bedrock.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"

	"github.com/asklake/asklake/internal/generator"
)

const anthropicVersion = "bedrock-2023-05-31"

var throttlingCodes = map[string]struct{}{
	"ThrottlingException":      {},
	"TooManyRequestsException": {},
}

type Config struct {
	ModelID     string
	Region      string
	Temperature float64
	Timeout     time.Duration
}

type invokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type Client struct {
	api         invokeModelAPI
	modelID     string
	temperature float64
}

// New builds a client from the default AWS credential chain. The SDK retryer
// is disabled; throttling is retried by generator.Invoker.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.ModelID) == "" {
		return nil, fmt.Errorf("bedrock model id is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(strings.TrimSpace(cfg.Region)),
		awsconfig.WithHTTPClient(awshttp.NewBuildableClient().WithTimeout(timeout)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	api := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		o.Retryer = aws.NopRetryer{}
	})
	return NewWithAPI(api, cfg)
}

func NewWithAPI(api invokeModelAPI, cfg Config) (*Client, error) {
	if api == nil {
		return nil, fmt.Errorf("bedrock api is required")
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		return nil, fmt.Errorf("bedrock model id is required")
	}
	return &Client{api: api, modelID: strings.TrimSpace(cfg.ModelID), temperature: cfg.Temperature}, nil
}

type textBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type message struct {
	Role    string      `json:"role"`
	Content []textBlock `json:"content"`
}

type invokeBody struct {
	AnthropicVersion string      `json:"anthropic_version"`
	MaxTokens        int         `json:"max_tokens"`
	System           []textBlock `json:"system,omitempty"`
	Messages         []message   `json:"messages"`
	Temperature      *float64    `json:"temperature,omitempty"`
}

type invokeReply struct {
	Model      string      `json:"model"`
	StopReason string      `json:"stop_reason"`
	Content    []textBlock `json:"content"`
}

func (c *Client) Invoke(ctx context.Context, req generator.Request) (generator.Response, error) {
	body, err := json.Marshal(buildBody(req, c.temperature))
	if err != nil {
		return generator.Response{}, fmt.Errorf("marshal bedrock body: %w", err)
	}

	out, err := c.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return generator.Response{}, classifyError(err)
	}

	var reply invokeReply
	if err := json.Unmarshal(out.Body, &reply); err != nil {
		return generator.Response{}, fmt.Errorf("decode bedrock reply: %w", err)
	}

	var text strings.Builder
	for _, block := range reply.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	model := reply.Model
	if model == "" {
		model = c.modelID
	}
	return generator.Response{
		Text:       strings.TrimSpace(text.String()),
		Model:      model,
		StopReason: reply.StopReason,
	}, nil
}

func buildBody(req generator.Request, temperature float64) invokeBody {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 300
	}
	body := invokeBody{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        maxTokens,
		Messages:         make([]message, 0, len(req.Messages)),
	}
	if strings.TrimSpace(req.System) != "" {
		body.System = []textBlock{{Type: "text", Text: req.System}}
	}
	for _, msg := range req.Messages {
		body.Messages = append(body.Messages, message{
			Role:    string(msg.Role),
			Content: []textBlock{{Type: "text", Text: msg.Text}},
		})
	}
	if temperature > 0 {
		body.Temperature = &temperature
	}
	return body
}

func classifyError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := throttlingCodes[apiErr.ErrorCode()]; ok {
			return &generator.ThrottlingError{Code: apiErr.ErrorCode(), Err: err}
		}
	}
	return fmt.Errorf("invoke bedrock model: %w", err)
}
