package engine

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/google/uuid"
)

// fallbackModel backs conversations when neither the engine nor the spec
// names a model.
const fallbackModel = anthropic.ModelClaudeSonnet4_20250514

// AnthropicConfig configures the production engine.
type AnthropicConfig struct {
	// Model is the session-default model. Empty lets conversations without
	// an override run on the SDK fallback and report the session default.
	Model string
	// APIKey is the Anthropic API key. If empty, uses the ANTHROPIC_API_KEY
	// env var.
	APIKey string
	// UseAWSBedrock routes requests through AWS Bedrock instead of the
	// direct API.
	UseAWSBedrock bool
	// AWSRegion is the Bedrock region (e.g. "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS shared-config profile.
	AWSProfile string
	// MaxTokens bounds each response. Zero means 8192.
	MaxTokens int64
}

// AnthropicEngine runs sub-conversations against the Anthropic Messages API.
type AnthropicEngine struct {
	client    anthropic.Client
	model     string
	bedrock   bool
	maxTokens int64
	usage     *TokenUsage

	// mu protects conversations.
	mu            sync.Mutex
	conversations map[string]*anthropicConversation
}

// NewAnthropicEngine creates the production engine.
func NewAnthropicEngine(cfg AnthropicConfig) (*AnthropicEngine, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		ctx := context.Background()

		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}

		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	return &AnthropicEngine{
		client:        anthropic.NewClient(opts...),
		model:         cfg.Model,
		bedrock:       cfg.UseAWSBedrock,
		maxTokens:     maxTokens,
		usage:         &TokenUsage{},
		conversations: make(map[string]*anthropicConversation),
	}, nil
}

// Spawn creates a sub-conversation whose system prompt is the subagent's
// instructions.
func (e *AnthropicEngine) Spawn(ctx context.Context, instructions, modelOverride string) (SpawnResult, error) {
	if strings.TrimSpace(instructions) == "" {
		return SpawnResult{}, fmt.Errorf("instructions must not be empty")
	}

	resolved := modelOverride
	if resolved == "" {
		resolved = e.model
	}

	model := anthropic.Model(resolved)
	if resolved == "" {
		model = fallbackModel
	}
	if e.bedrock {
		model = translateModelForBedrock(model)
	}

	conv := &anthropicConversation{
		engine: e,
		id:     uuid.NewString(),
		model:  model,
		system: instructions,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}

	e.mu.Lock()
	e.conversations[conv.id] = conv
	e.mu.Unlock()

	return SpawnResult{
		ConversationID: conv.id,
		ResolvedModel:  resolved,
		Conversation:   conv,
	}, nil
}

// Release drops the conversation and wakes any pending NextEvent with a
// shutdown event.
func (e *AnthropicEngine) Release(conversationID string) {
	e.mu.Lock()
	conv, ok := e.conversations[conversationID]
	if ok {
		delete(e.conversations, conversationID)
	}
	e.mu.Unlock()

	if ok {
		conv.close()
	}
}

// Usage returns the token counter shared by all conversations.
func (e *AnthropicEngine) Usage() *TokenUsage {
	return e.usage
}

// translateModelForBedrock converts standard model names to Bedrock
// cross-region inference profiles: us.anthropic.{model}-v1:0.
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	if strings.HasPrefix(string(model), "us.anthropic.") {
		return model
	}
	return anthropic.Model("us.anthropic." + string(model) + "-v1:0")
}

// anthropicConversation is one live sub-conversation. Each Submit runs one
// request in the background and translates the response into engine events.
type anthropicConversation struct {
	engine *AnthropicEngine
	id     string
	model  anthropic.Model
	system string

	// mu protects history.
	mu      sync.Mutex
	history []anthropic.MessageParam

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// Submit appends user text to the conversation and starts the request.
func (c *anthropicConversation) Submit(ctx context.Context, text string) error {
	select {
	case <-c.done:
		return fmt.Errorf("conversation %s released", c.id)
	default:
	}

	c.mu.Lock()
	c.history = append(c.history, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
	messages := make([]anthropic.MessageParam, len(c.history))
	copy(messages, c.history)
	c.mu.Unlock()

	go c.pump(ctx, messages)
	return nil
}

// pump performs one Messages API call and emits the resulting events.
func (c *anthropicConversation) pump(ctx context.Context, messages []anthropic.MessageParam) {
	resp, err := c.engine.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.engine.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: c.system},
		},
		Messages: messages,
	})
	if err != nil {
		if ctx.Err() != nil {
			c.send(Event{Kind: EventTurnAborted, AbortReason: AbortInterrupted})
			return
		}
		c.send(Event{Kind: EventError, Message: err.Error()})
		return
	}

	c.engine.usage.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var parts []string
	var assistantBlocks []anthropic.ContentBlockParamUnion
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			parts = append(parts, variant.Text)
			assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(variant.Text))
			c.send(Event{Kind: EventAgentMessage, Message: variant.Text})
		}
	}

	c.mu.Lock()
	if len(assistantBlocks) > 0 {
		c.history = append(c.history, anthropic.NewAssistantMessage(assistantBlocks...))
	}
	c.mu.Unlock()

	if resp.StopReason == anthropic.StopReasonMaxTokens {
		c.send(Event{Kind: EventStreamError, Message: "response truncated at max tokens"})
	}

	c.send(Event{Kind: EventTaskComplete, Message: strings.Join(parts, "\n")})
}

func (c *anthropicConversation) send(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// NextEvent blocks for the next event, the context deadline, or release.
func (c *anthropicConversation) NextEvent(ctx context.Context) (Event, error) {
	select {
	case ev := <-c.events:
		return ev, nil
	case <-c.done:
		return Event{Kind: EventShutdownComplete}, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

func (c *anthropicConversation) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// TokenUsage tracks token consumption across API calls.
type TokenUsage struct {
	mu        sync.Mutex
	inputTok  int64
	outputTok int64
	calls     int
}

// Add records token usage from one API call.
func (t *TokenUsage) Add(input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputTok += input
	t.outputTok += output
	t.calls++
}

// Total returns the accumulated input and output tokens.
func (t *TokenUsage) Total() (input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inputTok, t.outputTok
}

// Calls returns the number of API calls made.
func (t *TokenUsage) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}
