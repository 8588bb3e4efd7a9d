package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"
	"github.com/shopspring/decimal"
)

const (
	SourceAI       = "ai"
	SourceTemplate = "template"

	maxReminderLength = 400
	defaultModel      = "gpt-4o-mini"
)

// ReminderInput describes the client's outstanding position.
type ReminderInput struct {
	ClientName      string
	Category        string
	TotalDue        decimal.Decimal
	OpenDettes      int
	OldestDetteID   int
	OldestDetteDate time.Time
}

// ReminderDraft is the structured output requested from the model.
type ReminderDraft struct {
	Message string `json:"message" jsonschema_description:"Reminder text addressed to the client, two sentences at most, polite, stating the amount due"`
	Tone    string `json:"tone" jsonschema:"enum=friendly,enum=firm"`
}

// Reminder is a drafted notification text and where it came from.
type Reminder struct {
	Message string
	Tone    string
	Source  string
}

// Drafter writes payment reminders. Without an API key it only uses the template.
type Drafter struct {
	client *openai.Client
	model  string
}

func NewDrafter(apiKey, model string, opts ...option.RequestOption) *Drafter {
	if model == "" {
		model = defaultModel
	}
	d := &Drafter{model: model}
	if apiKey != "" {
		client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
		d.client = &client
	}
	return d
}

// Enabled reports whether drafts go through the model.
func (d *Drafter) Enabled() bool { return d.client != nil }

// DraftReminder never fails: model errors fall back to TemplateReminder.
func (d *Drafter) DraftReminder(ctx context.Context, in ReminderInput) *Reminder {
	if d.client == nil {
		return TemplateReminder(in)
	}
	draft, err := d.draft(ctx, in)
	if err != nil {
		log.Printf("reminder drafting failed, using template: %v", err)
		return TemplateReminder(in)
	}
	return &Reminder{Message: draft.Message, Tone: draft.Tone, Source: SourceAI}
}

func (d *Drafter) draft(ctx context.Context, in ReminderInput) (*ReminderDraft, error) {
	prompt := fmt.Sprintf(`You write short payment reminders for a neighbourhood shop that sells on credit.
Rules:
1. Address the client by name.
2. State the exact amount due: %s.
3. Be courteous. Use a firm tone only if the oldest debt is more than 30 days old.
4. Two sentences at most, no greeting line, no signature.

Client: %s
Category: %s
Open debts: %d
Oldest debt: #%d from %s`,
		in.TotalDue.StringFixed(2), in.ClientName, in.Category, in.OpenDettes,
		in.OldestDetteID, in.OldestDetteDate.Format("2006-01-02"))

	schemaMap, err := schemaFor(ReminderDraft{})
	if err != nil {
		return nil, err
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(d.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: param.NewOpt(prompt),
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Type:        constant.JSONSchema("json_schema"),
					Name:        "payment_reminder",
					Strict:      param.NewOpt(true),
					Schema:      schemaMap,
					Description: param.NewOpt("A payment reminder for a client with outstanding debt"),
				},
			},
		},
	}

	resp, err := d.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai responses error: %w", err)
	}

	content := resp.OutputText()
	if content == "" {
		return nil, fmt.Errorf("empty response content")
	}

	var draft ReminderDraft
	if err := json.Unmarshal([]byte(content), &draft); err != nil {
		return nil, fmt.Errorf("failed to parse completion: %w", err)
	}
	draft.Message = strings.TrimSpace(draft.Message)
	if draft.Message == "" {
		return nil, fmt.Errorf("model returned an empty message")
	}
	if len(draft.Message) > maxReminderLength {
		return nil, fmt.Errorf("model returned %d characters, limit is %d", len(draft.Message), maxReminderLength)
	}
	return &draft, nil
}

func schemaFor(v any) (map[string]any, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schemaJSON, err := json.Marshal(reflector.Reflect(v))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(schemaJSON, &schemaMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema to map: %w", err)
	}
	return schemaMap, nil
}

// TemplateReminder is the deterministic fallback text.
func TemplateReminder(in ReminderInput) *Reminder {
	name := strings.TrimSpace(in.ClientName)
	if name == "" {
		name = "Dear client"
	}
	msg := fmt.Sprintf("%s, you have an outstanding balance of %s", name, in.TotalDue.StringFixed(2))
	if in.OpenDettes > 1 {
		msg += fmt.Sprintf(" across %d dettes", in.OpenDettes)
	}
	msg += ". Please visit the shop to settle it at your earliest convenience."
	return &Reminder{Message: msg, Tone: "friendly", Source: SourceTemplate}
}
