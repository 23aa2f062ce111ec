package service

import (
	"context"
	"fmt"
	"strings"

	"audience-engine-be/internal/dto"
	"audience-engine-be/internal/pkg/logger"
	"audience-engine-be/pkg/engine/decision"
	"audience-engine-be/pkg/engine/pipeline"
	"audience-engine-be/pkg/engine/policy"
	"audience-engine-be/pkg/engine/statemachine"
	"audience-engine-be/pkg/events"
	"audience-engine-be/pkg/llm"

	"github.com/google/uuid"
)

// IChatService is the transport-facing API over the message pipeline.
type IChatService interface {
	SendMessage(ctx context.Context, request *dto.ChatMessageRequest, security *policy.SecurityContext) (*dto.ChatMessageResponse, error)
	SendAction(ctx context.Context, request *dto.ChatActionRequest) (*dto.ChatActionResponse, error)
}

type chatService struct {
	pipeline *pipeline.Pipeline
	policies *policy.Engine
	provider llm.LLMProvider
	emitter  *events.Emitter
	logger   logger.ILogger
}

func NewChatService(
	p *pipeline.Pipeline,
	policies *policy.Engine,
	provider llm.LLMProvider,
	emitter *events.Emitter,
	log logger.ILogger,
) IChatService {
	return &chatService{
		pipeline: p,
		policies: policies,
		provider: provider,
		emitter:  emitter,
		logger:   log,
	}
}

func (s *chatService) SendMessage(ctx context.Context, request *dto.ChatMessageRequest, security *policy.SecurityContext) (*dto.ChatMessageResponse, error) {
	accountId, err := uuid.Parse(request.AccountId)
	if err != nil {
		return nil, fmt.Errorf("invalid account id: %w", err)
	}

	var sessionId *uuid.UUID
	if request.SessionId != "" {
		sid, err := uuid.Parse(request.SessionId)
		if err != nil {
			return nil, fmt.Errorf("invalid session id: %w", err)
		}
		sessionId = &sid
	}

	result, err := s.pipeline.ProcessMessage(ctx, pipeline.MessageInput{
		AccountId:       accountId,
		SessionId:       sessionId,
		AnonId:          request.AnonId,
		Message:         request.Message,
		ClientMessageId: request.ClientMessageId,
		Source:          request.Source,
		IPHash:          request.IPHash,
		UserAgent:       request.UserAgent,
		Security:        security,
	})
	if err != nil {
		return nil, err
	}

	response := &dto.ChatMessageResponse{
		SessionId: result.SessionId,
		State:     result.State,
		Blocked:   result.Blocked,
		Reason:    result.Reason,
		Cached:    result.Replayed,
		TraceId:   result.TraceId,
	}
	if result.Replayed {
		response.CachedResult = result.Cached
		return response, nil
	}
	if result.Response != nil {
		response.Text = result.Response.Text
		response.UIDirectives = &result.Response.UIDirectives
	}
	if result.Blocked && result.Decision != nil {
		response.UIDirectives = &result.Decision.UIDirectives
	}
	return response, nil
}

// SendAction counts a quick action click against its own rate window and
// records it in the event log. Actions never run the full pipeline.
func (s *chatService) SendAction(ctx context.Context, request *dto.ChatActionRequest) (*dto.ChatActionResponse, error) {
	verdict := s.policies.CheckAction(ctx, request.SessionId)
	if !verdict.Allowed {
		return &dto.ChatActionResponse{
			Accepted: false,
			Reason:   "יותר מדי פעולות. נסה שוב בעוד דקה",
		}, nil
	}

	eventType := events.QuickActionClicked
	switch request.ActionType {
	case "coupon_copied":
		eventType = events.CouponCopied
	case "link_clicked":
		eventType = events.LinkClicked
	case "form_submitted":
		eventType = events.FormSubmitted
	}

	s.emitter.Emit(events.EngineEvent{
		Type:      eventType,
		AccountID: request.AccountId,
		SessionID: request.SessionId,
		Payload: map[string]interface{}{
			"actionId": request.ActionId,
			"label":    request.Label,
		},
		Metadata: events.Metadata{Source: "chat"},
	})

	return &dto.ChatActionResponse{Accepted: true}, nil
}

// Handle implements pipeline.Handler: the dispatch from a decided message to
// the response path the decision selected.
func (s *chatService) Handle(ctx context.Context, req *pipeline.HandlerRequest) (*pipeline.HandlerResponse, error) {
	// Policy-forced templates short-circuit generation entirely.
	if req.Decision.ResponseStrategy.Type == "template" && req.Decision.ResponseStrategy.TemplateId != "" {
		return s.renderTemplate(req), nil
	}

	switch req.Decision.Handler {
	case decision.HandlerSupportFlow:
		return s.handleSupportFlow(ctx, req)
	case decision.HandlerSalesFlow:
		return s.handleSalesFlow(ctx, req)
	case decision.HandlerHuman:
		return s.handleHuman(req)
	case decision.HandlerNotificationOnly:
		return s.handleNotificationOnly(req)
	default:
		return s.handleChat(ctx, req)
	}
}

func (s *chatService) handleChat(ctx context.Context, req *pipeline.HandlerRequest) (*pipeline.HandlerResponse, error) {
	text, tokens, err := s.generate(ctx, req, chatSystemPrompt(req))
	if err != nil {
		return nil, err
	}
	return &pipeline.HandlerResponse{
		Text:         text,
		UIDirectives: req.Decision.UIDirectives,
		TokensUsed:   tokens,
		Cost:         estimateCost(req.Decision.ModelStrategy.Model, tokens),
	}, nil
}

// handleSupportFlow walks the support states. When policy stripped the form
// and progress directives (public channel), the flow degrades to quick-action
// collection with no PII fields.
func (s *chatService) handleSupportFlow(_ context.Context, req *pipeline.HandlerRequest) (*pipeline.HandlerResponse, error) {
	ui := req.Decision.UIDirectives
	formsAllowed := ui.ShowForm != "" || ui.ShowProgress != nil

	text, step := supportStepText(req.State)
	if !formsAllowed {
		// No-form fallback path. Keep collecting through free text and the
		// policy-substituted quick actions.
		if len(ui.ShowQuickActions) == 0 {
			ui.ShowQuickActions = []string{"פנייה דרך וואטסאפ", "להמשיך בצ'אט (ללא פרטי הזמנה)"}
		}
		return &pipeline.HandlerResponse{
			Text:         text,
			UIDirectives: ui,
			Payload:      map[string]interface{}{"supportStep": step, "formless": true},
		}, nil
	}

	if form := supportStepForm(req.State); form != "" {
		ui.ShowForm = form
	}
	if ui.ShowProgress != nil {
		ui.ShowProgress = &decision.ProgressDirective{
			Current: step,
			Total:   5,
			Label:   ui.ShowProgress.Label,
		}
	}
	return &pipeline.HandlerResponse{
		Text:         text,
		UIDirectives: ui,
		Payload:      map[string]interface{}{"supportStep": step},
	}, nil
}

func (s *chatService) handleSalesFlow(ctx context.Context, req *pipeline.HandlerRequest) (*pipeline.HandlerResponse, error) {
	text, tokens, err := s.generate(ctx, req, salesSystemPrompt(req))
	if err != nil {
		return nil, err
	}
	return &pipeline.HandlerResponse{
		Text:         text,
		UIDirectives: req.Decision.UIDirectives,
		TokensUsed:   tokens,
		Cost:         estimateCost(req.Decision.ModelStrategy.Model, tokens),
	}, nil
}

func (s *chatService) handleHuman(req *pipeline.HandlerRequest) (*pipeline.HandlerResponse, error) {
	return &pipeline.HandlerResponse{
		Text:         "מעבירה אותך לנציג אנושי. נחזור אליך בהקדם",
		UIDirectives: req.Decision.UIDirectives,
		Payload:      map[string]interface{}{"escalated": true},
	}, nil
}

// handleNotificationOnly answers nothing visible; the event log carries the
// notification to the owner.
func (s *chatService) handleNotificationOnly(req *pipeline.HandlerRequest) (*pipeline.HandlerResponse, error) {
	return &pipeline.HandlerResponse{
		Text:         "",
		UIDirectives: decision.UIDirectives{},
		Payload:      map[string]interface{}{"notified": true},
	}, nil
}

func (s *chatService) renderTemplate(req *pipeline.HandlerRequest) *pipeline.HandlerResponse {
	texts := map[string]string{
		"auth_required":       "פעולה זו דורשת התחברות כבעל החשבון",
		"rate_limit_exceeded": "רגע, אתה שולח יותר מדי הודעות. נסה שוב בעוד דקה",
		"account_rate_limit":  "הגעת למגבלת ההודעות. נסה שוב בעוד כמה דקות",
	}
	text, ok := texts[req.Decision.ResponseStrategy.TemplateId]
	if !ok {
		text = "לא ניתן לבצע את הפעולה כרגע"
	}
	return &pipeline.HandlerResponse{
		Text:         text,
		UIDirectives: req.Decision.UIDirectives,
	}
}

func (s *chatService) generate(ctx context.Context, req *pipeline.HandlerRequest, systemPrompt string) (string, int, error) {
	strategy := req.Decision.ModelStrategy

	options := []llm.Option{
		llm.WithMaxTokens(strategy.MaxTokens),
	}
	if strategy.Temperature > 0 {
		options = append(options, llm.WithTemperature(strategy.Temperature))
	}

	history := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: req.Message},
	}

	text, err := s.provider.Chat(ctx, history, options...)
	if err != nil {
		return "", 0, fmt.Errorf("response generation: %w", err)
	}

	tokens := estimateTokens(text)
	return text, tokens, nil
}

func chatSystemPrompt(req *pipeline.HandlerRequest) string {
	var b strings.Builder
	b.WriteString("את עוזרת אישית של משפיענית. עני בעברית, בגוף ראשון.\n")
	switch req.Decision.UIDirectives.Tone {
	case "professional":
		b.WriteString("טון: מקצועי ומכבד.\n")
	case "empathetic":
		b.WriteString("טון: אמפתי ותומך.\n")
	default:
		b.WriteString("טון: קליל וחברותי.\n")
	}
	if req.Decision.UIDirectives.ResponseLength == "short" {
		b.WriteString("עני בקצרה, משפט או שניים.\n")
	}
	if req.Decision.Action == decision.ActClarify {
		b.WriteString("ההודעה לא הייתה ברורה. שאלי שאלת הבהרה קצרה.\n")
		if len(req.Understanding.SuggestedClarifications) > 0 {
			b.WriteString("אפשרויות הבהרה: " + strings.Join(req.Understanding.SuggestedClarifications, "; ") + "\n")
		}
	}
	if len(req.Decision.ContextToInclude) > 0 {
		b.WriteString("הקשר זמין: " + strings.Join(req.Decision.ContextToInclude, ", ") + "\n")
	}
	return b.String()
}

func salesSystemPrompt(req *pipeline.HandlerRequest) string {
	base := chatSystemPrompt(req)
	return base + "המשתמש מתעניין במוצרים או מחירים. המליצי על מוצרים רלוונטיים והציעי קופונים אם יש.\n"
}

// supportStepText maps a support state to the prompt shown to the user and
// the step number for the progress bar.
func supportStepText(state statemachine.State) (string, int) {
	switch state {
	case statemachine.StateSupportCollectBrand:
		return "על איזה מותג מדובר?", 1
	case statemachine.StateSupportCollectName:
		return "איך קוראים לך?", 2
	case statemachine.StateSupportCollectOrder:
		return "מה מספר ההזמנה?", 3
	case statemachine.StateSupportCollectProblem:
		return "ספרי לי מה הבעיה", 4
	case statemachine.StateSupportCollectPhone:
		return "לאיזה מספר טלפון נוכל לחזור אליך?", 5
	case statemachine.StateSupportConfirming:
		return "אלו הפרטים שקיבלתי. הכל נכון?", 5
	case statemachine.StateSupportComplete:
		return "הפנייה נשלחה! נחזור אליך בהקדם", 5
	default:
		return "בואי נפתח פנייה. על איזה מותג מדובר?", 1
	}
}

func supportStepForm(state statemachine.State) string {
	switch state {
	case statemachine.StateSupportCollectName:
		return "name"
	case statemachine.StateSupportCollectOrder:
		return "order"
	case statemachine.StateSupportCollectProblem:
		return "problem"
	case statemachine.StateSupportCollectPhone:
		return "phone"
	default:
		return ""
	}
}

func estimateTokens(text string) int {
	// Rough heuristic, 4 chars per token.
	n := len(text) / 4
	if n == 0 && len(text) > 0 {
		n = 1
	}
	return n
}

func estimateCost(model string, tokens int) float64 {
	perThousand := map[string]float64{
		decision.ModelNano:     0.0002,
		decision.ModelStandard: 0.002,
		decision.ModelFull:     0.01,
	}
	rate, ok := perThousand[model]
	if !ok {
		rate = perThousand[decision.ModelStandard]
	}
	return float64(tokens) / 1000 * rate
}
