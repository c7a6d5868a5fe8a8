package classify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/clinicpulse/outreach/pkg/logging"
)

// Intent is the bounded space of actions a call transcript can express.
type Intent string

const (
	IntentConfirm    Intent = "confirm"
	IntentReschedule Intent = "reschedule"
	IntentCancel     Intent = "cancel"
	IntentUnclear    Intent = "unclear"
)

// Confidence rates how sure the classifier is about the extracted intent.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Result is the structured reading of a call transcript.
type Result struct {
	Intent     Intent     `json:"intent"`
	NewDate    string     `json:"new_date,omitempty"`
	NewTime    string     `json:"new_time,omitempty"`
	Confidence Confidence `json:"confidence"`
	Notes      string     `json:"notes,omitempty"`
	Summary    string     `json:"summary,omitempty"`
}

// Actionable reports whether the intent demands a state change.
func (r Result) Actionable() bool {
	return r.Intent == IntentConfirm || r.Intent == IntentReschedule || r.Intent == IntentCancel
}

// Unclear is the fail-closed default: no actionable claim, lowest confidence.
func Unclear() Result {
	return Result{Intent: IntentUnclear, Confidence: ConfidenceLow}
}

// Provider generates a raw model completion for a system+user prompt pair.
type Provider interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Service turns transcripts into Results. Any provider failure or malformed
// output degrades to Unclear; classification never blocks the reconciler.
type Service struct {
	provider Provider
	logger   *logging.Logger
}

// NewService builds the classifier service. A nil provider is legal and
// yields Unclear for every transcript.
func NewService(provider Provider, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{provider: provider, logger: logger}
}

const systemPrompt = `You read transcripts of phone calls between a clinic's AI assistant and a patient about an upcoming appointment.
Reply with a single JSON object and nothing else:
{"intent":"confirm|reschedule|cancel|unclear","new_date":"YYYY-MM-DD or empty","new_time":"HH:MM 24h or empty","confidence":"high|medium|low","notes":"anything staff should know","summary":"one sentence"}
Rules:
- "confirm" only when the patient clearly commits to attending.
- "reschedule" when the patient asks for a different date or time; extract it when stated.
- "cancel" only when the patient clearly does not want the appointment.
- Anything ambiguous, off-topic, voicemail or cut short is "unclear".`

// Classify reads a transcript. It never returns an error.
func (s *Service) Classify(ctx context.Context, transcript string) Result {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" || s.provider == nil {
		return Unclear()
	}

	raw, err := s.provider.Generate(ctx, systemPrompt, "Transcript:\n"+transcript)
	if err != nil {
		s.logger.Warn("classifier provider failed, degrading to unclear", "error", err)
		return Unclear()
	}

	result, err := parseResult(raw)
	if err != nil {
		s.logger.Warn("classifier output unusable, degrading to unclear", "error", err)
		return Unclear()
	}
	return result
}

// parseResult extracts and validates the model's JSON answer. An unusable
// intent fails the whole parse; an unusable confidence only clamps to low.
func parseResult(raw string) (Result, error) {
	payload := extractJSON(raw)
	if payload == "" {
		return Result{}, errors.New("classify: no JSON object in model output")
	}

	var decoded struct {
		Intent     string `json:"intent"`
		NewDate    string `json:"new_date"`
		NewTime    string `json:"new_time"`
		Confidence string `json:"confidence"`
		Notes      string `json:"notes"`
		Summary    string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return Result{}, errors.New("classify: malformed JSON in model output")
	}

	intent := Intent(strings.ToLower(strings.TrimSpace(decoded.Intent)))
	switch intent {
	case IntentConfirm, IntentReschedule, IntentCancel, IntentUnclear:
	default:
		return Result{}, errors.New("classify: unknown intent in model output")
	}

	confidence := Confidence(strings.ToLower(strings.TrimSpace(decoded.Confidence)))
	switch confidence {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
	default:
		confidence = ConfidenceLow
	}

	return Result{
		Intent:     intent,
		NewDate:    normalizeDate(decoded.NewDate),
		NewTime:    normalizeTime(decoded.NewTime),
		Confidence: confidence,
		Notes:      strings.TrimSpace(decoded.Notes),
		Summary:    strings.TrimSpace(decoded.Summary),
	}, nil
}

// extractJSON tolerates markdown fences and prose around the JSON object.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

func normalizeDate(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if _, err := time.Parse("2006-01-02", value); err != nil {
		return ""
	}
	return value
}

func normalizeTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if _, err := time.Parse("15:04", value); err != nil {
		return ""
	}
	return value
}
