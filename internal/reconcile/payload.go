package reconcile

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/clinicpulse/outreach/internal/appointments"
)

// CallOutcomePayload is the normalized reading of a voice provider's
// call-result callback.
type CallOutcomePayload struct {
	CallID     string
	CallStatus string
	Duration   float64
	Transcript string
	Phone      string
	Raw        json.RawMessage
}

// callOutcomeEnvelope mirrors the fields providers place in varying
// locations. Accessors below pick the first populated one.
type callOutcomeEnvelope struct {
	CallID      string `json:"call_id"`
	ID          string `json:"id"`
	Status      string `json:"status"`
	CallStatus  string `json:"call_status"`
	Disposition string `json:"disposition"`

	DurationSeconds float64 `json:"duration_seconds"`
	CallLength      float64 `json:"call_length"`

	Transcript             string `json:"transcript"`
	ConcatenatedTranscript string `json:"concatenated_transcript"`
	Transcripts            []struct {
		Role string `json:"role"`
		Text string `json:"text"`
	} `json:"transcripts"`

	To            string `json:"to"`
	ToNumber      string `json:"to_number"`
	CustomerPhone string `json:"customer_phone"`
	PhoneNumber   string `json:"phone_number"`
	Variables     struct {
		PhoneNumber string `json:"phone_number"`
	} `json:"variables"`
}

func (e callOutcomeEnvelope) callID() string {
	if v := strings.TrimSpace(e.CallID); v != "" {
		return v
	}
	return strings.TrimSpace(e.ID)
}

func (e callOutcomeEnvelope) status() string {
	for _, v := range []string{e.CallStatus, e.Status, e.Disposition} {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func (e callOutcomeEnvelope) duration() float64 {
	if e.DurationSeconds > 0 {
		return e.DurationSeconds
	}
	return e.CallLength
}

func (e callOutcomeEnvelope) transcript() string {
	if v := strings.TrimSpace(e.Transcript); v != "" {
		return v
	}
	if v := strings.TrimSpace(e.ConcatenatedTranscript); v != "" {
		return v
	}
	if len(e.Transcripts) > 0 {
		var b strings.Builder
		for _, turn := range e.Transcripts {
			text := strings.TrimSpace(turn.Text)
			if text == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			if turn.Role != "" {
				b.WriteString(turn.Role)
				b.WriteString(": ")
			}
			b.WriteString(text)
		}
		return b.String()
	}
	return ""
}

func (e callOutcomeEnvelope) phone() string {
	for _, v := range []string{e.CustomerPhone, e.To, e.ToNumber, e.PhoneNumber, e.Variables.PhoneNumber} {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// ParseCallOutcome reads a provider callback body, tolerating both the
// data-wrapped and the flat envelope shape.
func ParseCallOutcome(body []byte) (CallOutcomePayload, error) {
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	payload := body
	if err := json.Unmarshal(body, &wrapper); err == nil && len(wrapper.Data) > 0 && string(wrapper.Data) != "null" {
		payload = wrapper.Data
	}

	var env callOutcomeEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return CallOutcomePayload{}, errors.New("reconcile: unreadable call outcome payload")
	}

	out := CallOutcomePayload{
		CallID:     env.callID(),
		CallStatus: normalizeCallStatus(env.status(), env.transcript()),
		Duration:   env.duration(),
		Transcript: env.transcript(),
		Phone:      env.phone(),
		Raw:        json.RawMessage(body),
	}
	if out.Phone == "" {
		return out, errors.New("reconcile: call outcome carries no phone number")
	}
	return out, nil
}

// normalizeCallStatus maps the provider's vocabulary onto the communication
// log's call statuses.
func normalizeCallStatus(status, transcript string) string {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(status), "-", "_")) {
	case "answered", "completed", "human", "done":
		return appointments.CallAnswered
	case "voicemail", "machine", "answering_machine":
		return appointments.CallVoicemail
	case "no_answer", "noanswer", "busy", "failed", "not_reached":
		return appointments.CallNoAnswer
	}
	if strings.TrimSpace(transcript) != "" {
		return appointments.CallAnswered
	}
	return appointments.CallNoAnswer
}
