package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"steady/internal/core"
)

type MessageType string

const (
	TypePeriodBatch      MessageType = "period_batch"
	TypePeriodCorrection MessageType = "period_correction"
)

// CorrectionPayload carries a correction for one stored period
type CorrectionPayload struct {
	PeriodID core.PeriodID     `json:"period_id"`
	Values   core.PeriodValues `json:"values"`
	Reason   string            `json:"reason"`
}

// Message is the envelope exchanged on the ingestion queue. Exactly one of
// Periods or Correction is set, according to Type.
type Message struct {
	Type          MessageType           `json:"type"`
	CorrelationID string                `json:"correlation_id"`
	Timestamp     time.Time             `json:"timestamp"`
	Periods       []core.EarningsPeriod `json:"periods,omitempty"`
	Correction    *CorrectionPayload    `json:"correction,omitempty"`
}

func NewPeriodBatchMessage(periods []core.EarningsPeriod) *Message {
	return &Message{
		Type:          TypePeriodBatch,
		CorrelationID: uuid.NewString(),
		Timestamp:     time.Now(),
		Periods:       periods,
	}
}

func NewPeriodCorrectionMessage(id core.PeriodID, c core.Correction) *Message {
	return &Message{
		Type:          TypePeriodCorrection,
		CorrelationID: uuid.NewString(),
		Timestamp:     time.Now(),
		Correction:    &CorrectionPayload{PeriodID: id, Values: c.Values, Reason: c.Reason},
	}
}

// Validate checks the envelope shape; period contents are validated by the ledger.
func (m *Message) Validate() error {
	switch m.Type {
	case TypePeriodBatch:
		if len(m.Periods) == 0 {
			return &core.ValidationError{Field: "periods", Constraint: "batch must not be empty"}
		}
		if m.Correction != nil {
			return &core.ValidationError{Field: "correction", Constraint: "not allowed in a period batch"}
		}
	case TypePeriodCorrection:
		if m.Correction == nil {
			return &core.ValidationError{Field: "correction", Constraint: "required"}
		}
		if m.Correction.PeriodID == "" {
			return &core.ValidationError{Field: "correction.period_id", Constraint: "required"}
		}
		if len(m.Periods) > 0 {
			return &core.ValidationError{Field: "periods", Constraint: "not allowed in a correction"}
		}
	default:
		return &core.ValidationError{Field: "type", Constraint: fmt.Sprintf("unknown message type %q", m.Type)}
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MessageFromJSON decodes and validates a message
func MessageFromJSON(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
