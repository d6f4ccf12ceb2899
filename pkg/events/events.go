// Package events publishes turn and compaction notifications over NATS.
// Publishing is best-effort: a nil publisher or a failed publish never
// affects the outcome of a turn.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
)

type Publisher struct {
	nc     *nats.Conn
	logger *log.Logger
}

// NewPublisher wraps a NATS connection. A nil connection disables
// publishing.
func NewPublisher(nc *nats.Conn, logger *log.Logger) *Publisher {
	return &Publisher{nc: nc, logger: logger}
}

type TurnEvent struct {
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"createdAt"`
}

type SummarizedEvent struct {
	SessionID     string    `json:"sessionId"`
	UserID        string    `json:"userId"`
	TriggerReason string    `json:"triggerReason"`
	CreatedAt     time.Time `json:"createdAt"`
}

// PublishTurn announces a completed turn on chat.<sessionID>.
func (p *Publisher) PublishTurn(event TurnEvent) {
	p.publish(fmt.Sprintf("chat.%s", event.SessionID), event)
}

// PublishSummarized announces a compaction on memory.summarized.<userID>.
func (p *Publisher) PublishSummarized(event SummarizedEvent) {
	p.publish(fmt.Sprintf("memory.summarized.%s", event.UserID), event)
}

func (p *Publisher) publish(subject string, payload any) {
	if p == nil || p.nc == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("Failed to marshal event", "subject", subject, "error", err)
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Warn("Failed to publish event", "subject", subject, "error", err)
	}
}
