package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"AutoTrade/internal/domain/models"
	domrepo "AutoTrade/internal/domain/repository"
	pkgkafka "AutoTrade/pkg/kafka"
)

// SessionCommandHandler consumes session commands from Kafka.
type SessionCommandHandler struct {
	topic      string
	dispatcher *Dispatcher
	metrics    domrepo.Metrics
}

func NewSessionCommandHandler(topic string, dispatcher *Dispatcher, metrics domrepo.Metrics) *SessionCommandHandler {
	return &SessionCommandHandler{topic: topic, dispatcher: dispatcher, metrics: metrics}
}

func (h *SessionCommandHandler) Topic() string { return h.topic }

// incoming message schema: {market, dry_run, only}
func (h *SessionCommandHandler) Handle(ctx context.Context, b []byte) error {
	var cmd models.SessionCommand
	if err := json.Unmarshal(b, &cmd); err != nil {
		h.metrics.RecordError("command_unmarshal")
		return fmt.Errorf("decode session command: %w", err)
	}
	cmd.Market = models.Country(strings.ToUpper(string(cmd.Market)))

	_, err := h.dispatcher.Execute(ctx, cmd)
	switch {
	case err == nil:
		return nil
	// a duplicate command for a session already running or done today is not retried
	case errors.Is(err, ErrSessionBusy), errors.Is(err, ErrSessionLocked):
		h.metrics.RecordError("command_duplicate")
		return nil
	default:
		h.metrics.RecordError("command_failed")
		return err
	}
}

var _ pkgkafka.MessageHandler = (*SessionCommandHandler)(nil)
