package repository

import (
	"context"
	"fmt"
	"time"

	"AutoTrade/internal/domain/models"
	domrepo "AutoTrade/internal/domain/repository"
	applogger "AutoTrade/pkg/logger"
)

// Publisher is the slice of the Kafka producer the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// Alert is the payload published on the alert topic.
type Alert struct {
	Market  models.Country `json:"market"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	At      time.Time      `json:"at"`
}

// KafkaNotifier publishes session summaries and critical alerts keyed by market.
type KafkaNotifier struct {
	pub          Publisher
	summaryTopic string
	alertTopic   string
	now          func() time.Time
}

var _ domrepo.Notifier = (*KafkaNotifier)(nil)

func NewKafkaNotifier(pub Publisher, summaryTopic, alertTopic string) *KafkaNotifier {
	return &KafkaNotifier{pub: pub, summaryTopic: summaryTopic, alertTopic: alertTopic, now: time.Now}
}

func (n *KafkaNotifier) NotifySummary(ctx context.Context, s *models.SessionSummary) error {
	if err := n.pub.Publish(ctx, n.summaryTopic, string(s.Market), s); err != nil {
		return fmt.Errorf("notify summary %s: %w", s.RunID, err)
	}
	return nil
}

func (n *KafkaNotifier) Alert(ctx context.Context, market models.Country, msg string) error {
	a := Alert{Market: market, Level: "critical", Message: msg, At: n.now().UTC()}
	if err := n.pub.Publish(ctx, n.alertTopic, string(market), a); err != nil {
		return fmt.Errorf("alert %s: %w", market, err)
	}
	return nil
}

// LogNotifier writes summaries and alerts to the log when no broker is configured.
type LogNotifier struct {
	l *applogger.Logger
}

var _ domrepo.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(l *applogger.Logger) *LogNotifier { return &LogNotifier{l: l} }

func (n *LogNotifier) NotifySummary(_ context.Context, s *models.SessionSummary) error {
	n.l.Info("session summary",
		applogger.String("run_id", s.RunID),
		applogger.String("market", string(s.Market)),
		applogger.Any("summary", s),
	)
	return nil
}

func (n *LogNotifier) Alert(_ context.Context, market models.Country, msg string) error {
	n.l.Critical(msg, applogger.String("market", string(market)))
	return nil
}
