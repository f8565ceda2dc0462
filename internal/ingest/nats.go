package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// SubjectPrefix starts every push subject; the last token is the source name.
	SubjectPrefix = "alertgroups.push."
	queueGroup    = "alertgroups"
	pushTimeout   = 10 * time.Second
)

// PushSubject returns the subject a backend publishes to for one source.
func PushSubject(source string) string {
	return SubjectPrefix + source
}

// NATSSubscriber consumes pushed group lists from core NATS.
type NATSSubscriber struct {
	sub     *nats.Subscription
	sink    Sink
	sources map[string]struct{}
	logger  *slog.Logger
}

// NewNATSSubscriber subscribes one queue group to all push subjects.
// Params: shared connection, sink, names of push sources, and logger.
// Returns: started subscriber or subscribe error.
func NewNATSSubscriber(nc *nats.Conn, sink Sink, pushSources []string, logger *slog.Logger) (*NATSSubscriber, error) {
	subscriber := &NATSSubscriber{
		sink:    sink,
		sources: make(map[string]struct{}, len(pushSources)),
		logger:  logger,
	}
	for _, name := range pushSources {
		subscriber.sources[name] = struct{}{}
	}
	sub, err := nc.QueueSubscribe(SubjectPrefix+"*", queueGroup, subscriber.handle)
	if err != nil {
		return nil, fmt.Errorf("queue subscribe %q: %w", SubjectPrefix+"*", err)
	}
	subscriber.sub = sub
	return subscriber, nil
}

// handle decodes one message; bad payloads and unknown sources are dropped.
func (s *NATSSubscriber) handle(message *nats.Msg) {
	source := strings.TrimPrefix(message.Subject, SubjectPrefix)
	if _, ok := s.sources[source]; !ok {
		s.logger.Warn("nats push for unknown source dropped", "subject", message.Subject)
		s.reply(message, "unknown push source")
		return
	}
	groups, err := decodeBody(bytes.NewReader(message.Data))
	if err != nil {
		s.logger.Warn("nats push decode failed", "source", source, "error", err.Error())
		s.reply(message, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	if err := s.sink.Push(ctx, source, groups); err != nil {
		s.logger.Error("nats push store failed", "source", source, "error", err.Error())
		s.reply(message, "snapshot store unavailable")
		return
	}
	s.reply(message, "")
}

// reply answers request-style publishers; plain publishes have no reply subject.
func (s *NATSSubscriber) reply(message *nats.Msg, errMsg string) {
	if message.Reply == "" {
		return
	}
	payload := map[string]string{"status": "accepted"}
	if errMsg != "" {
		payload = map[string]string{"error": errMsg}
	}
	body, _ := json.Marshal(payload)
	if err := message.Respond(body); err != nil {
		s.logger.Warn("nats push reply failed", "subject", message.Subject, "error", err.Error())
	}
}

// Close drains the subscription; the connection is closed by its owner.
func (s *NATSSubscriber) Close() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Drain()
}
