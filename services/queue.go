package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"webhookrelay/models"
	"webhookrelay/utils"
)

const (
	QueueStreamKey     = "relay:inbound"
	QueueConsumerGroup = "relay-group"
	QueueReplyPrefix   = "relay:reply:"
	queueEnvelopeField = "envelope"
	queueReadBlock     = 5 * time.Second
)

// QueueConsumer relays envelopes read from a Redis stream and publishes
// the replies on a per-session channel.
type QueueConsumer struct {
	rdb      *redis.Client
	chatbot  *Chatbot
	consumer string
}

// NewQueueConsumer creates a consumer. consumer names this instance within the group.
func NewQueueConsumer(rdb *redis.Client, chatbot *Chatbot, consumer string) *QueueConsumer {
	if consumer == "" {
		consumer = "relay-1"
	}
	return &QueueConsumer{rdb: rdb, chatbot: chatbot, consumer: consumer}
}

// EnsureConsumerGroup creates the stream and group if they do not exist yet.
func (q *QueueConsumer) EnsureConsumerGroup(ctx context.Context) error {
	err := q.rdb.XGroupCreateMkStream(ctx, QueueStreamKey, QueueConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// ConsumeLoop reads the stream until ctx is done. Entries are handled one at a time.
func (q *QueueConsumer) ConsumeLoop(ctx context.Context) {
	log := utils.Logger().With("binding", "redis", "stream", QueueStreamKey)
	log.Info("starting stream consumer", "group", QueueConsumerGroup, "consumer", q.consumer)

	for {
		select {
		case <-ctx.Done():
			log.Info("stream consumer stopped")
			return
		default:
		}

		streams, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    QueueConsumerGroup,
			Consumer: q.consumer,
			Streams:  []string{QueueStreamKey, ">"},
			Count:    1,
			Block:    queueReadBlock,
		}).Result()

		if errors.Is(err, redis.Nil) || (err != nil && ctx.Err() != nil) {
			continue
		}
		if err != nil {
			log.Error("error reading stream", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, msg)
			}
		}
	}
}

func (q *QueueConsumer) handleMessage(ctx context.Context, msg redis.XMessage) {
	ctx = utils.WithRequestID(ctx, "stream-"+msg.ID)
	log := utils.LoggerFromContext(ctx)

	// entries are acked whatever the outcome; a failed relay is not retried
	defer func() {
		if err := q.rdb.XAck(ctx, QueueStreamKey, QueueConsumerGroup, msg.ID).Err(); err != nil {
			log.Error("failed to ack stream entry", "error", err)
		}
	}()

	envelope, err := DecodeEnvelope(msg.Values)
	if err != nil {
		log.Warn("dropping stream entry", "error", err)
		return
	}

	turn := TurnFromEnvelope(envelope)
	reply, ok := q.chatbot.ProcessTurn(ctx, turn)

	out := models.QueueReply{
		Type:      "message",
		Text:      reply,
		SessionID: turn.SessionID,
		MessageID: turn.MessageID,
	}
	if !ok {
		out.Type = "error"
	}
	q.publishReply(ctx, out)
}

func (q *QueueConsumer) publishReply(ctx context.Context, reply models.QueueReply) {
	data, err := json.Marshal(reply)
	if err != nil {
		utils.LoggerFromContext(ctx).Error("failed to marshal reply", "error", err)
		return
	}
	if err := q.rdb.Publish(ctx, ReplyChannel(reply.SessionID), string(data)).Err(); err != nil {
		utils.LoggerFromContext(ctx).Error("failed to publish reply", "error", err)
	}
}

// DecodeEnvelope reads the envelope JSON out of a stream entry's fields.
func DecodeEnvelope(values map[string]interface{}) (models.QueueEnvelope, error) {
	raw, ok := values[queueEnvelopeField].(string)
	if !ok {
		return models.QueueEnvelope{}, fmt.Errorf("missing %q field", queueEnvelopeField)
	}
	var envelope models.QueueEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return models.QueueEnvelope{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return envelope, nil
}

// TurnFromEnvelope maps a queued envelope to a chat turn. The channel name is
// kept in the metadata unless the envelope already sets one.
func TurnFromEnvelope(e models.QueueEnvelope) models.ChatTurn {
	md := models.Metadata{}
	for k, v := range e.Metadata {
		md[k] = v
	}
	if _, ok := md["channel"]; !ok && e.Channel != "" {
		md["channel"] = e.Channel
	}
	if len(md) == 0 {
		md = nil
	}

	return models.ChatTurn{
		Message:   e.Text,
		ChatID:    e.ChatID,
		MessageID: e.MessageID,
		SessionID: e.SessionID,
		User:      e.User,
		Metadata:  md,
	}
}

// ReplyChannel is the pub/sub channel replies for a session are published on.
func ReplyChannel(sessionID string) string {
	return QueueReplyPrefix + sessionID
}
