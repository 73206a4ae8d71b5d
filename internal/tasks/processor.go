package tasks

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"notehub/internal/queue"
)

const (
	TypeSessionCleanup = "session_cleanup"
	TypeRevokeUser     = "revoke_user"
)

// Sessions is the part of the auth service the worker drives.
type Sessions interface {
	CleanupExpiredSessions(ctx context.Context) (int64, error)
	RevokeAllSessions(ctx context.Context, userID string) (int64, error)
}

type Recorder interface {
	JobProcessed(jobType string, result string)
}

type Processor struct {
	sessions Sessions
	recorder Recorder
	logger   zerolog.Logger
}

func NewProcessor(sessions Sessions, recorder Recorder, logger zerolog.Logger) *Processor {
	return &Processor{
		sessions: sessions,
		recorder: recorder,
		logger:   logger,
	}
}

type TaskPayload struct {
	Type   string
	UserID string
}

func decodePayload(values map[string]interface{}) TaskPayload {
	str := func(key string) string {
		if v, ok := values[key].(string); ok {
			return v
		}
		return ""
	}
	return TaskPayload{
		Type:   str(queue.FieldType),
		UserID: str(queue.FieldUserID),
	}
}

// Handle dispatches a stream message. Unknown or malformed tasks are logged
// and acknowledged so they do not block the group.
func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	payload := decodePayload(msg.Values)
	logger := p.logger.With().Str("message_id", msg.ID).Str("type", payload.Type).Logger()

	var err error
	switch payload.Type {
	case TypeSessionCleanup:
		err = p.handleCleanup(ctx, logger)
	case TypeRevokeUser:
		err = p.handleRevoke(ctx, logger, payload)
	default:
		logger.Warn().Msg("unknown task type")
		p.record(payload.Type, "skipped")
		return nil
	}

	if err != nil {
		p.record(payload.Type, "error")
		return err
	}
	p.record(payload.Type, "success")
	return nil
}

func (p *Processor) handleCleanup(ctx context.Context, logger zerolog.Logger) error {
	n, err := p.sessions.CleanupExpiredSessions(ctx)
	if err != nil {
		return fmt.Errorf("cleanup sessions: %w", err)
	}
	logger.Info().Int64("deleted", n).Msg("expired sessions removed")
	return nil
}

func (p *Processor) handleRevoke(ctx context.Context, logger zerolog.Logger, payload TaskPayload) error {
	if payload.UserID == "" {
		logger.Warn().Msg("revoke task without user id")
		return nil
	}
	n, err := p.sessions.RevokeAllSessions(ctx, payload.UserID)
	if err != nil {
		return fmt.Errorf("revoke sessions for %s: %w", payload.UserID, err)
	}
	logger.Info().Str("user_id", payload.UserID).Int64("revoked", n).Msg("sessions revoked")
	return nil
}

func (p *Processor) record(jobType string, result string) {
	if p.recorder != nil {
		p.recorder.JobProcessed(jobType, result)
	}
}
