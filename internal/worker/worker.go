// Package worker drives claimed queue events through the processing
// pipeline: resolve tenant state, consult the AI runtime, deliver the reply.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chatforge/bridge-api/internal/ai"
	"github.com/chatforge/bridge-api/internal/bridge"
	"github.com/chatforge/bridge-api/internal/metrics"
	"github.com/chatforge/bridge-api/internal/provider"
	"github.com/chatforge/bridge-api/internal/retry"
	"github.com/chatforge/bridge-api/internal/store"
	"github.com/chatforge/bridge-api/internal/webhook"
)

// Status is the terminal disposition of one pipeline run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusReleased  Status = "released"
	StatusFailed    Status = "failed"
)

// Result reports what happened to one claimed event.
type Result struct {
	EventID uuid.UUID `json:"event_id"`
	Status  Status    `json:"status"`
	Stage   string    `json:"stage,omitempty"`
	Warning string    `json:"warning,omitempty"`
	Error   string    `json:"error,omitempty"`
}

type Config struct {
	SessionTTL      time.Duration
	Parallel        int
	StaleClaimAfter time.Duration
}

type Worker struct {
	store   *store.Store
	runtime *ai.Client
	sender  *provider.Client
	metrics *metrics.Metrics

	sessionTTL time.Duration
	parallel   int
	staleAfter time.Duration

	dbPolicy   *retry.Policy
	aiPolicy   *retry.Policy
	sendPolicy *retry.Policy
}

func New(st *store.Store, runtime *ai.Client, sender *provider.Client, m *metrics.Metrics, cfg Config) *Worker {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 365 * 24 * time.Hour
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = 4
	}
	if cfg.StaleClaimAfter <= 0 {
		cfg.StaleClaimAfter = 2 * time.Minute
	}
	if m == nil {
		m = metrics.New()
	}
	return &Worker{
		store:      st,
		runtime:    runtime,
		sender:     sender,
		metrics:    m,
		sessionTTL: cfg.SessionTTL,
		parallel:   cfg.Parallel,
		staleAfter: cfg.StaleClaimAfter,
		dbPolicy:   retry.New(),
		aiPolicy:   retry.New(),
		sendPolicy: retry.New(),
	}
}

// run carries the state a pipeline accumulates across stages.
type run struct {
	event   *bridge.QueuedEvent
	norm    bridge.NormalizedMessage
	conn    *bridge.SocialConnection
	sess    *bridge.Session
	conv    *bridge.Conversation
	binding *bridge.AIProjectBinding
	items   []ai.ResponseItem
	reply   provider.Reply
}

func conversationKey(tenantID uuid.UUID, platform bridge.Platform, senderID string) string {
	return fmt.Sprintf("conv:%s:%s:%s", tenantID, platform, senderID)
}

// Process runs one claimed event through the pipeline. The conversation's
// advisory lock serializes it against concurrent runs for the same thread,
// across processes.
func (w *Worker) Process(ctx context.Context, ev *bridge.QueuedEvent) Result {
	res := Result{EventID: ev.ID, Status: StatusFailed}
	err := w.store.WithAdvisoryLock(ctx, conversationKey(ev.TenantID, ev.Platform, ev.SenderID), func(ctx context.Context) error {
		res = w.process(ctx, ev)
		return nil
	})
	if err != nil {
		// Could not take the lock; hand the claim back for a later drain.
		msg := "conversation lock: " + err.Error()
		if rerr := w.store.ReleaseEvent(ctx, ev.ID, msg); rerr != nil {
			log.Error().Err(rerr).Str("event_id", ev.ID.String()).Msg("release after lock failure")
		}
		return Result{EventID: ev.ID, Status: StatusReleased, Error: msg}
	}
	w.metrics.EventsProcessed.WithLabelValues(string(res.Status)).Inc()
	return res
}

type stage struct {
	name   string
	policy *retry.Policy
	fn     func(ctx context.Context, rn *run) error
}

func (w *Worker) process(ctx context.Context, ev *bridge.QueuedEvent) Result {
	logger := log.With().
		Str("event_id", ev.ID.String()).
		Str("tenant_id", ev.TenantID.String()).
		Str("platform", string(ev.Platform)).
		Logger()

	norm, err := webhook.Normalize(ev.Platform, ev.RawPayload)
	if err != nil {
		return w.failStage(ctx, ev, bridge.StageReceived, bridge.Wrap(bridge.KindMalformedPayload, bridge.StageReceived, err))
	}
	if norm.Text == "" {
		return w.completeSkipped(ctx, ev, "empty normalized text")
	}

	rn := &run{event: ev, norm: norm}
	stages := []stage{
		{bridge.StageConnection, w.dbPolicy, w.resolveConnection},
		{bridge.StageSession, w.dbPolicy, w.acquireSession},
		{bridge.StageConversation, w.dbPolicy, w.upsertConversation},
		{bridge.StageUserMessage, w.dbPolicy, w.persistUserMessage},
		{bridge.StageSessionUpdate, w.dbPolicy, w.appendUserTurn},
		{bridge.StageBinding, w.dbPolicy, w.resolveBinding},
		{bridge.StageAICall, w.aiPolicy, w.callRuntime},
		{bridge.StageContextExtract, w.dbPolicy, w.extractContext},
		{bridge.StageAssistantMsg, w.dbPolicy, w.persistAssistantMessage},
		{bridge.StageFormatReply, nil, w.formatReply},
	}

	for _, st := range stages {
		start := time.Now()
		attempts, err := w.runStage(ctx, st, rn)
		w.metrics.StageDuration.WithLabelValues(st.name).Observe(time.Since(start).Seconds())
		if err != nil {
			logger.Warn().Err(err).Str("stage", st.name).Int("attempts", attempts).Msg("pipeline stage failed")
			return w.failStage(ctx, ev, st.name, err)
		}
		var meta map[string]any
		if attempts > 1 {
			meta = map[string]any{"attempts": attempts}
		}
		w.trace(ctx, ev.ID, st.name, bridge.TraceCompleted, nil, meta)
	}

	// Delivery failure after retries is downgraded to a warning: the
	// assistant message is already persisted and the event completes.
	var finalMeta map[string]any
	warning := ""
	switch {
	case rn.reply.Empty():
		finalMeta = map[string]any{"skipped": "empty reply"}
	default:
		start := time.Now()
		attempts := 0
		err := w.sendPolicy.Do(ctx, func(ctx context.Context) error {
			attempts++
			return w.sender.Send(ctx, rn.conn, ev.SenderID, rn.reply)
		})
		w.metrics.StageDuration.WithLabelValues(bridge.StageSend).Observe(time.Since(start).Seconds())
		if err != nil {
			msg := err.Error()
			w.trace(ctx, ev.ID, bridge.StageSend, bridge.TraceFailed, &msg, map[string]any{"attempts": attempts})
			w.metrics.ProviderSends.WithLabelValues(string(ev.Platform), "error").Inc()
			logger.Warn().Err(err).Msg("reply undelivered after retries")
			warning = "undelivered"
			finalMeta = map[string]any{"warning": warning}
		} else {
			w.metrics.ProviderSends.WithLabelValues(string(ev.Platform), "ok").Inc()
			if attempts > 1 {
				finalMeta = map[string]any{"attempts": attempts}
			}
		}
	}

	w.trace(ctx, ev.ID, bridge.StageSend, bridge.TraceCompleted, nil, finalMeta)
	if err := w.store.CompleteEvent(ctx, ev.ID); err != nil {
		logger.Error().Err(err).Msg("complete event")
		return Result{EventID: ev.ID, Status: StatusFailed, Stage: bridge.StageSend, Error: err.Error()}
	}
	logger.Info().Str("conversation_id", rn.conv.ID.String()).Msg("event processed")
	return Result{EventID: ev.ID, Status: StatusCompleted, Warning: warning}
}

// runStage executes one stage under its retry policy and reports how many
// attempts it took.
func (w *Worker) runStage(ctx context.Context, st stage, rn *run) (int, error) {
	if st.policy == nil {
		return 1, st.fn(ctx, rn)
	}
	attempts := 0
	err := st.policy.Do(ctx, func(ctx context.Context) error {
		attempts++
		return st.fn(ctx, rn)
	})
	return attempts, err
}

// failStage records the failing stage and decides the event's fate:
// transient failures with claims left go back to pending, everything else
// parks as failed. Terminal failures at the AI stage also dead-letter.
func (w *Worker) failStage(ctx context.Context, ev *bridge.QueuedEvent, stageName string, err error) Result {
	msg := err.Error()
	w.trace(ctx, ev.ID, stageName, bridge.TraceFailed, &msg, nil)

	if retry.Transient(err) && ev.RetryCount < store.MaxAttempts {
		if rerr := w.store.ReleaseEvent(ctx, ev.ID, msg); rerr != nil {
			log.Error().Err(rerr).Str("event_id", ev.ID.String()).Msg("release event")
		}
		w.metrics.EventRetries.WithLabelValues(stageName).Inc()
		return Result{EventID: ev.ID, Status: StatusReleased, Stage: stageName, Error: msg}
	}

	if stageName == bridge.StageAICall {
		meta := map[string]any{
			"stage":       stageName,
			"event_id":    ev.ID.String(),
			"retry_count": ev.RetryCount,
		}
		if _, derr := w.store.InsertDeadLetter(ctx, ev.TenantID, ev.RawPayload, msg, meta); derr != nil {
			log.Error().Err(derr).Str("event_id", ev.ID.String()).Msg("dead letter insert")
		} else {
			w.metrics.DeadLetters.Inc()
		}
	}
	if ferr := w.store.FailEvent(ctx, ev.ID, msg); ferr != nil {
		log.Error().Err(ferr).Str("event_id", ev.ID.String()).Msg("fail event")
	}
	return Result{EventID: ev.ID, Status: StatusFailed, Stage: stageName, Error: msg}
}

// completeSkipped finishes an event that has nothing to say to the runtime.
func (w *Worker) completeSkipped(ctx context.Context, ev *bridge.QueuedEvent, reason string) Result {
	meta := map[string]any{"reason": reason}
	w.trace(ctx, ev.ID, bridge.StageSkipped, bridge.TraceCompleted, nil, meta)
	w.trace(ctx, ev.ID, bridge.StageSend, bridge.TraceCompleted, nil, map[string]any{"skipped": reason})
	if err := w.store.CompleteEvent(ctx, ev.ID); err != nil {
		return Result{EventID: ev.ID, Status: StatusFailed, Error: err.Error()}
	}
	return Result{EventID: ev.ID, Status: StatusCompleted, Warning: "skipped"}
}

func (w *Worker) trace(ctx context.Context, eventID uuid.UUID, stageName, status string, errMsg *string, meta map[string]any) {
	if err := w.store.InsertTrace(ctx, eventID, stageName, status, errMsg, meta); err != nil {
		log.Error().Err(err).
			Str("event_id", eventID.String()).
			Str("stage", stageName).
			Msg("trace write failed")
	}
}

func (w *Worker) resolveConnection(ctx context.Context, rn *run) error {
	conn, err := w.store.GetConnectionByAsset(ctx, rn.event.TenantID, rn.event.Platform, rn.event.RecipientID)
	if errors.Is(err, bridge.ErrNotFound) {
		return bridge.E(bridge.KindMissingConnection, bridge.StageConnection,
			"no connection for recipient "+rn.event.RecipientID)
	}
	if err != nil {
		return err
	}
	rn.conn = conn
	return nil
}

func (w *Worker) acquireSession(ctx context.Context, rn *run) error {
	sess, err := w.store.GetOrCreateSession(ctx, rn.event.TenantID, rn.event.SenderID, rn.event.Platform, w.sessionTTL)
	if err != nil {
		return err
	}
	rn.sess = sess
	return nil
}

func (w *Worker) upsertConversation(ctx context.Context, rn *run) error {
	conv, err := w.store.UpsertConversation(ctx, rn.event.TenantID, rn.event.Platform,
		rn.event.SenderID, rn.event.SenderID, rn.sess.ID, rn.event.EventTS)
	if err != nil {
		return err
	}
	rn.conv = conv
	return nil
}

func (w *Worker) persistUserMessage(ctx context.Context, rn *run) error {
	var externalID *string
	if mid, ok := bridge.GetString(rn.norm.Metadata, "mid"); ok && mid != "" {
		externalID = &mid
	}
	_, err := w.store.InsertMessage(ctx, rn.conv.ID, bridge.SenderUser, rn.norm.Text, externalID)
	return err
}

func (w *Worker) appendUserTurn(ctx context.Context, rn *run) error {
	return w.store.AppendSessionHistory(ctx, rn.sess.ID, "user", rn.norm.Text)
}

func (w *Worker) resolveBinding(ctx context.Context, rn *run) error {
	binding, err := w.store.GetActiveBinding(ctx, rn.event.TenantID)
	if errors.Is(err, bridge.ErrNotFound) {
		return bridge.E(bridge.KindMissingAIBinding, bridge.StageBinding,
			"tenant has no active ai binding")
	}
	if err != nil {
		return err
	}
	rn.binding = binding
	return nil
}

func (w *Worker) callRuntime(ctx context.Context, rn *run) error {
	apiKey := ""
	if rn.binding.APIKey != nil {
		apiKey = *rn.binding.APIKey
	}
	items, err := w.runtime.Interact(ctx, rn.event.TenantID, apiKey, rn.norm.Text,
		bridge.Variables(rn.sess.Context))
	if err != nil {
		return err
	}
	rn.items = items
	return nil
}

func (w *Worker) extractContext(ctx context.Context, rn *run) error {
	cleaned, vars := ai.ExtractContext(rn.items)
	rn.items = cleaned
	return w.store.MergeSessionContext(ctx, rn.sess.ID, vars)
}

func (w *Worker) persistAssistantMessage(ctx context.Context, rn *run) error {
	content := assistantText(rn.items)
	if content == "" {
		return nil
	}
	if _, err := w.store.InsertMessage(ctx, rn.conv.ID, bridge.SenderAssistant, content, nil); err != nil {
		return err
	}
	return w.store.AppendSessionHistory(ctx, rn.sess.ID, "assistant", content)
}

func (w *Worker) formatReply(_ context.Context, rn *run) error {
	rn.reply = provider.FormatReply(rn.items)
	return nil
}

func assistantText(items []ai.ResponseItem) string {
	var lines []string
	for _, it := range items {
		if it.Type == ai.ItemText && it.Text != "" {
			lines = append(lines, it.Text)
		}
	}
	return strings.Join(lines, "\n")
}
