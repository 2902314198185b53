package bridge

// Pipeline stage names, shared by the worker and its processing traces.
const (
	StageReceived       = "received"
	StageConnection     = "connection_resolved"
	StageSession        = "session_acquired"
	StageConversation   = "conversation_upserted"
	StageUserMessage    = "user_message_saved"
	StageSessionUpdate  = "session_updated"
	StageBinding        = "binding_resolved"
	StageAICall         = "ai_called"
	StageContextExtract = "context_extracted"
	StageAssistantMsg   = "assistant_message_saved"
	StageFormatReply    = "reply_formatted"
	StageSend           = "response_sent"
	StageSkipped        = "skipped"
)

// Trace statuses.
const (
	TraceCompleted = "completed"
	TraceFailed    = "failed"
)
