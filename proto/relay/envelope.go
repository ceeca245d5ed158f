// ABOUTME: Struct-envelope field names and chunk constructors for AgentRunner
// ABOUTME: Text chunks stream reply output; error chunks carry backend failures

package relay

import "google.golang.org/protobuf/types/known/structpb"

// Run request envelope fields. All values are strings except
// "context_tokens", which is a number.
//
//	agent_id, session_id, session_key, session_file, provider,
//	model_provider, model, context_tokens, prompt, extra_system_prompt,
//	think_level, verbose_level, reasoning_level, elevated_level,
//	auth_profile_id, workspace_dir

// Response chunk envelope fields.
const (
	ChunkFieldType = "type"
	ChunkFieldText = "text"

	ChunkTypeText  = "text"
	ChunkTypeError = "error"
)

// NewRunEnvelope builds a run request envelope from field values.
func NewRunEnvelope(fields map[string]any) (*structpb.Struct, error) {
	return structpb.NewStruct(fields)
}

// NewTextChunk builds a reply-text response chunk.
func NewTextChunk(text string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		ChunkFieldType: structpb.NewStringValue(ChunkTypeText),
		ChunkFieldText: structpb.NewStringValue(text),
	}}
}

// NewErrorChunk builds a failure response chunk.
func NewErrorChunk(message string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		ChunkFieldType: structpb.NewStringValue(ChunkTypeError),
		ChunkFieldText: structpb.NewStringValue(message),
	}}
}

// ChunkType returns the chunk's type field, or "" when absent.
func ChunkType(chunk *structpb.Struct) string {
	return chunk.GetFields()[ChunkFieldType].GetStringValue()
}

// ChunkText returns the chunk's text field, or "" when absent.
func ChunkText(chunk *structpb.Struct) string {
	return chunk.GetFields()[ChunkFieldText].GetStringValue()
}

// EnvelopeString returns a string field from a run envelope, or "" when
// absent. Backends use this to read request fields without a typed schema.
func EnvelopeString(env *structpb.Struct, field string) string {
	return env.GetFields()[field].GetStringValue()
}

// EnvelopeInt returns a numeric field from a run envelope, truncated to int.
func EnvelopeInt(env *structpb.Struct, field string) int {
	return int(env.GetFields()[field].GetNumberValue())
}
