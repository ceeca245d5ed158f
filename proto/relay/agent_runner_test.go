// ABOUTME: Tests for the AgentRunner service surface and Struct envelopes
// ABOUTME: Guards the wire names the backend depends on

package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestAgentRunnerServiceDesc(t *testing.T) {
	assert.Equal(t, "relay.AgentRunner", AgentRunner_ServiceDesc.ServiceName)
	assert.Empty(t, AgentRunner_ServiceDesc.Methods)
	require.Len(t, AgentRunner_ServiceDesc.Streams, 1)

	run := AgentRunner_ServiceDesc.Streams[0]
	assert.Equal(t, "Run", run.StreamName)
	assert.True(t, run.ServerStreams)
	assert.False(t, run.ClientStreams)
	assert.Equal(t, "/relay.AgentRunner/Run", AgentRunner_Run_FullMethodName)
}

func TestChunkHelpers(t *testing.T) {
	chunk := NewTextChunk("partial reply")
	assert.Equal(t, ChunkTypeText, ChunkType(chunk))
	assert.Equal(t, "partial reply", ChunkText(chunk))

	fail := NewErrorChunk("model overloaded")
	assert.Equal(t, ChunkTypeError, ChunkType(fail))
	assert.Equal(t, "model overloaded", ChunkText(fail))

	assert.Empty(t, ChunkType(&structpb.Struct{}))
	assert.Empty(t, ChunkText(&structpb.Struct{}))
}

func TestRunEnvelopeFields(t *testing.T) {
	env, err := NewRunEnvelope(map[string]any{
		"agent_id":       "coven",
		"prompt":         "hello",
		"context_tokens": 200000,
	})
	require.NoError(t, err)

	assert.Equal(t, "coven", EnvelopeString(env, "agent_id"))
	assert.Equal(t, "hello", EnvelopeString(env, "prompt"))
	assert.Equal(t, 200000, EnvelopeInt(env, "context_tokens"))
	assert.Empty(t, EnvelopeString(env, "model"))
}
