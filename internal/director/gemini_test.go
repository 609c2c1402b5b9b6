package director

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumina/internal/llm"
	"lumina/internal/storage"
)

type stubLLM struct {
	response string
	err      error
	last     llm.VisionRequest
}

func (s *stubLLM) VisionCompletion(_ context.Context, req llm.VisionRequest) (string, error) {
	s.last = req
	return s.response, s.err
}

func TestConverseParsesStructuredDraft(t *testing.T) {
	stub := &stubLLM{response: `{
		"text": "Swapping the rug for a deep blue one.",
		"target_elements": ["rug"],
		"preserve_elements": ["Herringbone oak flooring"],
		"restore_elements": []
	}`}
	collab := NewGeminiCollaborator(stub)

	reply, err := collab.Converse(context.Background(), Request{
		UserMessage:      "change the rug",
		Analysis:         livingRoomAnalysis(),
		RoomContext:      storage.ContextResidential,
		CurrentImage:     []byte("original-photo"),
		CurrentImageMIME: "image/jpeg",
	})
	require.NoError(t, err)
	require.NotNil(t, reply.Draft)
	assert.Equal(t, []string{"rug"}, reply.Draft.TargetElements)
	assert.Equal(t, "Swapping the rug for a deep blue one.", reply.Text)

	// The round runs deterministic, JSON-forced and anchored to the photo.
	assert.Zero(t, stub.last.Temperature)
	assert.True(t, stub.last.ForceJSON)
	assert.Equal(t, []byte("original-photo"), stub.last.Image)
	assert.Contains(t, stub.last.System, "Herringbone oak flooring")
}

func TestConverseTreatsDraftlessReplyAsConversation(t *testing.T) {
	stub := &stubLLM{response: `{"text": "A blue rug would pair well with the oak floor."}`}
	collab := NewGeminiCollaborator(stub)

	reply, err := collab.Converse(context.Background(), Request{UserMessage: "thoughts on a blue rug?"})
	require.NoError(t, err)
	assert.Nil(t, reply.Draft)
	assert.NotEmpty(t, reply.Text)
}

func TestConverseRecoversDraftWrappedInProse(t *testing.T) {
	stub := &stubLLM{response: "Sure thing!\n{\"text\": \"Changing the walls.\", \"target_elements\": [\"walls\"]}\nLet me know."}
	collab := NewGeminiCollaborator(stub)

	reply, err := collab.Converse(context.Background(), Request{UserMessage: "paint the walls"})
	require.NoError(t, err)
	require.NotNil(t, reply.Draft)
	assert.Equal(t, []string{"walls"}, reply.Draft.TargetElements)
}

func TestConverseRejectsUnparsableOutput(t *testing.T) {
	stub := &stubLLM{response: "I had trouble with that request."}
	collab := NewGeminiCollaborator(stub)

	_, err := collab.Converse(context.Background(), Request{UserMessage: "change the rug"})
	require.Error(t, err)
}

func TestConversePropagatesClientErrors(t *testing.T) {
	boom := errors.New("network down")
	collab := NewGeminiCollaborator(&stubLLM{err: boom})

	_, err := collab.Converse(context.Background(), Request{UserMessage: "change the rug"})
	require.ErrorIs(t, err, boom)
}
