package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumina/internal/storage"
)

func testAnalysis() storage.RoomAnalysis {
	return storage.RoomAnalysis{
		RoomType:              "Living Room",
		ArchitecturalFeatures: []string{"Herringbone oak flooring", "White drywall", "Crown molding"},
	}
}

func TestContextStoreRecordsAnalysisOnce(t *testing.T) {
	store := NewContextStore()
	image := []byte("fake-photo")

	require.NoError(t, store.RecordAnalysis(image, "image/jpeg", testAnalysis(), storage.ContextResidential))
	assert.True(t, store.Initialized())

	err := store.RecordAnalysis(image, "image/jpeg", testAnalysis(), storage.ContextResidential)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)

	got, mime := store.OriginalImage()
	assert.Equal(t, image, got)
	assert.Equal(t, "image/jpeg", mime)
	assert.Equal(t, storage.ContextResidential, store.RoomContext())
}

func TestContextStoreRecordAnalysisRequiresImage(t *testing.T) {
	store := NewContextStore()
	err := store.RecordAnalysis(nil, "image/jpeg", testAnalysis(), storage.ContextResidential)
	require.Error(t, err)
	assert.False(t, store.Initialized())
}

func TestContextStoreBaselineSurvivesCallerMutation(t *testing.T) {
	store := NewContextStore()
	image := []byte("fake-photo")
	require.NoError(t, store.RecordAnalysis(image, "image/png", testAnalysis(), storage.ContextResidential))

	image[0] = 'X'
	got, _ := store.OriginalImage()
	assert.Equal(t, byte('f'), got[0])
}

func TestContextStoreRejectsEmptyMessage(t *testing.T) {
	store := NewContextStore()
	assert.Error(t, store.AppendMessage(RoleUser, "   "))
	assert.Empty(t, store.Messages())
}

func TestContextStoreNoticesStayOutOfHistory(t *testing.T) {
	store := NewContextStore()
	require.NoError(t, store.AppendMessage(RoleUser, "make the rug blue"))
	store.AppendNotice("rendering failed, keeping your latest design")
	require.NoError(t, store.AppendMessage(RoleDesigner, "Done, the rug is now a deep blue."))

	history := store.History(2000)
	assert.Contains(t, history, "User: make the rug blue")
	assert.Contains(t, history, "Designer: Done, the rug is now a deep blue.")
	assert.NotContains(t, history, "rendering failed")

	require.Len(t, store.Notices(), 1)
}

func TestContextStoreHistoryDropsOldestFirst(t *testing.T) {
	store := NewContextStore()
	require.NoError(t, store.AppendMessage(RoleUser, "first message about the sofa"))
	require.NoError(t, store.AppendMessage(RoleDesigner, "reply about the sofa"))
	require.NoError(t, store.AppendMessage(RoleUser, "second message about the walls"))

	full := store.History(2000)
	require.Equal(t, 3, len(strings.Split(full, "\n")))

	trimmed := store.History(len("User: second message about the walls") + 1)
	assert.Equal(t, "User: second message about the walls", trimmed)
}

func TestContextStoreReset(t *testing.T) {
	store := NewContextStore()
	require.NoError(t, store.RecordAnalysis([]byte("photo"), "image/jpeg", testAnalysis(), storage.ContextCommercial))
	require.NoError(t, store.AppendMessage(RoleUser, "hello"))
	store.AppendNotice("working")

	store.Reset()

	assert.False(t, store.Initialized())
	assert.Empty(t, store.Messages())
	assert.Empty(t, store.Notices())
	assert.Equal(t, "", store.History(2000))

	// A reset store accepts a fresh baseline.
	require.NoError(t, store.RecordAnalysis([]byte("photo2"), "image/png", testAnalysis(), storage.ContextResidential))
}
