package service

import (
	"context"
	"testing"

	"ai-workspace-editor/internal/pkg/logger"
	"ai-workspace-editor/internal/repository/implementation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCreateListRevert(t *testing.T) {
	ws, err := implementation.NewWorkspace(t.TempDir())
	require.NoError(t, err)
	documents := implementation.NewWorkspaceDocumentRepository(ws)
	svc := NewVersionService(implementation.NewWorkspaceVersionRepository(ws), documents, logger.NewNopLogger())
	ctx := context.Background()

	require.NoError(t, documents.Write(ctx, "draft.md", "original"))

	version, err := svc.Create(ctx, "draft.md", "  checkpoint ", "original")
	require.NoError(t, err)
	assert.Equal(t, "checkpoint", version.Name)

	require.NoError(t, documents.Write(ctx, "draft.md", "rewritten by the assistant"))

	versions, err := svc.List(ctx, "draft.md")
	require.NoError(t, err)
	require.Len(t, versions, 1)

	content, err := svc.Content(ctx, versions[0])
	require.NoError(t, err)
	assert.Equal(t, "original", content)

	restored, err := svc.Revert(ctx, "draft.md", versions[0])
	require.NoError(t, err)
	assert.Equal(t, "original", restored)

	doc, err := documents.Read(ctx, "draft.md")
	require.NoError(t, err)
	assert.Equal(t, "original", doc.Content)

	require.NoError(t, svc.Delete(ctx, versions[0]))
	versions, err = svc.List(ctx, "draft.md")
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestVersionNameValidation(t *testing.T) {
	ws, err := implementation.NewWorkspace(t.TempDir())
	require.NoError(t, err)
	svc := NewVersionService(implementation.NewWorkspaceVersionRepository(ws),
		implementation.NewWorkspaceDocumentRepository(ws), logger.NewNopLogger())

	for _, name := range []string{"", "   ", "a/b", `a\b`} {
		_, err := svc.Create(context.Background(), "draft.md", name, "x")
		assert.ErrorIs(t, err, ErrInvalidVersionName, name)
	}
}
