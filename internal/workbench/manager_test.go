package workbench_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/refine/internal/sessions"
	"github.com/JaimeStill/refine/internal/stages"
	"github.com/JaimeStill/refine/internal/workbench"
	"github.com/JaimeStill/refine/pkg/reactive"
	"github.com/JaimeStill/refine/pkg/storage/storagetest"
)

func TestEnsureSession(t *testing.T) {
	ctx := context.Background()

	t.Run("no document", func(t *testing.T) {
		f := newFixture(t)
		sum, err := f.mgr.EnsureSession(ctx)
		require.NoError(t, err)
		assert.Nil(t, sum)
	})

	t.Run("creates lazily and activates", func(t *testing.T) {
		f := newFixture(t)
		f.selectDocument(t)
		assert.Empty(t, f.state(t).Sessions)

		sum, err := f.mgr.EnsureSession(ctx)
		require.NoError(t, err)
		require.NotNil(t, sum)

		st := f.state(t)
		require.Len(t, st.Sessions, 1)
		assert.Equal(t, st.ActiveSessionID, st.Sessions[0].ID)
		assert.Equal(t, sum.ID, st.ActiveSessionID)

		again, err := f.mgr.EnsureSession(ctx)
		require.NoError(t, err)
		assert.Equal(t, sum.ID, again.ID)

		stored, err := f.sys.Find(ctx, sum.ID)
		require.NoError(t, err)
		assert.Equal(t, "Cozy loft", stored.OriginalSnapshot["title"])
		assert.Equal(t, []string{"title", "description"}, stored.FieldSelection)
	})

	t.Run("concurrent callers share one session", func(t *testing.T) {
		f := newFixture(t)
		f.selectDocument(t)

		ids := make([]uuid.UUID, 8)
		var wg sync.WaitGroup
		for i := range ids {
			wg.Go(func() {
				sum, err := f.mgr.EnsureSession(ctx)
				if assert.NoError(t, err) && assert.NotNil(t, sum) {
					ids[i] = sum.ID
				}
			})
		}
		wg.Wait()

		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}

		list, err := f.sys.ListForDocument(ctx, f.doc.ID)
		require.NoError(t, err)
		assert.Len(t, list, 1)
		assert.Len(t, f.state(t).Sessions, 1)
	})
}

func TestSelectDocument(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.selectDocument(t)

	_, err := f.mgr.EnsureSession(ctx)
	require.NoError(t, err)
	f.mgr.SetGuidance("keep it short")
	require.NoError(t, f.mgr.SetStageFields(stages.Critique, []string{"title"}))
	f.store.SetState(workbench.SlicePipeline, func(st *workbench.State) {
		st.IterationCount = 3
	})

	var pipelineNotified int
	f.store.Subscribe([]reactive.Slice{workbench.SlicePipeline}, func() { pipelineNotified++ })

	next := parse(t, "other.yaml", other)
	require.NoError(t, f.mgr.SelectDocument(ctx, next))
	f.q.Drain()

	st := f.state(t)
	assert.Equal(t, next.ID, st.Document.ID)
	assert.Equal(t, uuid.Nil, st.ActiveSessionID)
	assert.Empty(t, st.Sessions)
	assert.Equal(t, []string{"body"}, st.FieldSelection)
	assert.Empty(t, st.StageFields)
	assert.Empty(t, st.Guidance)
	assert.Zero(t, st.IterationCount)
	assert.Equal(t, stages.PendingStatus(), st.StageStatus)
	assert.Equal(t, 1, pipelineNotified)

	require.NoError(t, f.mgr.SelectDocument(ctx, f.doc))
	assert.Len(t, f.state(t).Sessions, 1, "sessions reload for the document")
}

func TestSwitchSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sess, err := f.sys.Create(ctx, sessions.CreateCommand{
		DocumentID:     f.doc.ID,
		DocumentLabel:  f.doc.Label,
		FieldSelection: []string{"title"},
		Configs:        stages.DefaultConfigs(),
	})
	require.NoError(t, err)

	eval := stages.NewResult(stages.Evaluate, "in", "scores")
	failed := stages.NewErrorResult(stages.Transform, "in", "model unavailable")
	sess.StageResults = map[stages.Stage]stages.Result{
		stages.Evaluate:  eval,
		stages.Transform: failed,
	}
	sess.IterationHistory = []stages.Result{eval, failed}
	sess.IterationCount = 2
	sess.Guidance = "formal tone"
	require.NoError(t, f.sys.Update(ctx, sess))

	f.selectDocument(t)
	require.Len(t, f.state(t).Sessions, 1)

	require.NoError(t, f.mgr.SwitchSession(ctx, sess.ID))

	st := f.state(t)
	assert.Equal(t, sess.ID, st.ActiveSessionID)
	assert.Equal(t, stages.Complete, st.StageStatus[stages.Evaluate])
	assert.Equal(t, stages.Failed, st.StageStatus[stages.Transform])
	assert.Equal(t, stages.Pending, st.StageStatus[stages.Critique])
	assert.Len(t, st.IterationHistory, 2)
	assert.Equal(t, 2, st.IterationCount)
	assert.Equal(t, "formal tone", st.Guidance)
	assert.Equal(t, []string{"title"}, st.FieldSelection)

	t.Run("unknown session", func(t *testing.T) {
		err := f.mgr.SwitchSession(ctx, uuid.New())
		assert.ErrorIs(t, err, sessions.ErrNotFound)
	})

	t.Run("other document", func(t *testing.T) {
		foreign, err := f.sys.Create(ctx, sessions.CreateCommand{DocumentID: "elsewhere"})
		require.NoError(t, err)
		assert.ErrorIs(t, f.mgr.SwitchSession(ctx, foreign.ID), workbench.ErrWrongDocument)
	})
}

func TestNewSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.selectDocument(t)

	first, err := f.mgr.EnsureSession(ctx)
	require.NoError(t, err)

	require.NoError(t, f.mgr.NewSession(ctx))
	assert.Equal(t, uuid.Nil, f.state(t).ActiveSessionID)

	second, err := f.mgr.EnsureSession(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	st := f.state(t)
	require.Len(t, st.Sessions, 2)
	assert.Equal(t, second.ID, st.Sessions[0].ID)
}

func TestRenameSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.selectDocument(t)

	sum, err := f.mgr.EnsureSession(ctx)
	require.NoError(t, err)

	require.NoError(t, f.mgr.RenameSession(ctx, sum.ID, "Draft A"))
	st := f.state(t)
	active, ok := st.ActiveSession()
	require.True(t, ok)
	assert.Equal(t, "Draft A", active.DisplayName())

	require.NoError(t, f.mgr.RenameSession(ctx, sum.ID, ""))
	stored, err := f.sys.Find(ctx, sum.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Name)
}

func TestDeleteSession(t *testing.T) {
	ctx := context.Background()

	t.Run("archives then detaches active", func(t *testing.T) {
		blobs := storagetest.New()
		archiver := sessions.NewArchiver(blobs, 0, discard())
		f := newFixture(t, workbench.WithArchiver(archiver))
		f.selectDocument(t)

		sum, err := f.mgr.EnsureSession(ctx)
		require.NoError(t, err)

		assert.True(t, f.mgr.DeleteSession(ctx, sum.ID))

		st := f.state(t)
		assert.Empty(t, st.Sessions)
		assert.Equal(t, uuid.Nil, st.ActiveSessionID)
		assert.Equal(t, []string{sessions.ArchiveKey(f.doc.ID, sum.ID)}, blobs.Keys())

		_, err = f.sys.Find(ctx, sum.ID)
		assert.ErrorIs(t, err, sessions.ErrNotFound)
	})

	t.Run("refuses the generating session", func(t *testing.T) {
		f := newFixture(t)
		f.selectDocument(t)

		sum, err := f.mgr.EnsureSession(ctx)
		require.NoError(t, err)
		f.store.SetState(workbench.SlicePipeline, func(st *workbench.State) { st.IsGenerating = true })

		assert.False(t, f.mgr.DeleteSession(ctx, sum.ID))
		assert.Len(t, f.state(t).Sessions, 1)
	})

	t.Run("missing session", func(t *testing.T) {
		f := newFixture(t)
		f.selectDocument(t)
		assert.False(t, f.mgr.DeleteSession(ctx, uuid.New()))
	})
}

func TestDeleteAllSessions(t *testing.T) {
	ctx := context.Background()
	blobs := storagetest.New()
	f := newFixture(t, workbench.WithArchiver(sessions.NewArchiver(blobs, 0, discard())))
	f.selectDocument(t)

	for range 3 {
		_, err := f.mgr.EnsureSession(ctx)
		require.NoError(t, err)
		require.NoError(t, f.mgr.NewSession(ctx))
	}
	require.Len(t, f.state(t).Sessions, 3)

	n, err := f.mgr.DeleteAllSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Empty(t, f.state(t).Sessions)
	assert.Len(t, blobs.Keys(), 3)
}

func TestRefusedWhileGenerating(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.selectDocument(t)
	f.store.SetState(workbench.SlicePipeline, func(st *workbench.State) { st.IsGenerating = true })

	assert.ErrorIs(t, f.mgr.SelectDocument(ctx, f.doc), workbench.ErrGenerating)
	assert.ErrorIs(t, f.mgr.NewSession(ctx), workbench.ErrGenerating)
	assert.ErrorIs(t, f.mgr.SwitchSession(ctx, uuid.New()), workbench.ErrGenerating)

	_, err := f.mgr.DeleteAllSessions(ctx)
	assert.ErrorIs(t, err, workbench.ErrGenerating)
}

func TestSetters(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.mgr.SetFieldSelection([]string{"title"}), workbench.ErrNoDocument)

	f.selectDocument(t)

	require.NoError(t, f.mgr.SetFieldSelection([]string{"title"}))
	assert.ErrorIs(t, f.mgr.SetFieldSelection([]string{"price"}), workbench.ErrUnknownField)

	require.NoError(t, f.mgr.SetStageFields(stages.Transform, []string{"description"}))
	st := f.state(t)
	assert.Equal(t, []string{"description"}, st.FieldsFor(stages.Transform))
	assert.Equal(t, []string{"title"}, st.FieldsFor(stages.Evaluate))

	require.NoError(t, f.mgr.SetStageFields(stages.Transform, nil))
	st = f.state(t)
	assert.Equal(t, []string{"title"}, st.FieldsFor(stages.Transform))

	assert.ErrorIs(t, f.mgr.SetStageFields("summarize", nil), stages.ErrInvalidStage)

	cfg := stages.Config{PromptSource: "house", StructuredOutput: true}
	require.NoError(t, f.mgr.SetStageConfig(stages.Transform, cfg))
	assert.Equal(t, cfg, f.state(t).ConfigFor(stages.Transform))

	f.mgr.ToggleExpanded(stages.Critique)
	assert.True(t, f.state(t).Expanded[stages.Critique])
	f.mgr.ToggleExpanded(stages.Critique)
	assert.False(t, f.state(t).Expanded[stages.Critique])
}
