package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"librag/internal/repository"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	err      error
	tasks    []uuid.UUID
	rebuilds []int64
}

func (f *fakeProcessor) Process(_ context.Context, taskID uuid.UUID) error {
	f.tasks = append(f.tasks, taskID)
	return f.err
}

func (f *fakeProcessor) Rebuild(_ context.Context, kbID int64) error {
	f.rebuilds = append(f.rebuilds, kbID)
	return f.err
}

func parseTask(t *testing.T, id uuid.UUID) *asynq.Task {
	payload, err := json.Marshal(parsePayload{TaskID: id})
	require.NoError(t, err)
	return asynq.NewTask(TypeParseDocument, payload)
}

func TestWorker_HandleParse(t *testing.T) {
	proc := &fakeProcessor{}
	w := &Worker{processor: proc, logger: nop()}
	id := uuid.New()

	require.NoError(t, w.handleParse(context.Background(), parseTask(t, id)))
	assert.Equal(t, []uuid.UUID{id}, proc.tasks)
}

func TestWorker_HandleParseRetries(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		skipRetry bool
	}{
		{"transient", errors.New("llm timeout"), false},
		{"task gone", fmt.Errorf("failed to load task: %w", repository.ErrNotFound), true},
		{"bad file", fmt.Errorf("%w: .xlsx", ErrUnsupportedFile), true},
		{"empty", ErrEmptyDocument, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &Worker{processor: &fakeProcessor{err: tt.err}, logger: nop()}

			err := w.handleParse(context.Background(), parseTask(t, uuid.New()))
			require.Error(t, err)
			assert.Equal(t, tt.skipRetry, errors.Is(err, asynq.SkipRetry))
		})
	}
}

func TestWorker_BadPayloadIsNotRetried(t *testing.T) {
	proc := &fakeProcessor{}
	w := &Worker{processor: proc, logger: nop()}

	err := w.handleParse(context.Background(), asynq.NewTask(TypeParseDocument, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, proc.tasks)

	err = w.handleRebuild(context.Background(), asynq.NewTask(TypeRebuildIndex, []byte("nope")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestWorker_HandleRebuild(t *testing.T) {
	proc := &fakeProcessor{}
	w := &Worker{processor: proc, logger: nop()}

	payload, err := json.Marshal(rebuildPayload{KBID: 12})
	require.NoError(t, err)
	require.NoError(t, w.handleRebuild(context.Background(), asynq.NewTask(TypeRebuildIndex, payload)))
	assert.Equal(t, []int64{12}, proc.rebuilds)
}
