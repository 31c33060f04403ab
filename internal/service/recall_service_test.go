package service

import (
	"context"
	"testing"

	"librag/internal/dto"
	"librag/internal/retrieval"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRecallService_Validation(t *testing.T) {
	s := NewRecallService(&fakeRetriever{}, allow{}, nil, zap.NewNop())
	ctx := context.Background()

	_, err := s.Recall(ctx, uuid.Nil, &dto.RecallRequest{Question: "  ", KBID: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.Recall(ctx, uuid.Nil, &dto.RecallRequest{Question: "fees?"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	s = NewRecallService(&fakeRetriever{}, deny{ErrForbidden}, nil, zap.NewNop())
	_, err = s.Recall(ctx, uuid.Nil, &dto.RecallRequest{Question: "fees?", KBID: 1})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRecallService_ValidateTrimsAndAuthorizes(t *testing.T) {
	r := &fakeRetriever{}
	s := NewRecallService(r, allow{}, nil, zap.NewNop())
	ctx := context.Background()

	req := &dto.RecallRequest{Question: "  fees?\n", KBID: 1}
	require.NoError(t, s.Validate(ctx, uuid.Nil, req))
	assert.Equal(t, "fees?", req.Question)

	assert.ErrorIs(t, s.Validate(ctx, uuid.Nil, &dto.RecallRequest{KBID: 1}), ErrInvalidInput)

	s = NewRecallService(r, deny{ErrForbidden}, nil, zap.NewNop())
	assert.ErrorIs(t, s.Validate(ctx, uuid.New(), &dto.RecallRequest{Question: "fees?", KBID: 1}), ErrForbidden)
	assert.Zero(t, r.calls)
}

func TestRecallService_Options(t *testing.T) {
	r := &fakeRetriever{}
	s := NewRecallService(r, allow{}, nil, zap.NewNop())
	threshold := 1.5
	off := false

	_, err := s.Recall(context.Background(), uuid.Nil, &dto.RecallRequest{
		Question: "fees?", KBID: 1, HasSourceText: true, ScoreThreshold: &threshold, HasScore: &off,
	})
	require.NoError(t, err)
	assert.Equal(t, retrieval.Options{HasSourceText: true, ScoreThreshold: &threshold, HasScore: false}, r.opts)

	_, err = s.Recall(context.Background(), uuid.Nil, &dto.RecallRequest{Question: "fees?", KBID: 1})
	require.NoError(t, err)
	assert.True(t, r.opts.HasScore)
}

func TestRecallService_Cache(t *testing.T) {
	r := &fakeRetriever{records: []dto.ParagraphRecord{{ParagraphID: "p1"}}}
	c := &fakeCache{}
	s := NewRecallService(r, allow{}, c, zap.NewNop())
	ctx := context.Background()
	req := func() *dto.RecallRequest { return &dto.RecallRequest{Question: "fees?", KBID: 1} }

	first, err := s.Recall(ctx, uuid.Nil, req())
	require.NoError(t, err)
	second, err := s.Recall(ctx, uuid.Nil, req())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, r.calls)

	var stages []retrieval.Stage
	_, err = s.RecallStream(ctx, req(), func(e retrieval.Event) { stages = append(stages, e.Stage) })
	require.NoError(t, err)
	assert.Equal(t, 2, r.calls)
	assert.Equal(t, []retrieval.Stage{retrieval.StageComplete}, stages)
}

func TestRecallService_RetrieverError(t *testing.T) {
	c := &fakeCache{}
	s := NewRecallService(&fakeRetriever{err: errBoom}, allow{}, c, zap.NewNop())

	_, err := s.Recall(context.Background(), uuid.Nil, &dto.RecallRequest{Question: "fees?", KBID: 1})
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, c.entries)
}
