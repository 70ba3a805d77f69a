package ratelimit_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiberloom/engine/errtax"
	"github.com/fiberloom/engine/model"
	"github.com/fiberloom/engine/model/ratelimit"
)

type fakeAdapter struct {
	generateErr error
	calls       int
}

func (f *fakeAdapter) Metadata() model.Metadata { return model.Metadata{ID: "fake"} }

func (f *fakeAdapter) FromEngineState(context.Context, model.FormattedInput) (any, error) {
	return "request", nil
}

func (f *fakeAdapter) ToEngineState(context.Context, any) (model.EngineResponse, error) {
	return model.EngineResponse{ShouldStop: true}, nil
}

func (f *fakeAdapter) Generate(context.Context, any) (any, error) {
	f.calls++
	return "response", f.generateErr
}

func (f *fakeAdapter) Stream(context.Context, any) (<-chan model.Chunk, error) {
	return nil, errors.New("not supported")
}

func (f *fakeAdapter) ProcessStream(context.Context, <-chan model.Chunk) (any, error) {
	return nil, errors.New("not supported")
}

func formattedInput() model.FormattedInput {
	return model.FormattedInput{
		Timeline: []model.Message{{Role: model.RoleUser, Content: []model.Block{model.Text("hello there")}}},
	}
}

func TestLimiter_ReturnsRateLimitedErrorFromGenerate(t *testing.T) {
	limiter := ratelimit.New(60000, 60000)
	fake := &fakeAdapter{generateErr: errtax.With(errors.New("429"), errtax.RateLimit)}
	wrapped := limiter.Wrap(fake)

	ctx := context.Background()
	req, err := wrapped.FromEngineState(ctx, formattedInput())
	require.NoError(t, err)

	_, err = wrapped.Generate(ctx, req)
	require.Error(t, err)
	assert.Equal(t, errtax.RateLimit, errtax.Classify(err))
}

func TestLimiter_DelegatesSuccessfulCalls(t *testing.T) {
	limiter := ratelimit.New(60000, 60000)
	fake := &fakeAdapter{}
	wrapped := limiter.Wrap(fake)

	ctx := context.Background()
	req, err := wrapped.FromEngineState(ctx, formattedInput())
	require.NoError(t, err)

	out, err := wrapped.Generate(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "response", out)
	assert.Equal(t, 1, fake.calls)
}

func TestLimiter_MetadataPassesThrough(t *testing.T) {
	limiter := ratelimit.New(1000, 1000)
	fake := &fakeAdapter{}
	wrapped := limiter.Wrap(fake)
	assert.Equal(t, "fake", wrapped.Metadata().ID)
}
