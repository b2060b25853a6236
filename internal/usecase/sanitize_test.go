package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/payload-sanitizer/internal/usecase"
)

func sp(s string) *string { return &s }

func TestSanitize_Apply(t *testing.T) {
	t.Parallel()
	svc := usecase.NewSanitizeService()
	out := svc.Apply(context.Background(), []*string{sp("a\nb"), nil, sp("clean"), sp("")})
	require.Len(t, out, 4)
	assert.Equal(t, "a b", *out[0])
	assert.Nil(t, out[1])
	assert.Equal(t, "clean", *out[2])
	assert.Equal(t, "", *out[3])
}

func TestSanitize_Apply_EmptyBatch(t *testing.T) {
	t.Parallel()
	svc := usecase.NewSanitizeService()
	out := svc.Apply(context.Background(), nil)
	assert.Len(t, out, 0)
}
