package pipeline

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("connection refused")

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"kind only", &Error{Kind: KindUnexpected}, "unexpected"},
		{"without stage", newError(KindSourceFetch, cause), "source_fetch: connection refused"},
		{
			"with stage",
			&Error{Kind: KindSourceFetch, Stage: StageFetchSource, Err: cause},
			"fetch_source: source_fetch: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorMatchesSentinelByKind(t *testing.T) {
	cause := errors.New("timed out")
	err := fmt.Errorf("wrapped: %w", &Error{Kind: KindIndexingTimeout, Stage: StageIndexReady, Err: cause})

	require.ErrorIs(t, err, ErrIndexingTimeout)
	require.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrIndexingFailed)
}

func TestClassify(t *testing.T) {
	t.Run("plain error becomes unexpected", func(t *testing.T) {
		pe := classify(errors.New("boom"), StageMerge)

		assert.Equal(t, KindUnexpected, pe.Kind)
		assert.Equal(t, StageMerge, pe.Stage)
		assert.Equal(t, "boom", pe.Message())
	})

	t.Run("existing stage is kept", func(t *testing.T) {
		pe := classify(&Error{Kind: KindPersistence, Stage: StagePersist, Err: errors.New("disk full")}, StageComplete)

		assert.Equal(t, StagePersist, pe.Stage)
		assert.Equal(t, KindPersistence, pe.Kind)
	})

	t.Run("sentinels are not mutated", func(t *testing.T) {
		pe := classify(ErrLockContention, StageAcquireLock)

		assert.Equal(t, StageAcquireLock, pe.Stage)
		assert.Empty(t, ErrLockContention.Stage)
	})
}
