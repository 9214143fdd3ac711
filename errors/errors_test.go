package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesSentinel(t *testing.T) {
	err := Wrap(ErrNotFound, "entity type 'person'")

	assert.True(t, Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "entity type 'person'")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil", nil, ""},
		{"validation", NewInvalidRequestError("attribute %q unknown", "email"), TypeValidation},
		{"not found", NewNotFoundError("entity type %q not found", "person"), TypeNotFound},
		{"backend", WrapBackend(New("connection refused"), "search users"), TypeBackend},
		{"backend timeout", WrapBackend(context.DeadlineExceeded, "search users"), TypeTimeout},
		{"raw deadline", context.DeadlineExceeded, TypeTimeout},
		{"cancelled", Wrap(ErrCancelled, "client went away"), TypeCancelled},
		{"context cancelled", fmt.Errorf("hop 2: %w", context.Canceled), TypeCancelled},
		{"internal", NewInternalError("merge failed"), TypeInternal},
		{"unknown", New("boom"), TypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestWrapBackend(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, WrapBackend(nil, "ctx"))
	})

	t.Run("timeout is distinct from other failures", func(t *testing.T) {
		timeout := WrapBackend(context.DeadlineExceeded, "search")
		failure := WrapBackend(New("disk on fire"), "search")

		assert.True(t, IsTimeoutError(timeout))
		assert.True(t, Is(timeout, ErrTimeout))
		assert.False(t, IsTimeoutError(failure))
		assert.True(t, Is(failure, ErrBackend))
	})

	t.Run("cancellation is not a backend failure", func(t *testing.T) {
		err := WrapBackend(context.Canceled, "search")
		assert.Equal(t, TypeCancelled, Classify(err))
		assert.False(t, Is(err, ErrBackend))
	})

	t.Run("already backend is not double wrapped", func(t *testing.T) {
		once := WrapBackend(New("x"), "inner")
		twice := WrapBackend(once, "outer")
		assert.True(t, Is(twice, ErrBackend))
		assert.Equal(t, "outer: inner: x", twice.Error())
	})
}

func TestWrapKeepsCause(t *testing.T) {
	refused := New("connection refused")

	for _, err := range []error{
		WrapBackend(refused, "search users"),
		WrapBackend(Wrap(context.DeadlineExceeded, "query 2"), "search users"),
		WrapInvalidRequest(refused, "parse input"),
	} {
		assert.Contains(t, fmt.Sprintf("%+v", err), "errors_test.go", "stack of the cause survives")
	}

	err := WrapBackend(refused, "search users")
	assert.True(t, Is(err, refused))
	assert.True(t, Is(err, ErrBackend))

	timeout := WrapBackend(context.DeadlineExceeded, "search users")
	assert.True(t, Is(timeout, context.DeadlineExceeded))
	assert.Equal(t, "search users: context deadline exceeded", timeout.Error())
}

func TestInternalErrorHasStack(t *testing.T) {
	err := NewInternalError("merge failed at hop %d", 3)

	require.True(t, Is(err, ErrInternal))
	assert.Contains(t, fmt.Sprintf("%+v", err), "errors_test.go")
}

func TestHelpers(t *testing.T) {
	assert.True(t, IsNotFoundError(NewNotFoundError("x")))
	assert.False(t, IsNotFoundError(nil))
	assert.True(t, IsInvalidRequestError(WrapInvalidRequest(New("bad json"), "parse input")))
	assert.False(t, IsInvalidRequestError(New("other")))
}

func ExampleWrapBackend() {
	err := WrapBackend(New("connection refused"), "search users")
	fmt.Println(err)
	// Output: search users: connection refused
}
