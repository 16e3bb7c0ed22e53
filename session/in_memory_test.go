package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/supportdesk/core"
	"github.com/hupe1980/supportdesk/internal/testutil"
)

func TestInMemoryStore_AppendLoad(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	msgs, err := s.Load(ctx, "ws-1", "th-1")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	require.NoError(t, s.Append(ctx, "ws-1", "th-1", testutil.NewConversation().User("hi").Assistant("hello").Build()...))
	require.NoError(t, s.Append(ctx, "ws-1", "th-1"))

	msgs, err = s.Load(ctx, "ws-1", "th-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[1].Text())

	other, err := s.Load(ctx, "ws-2", "th-1")
	require.NoError(t, err)
	assert.Empty(t, other, "threads are scoped to a workspace")
	assert.Equal(t, 1, s.Threads())
}

func TestInMemoryStore_ClonesMessages(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	in := []core.Content{core.NewTextContent(core.RoleUser, "original")}
	require.NoError(t, s.Append(ctx, "ws", "th", in...))
	in[0].Parts[0] = core.TextPart{Text: "mutated"}

	out, err := s.Load(ctx, "ws", "th")
	require.NoError(t, err)
	out[0].Parts[0] = core.TextPart{Text: "mutated again"}

	again, err := s.Load(ctx, "ws", "th")
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Text())
}

func TestInMemoryStore_MaxMessagesTrimsOrphanedToolResponses(t *testing.T) {
	s := NewInMemoryStore(func(o *InMemoryOptions) { o.MaxMessages = 2 })
	ctx := context.Background()

	msgs := testutil.NewConversation().
		User("q").
		Call("c1", "find_company", `{}`).
		Result("c1", "find_company", "ok").
		Assistant("answer").
		Build()
	require.NoError(t, s.Append(ctx, "ws", "th", msgs...))

	got, err := s.Load(ctx, "ws", "th")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "answer", got[0].Text())
}

func TestInMemoryStore_RejectsEmptyIDs(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Load(context.Background(), "", "th")
	require.ErrorIs(t, err, ErrInvalidThread)
	require.ErrorIs(t, s.Append(context.Background(), "ws", ""), ErrInvalidThread)
}

func TestInMemoryStore_ConcurrentAppends(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Append(ctx, "ws", "th", core.NewTextContent(core.RoleUser, "x"))
		}()
	}
	wg.Wait()

	got, err := s.Load(ctx, "ws", "th")
	require.NoError(t, err)
	assert.Len(t, got, 20)
}
