package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortTermMemory_AppendAndHistory(t *testing.T) {
	mem := NewShortTermMemory(10)

	mem.Append("s1", "user", "hello")
	mem.Append("s1", "assistant", "hi there")

	history := mem.History("s1")
	require.Len(t, history, 2)
	assert.Equal(t, Turn{Role: "user", Text: "hello"}, history[0])
	assert.Equal(t, Turn{Role: "assistant", Text: "hi there"}, history[1])
}

// 容量N的会话追加N+1轮后，第一轮被淘汰，顺序保持时间升序
func TestShortTermMemory_FIFOEviction(t *testing.T) {
	const capacity = 5
	mem := NewShortTermMemory(capacity)

	for i := 0; i <= capacity; i++ {
		mem.Append("s1", "user", fmt.Sprintf("turn %d", i))
	}

	history := mem.History("s1")
	require.Len(t, history, capacity)
	assert.Equal(t, "turn 1", history[0].Text)
	assert.Equal(t, fmt.Sprintf("turn %d", capacity), history[capacity-1].Text)
}

func TestShortTermMemory_SessionsAreIsolated(t *testing.T) {
	mem := NewShortTermMemory(10)

	mem.Append("s1", "user", "for session one")
	mem.Append("s2", "user", "for session two")

	require.Len(t, mem.History("s1"), 1)
	require.Len(t, mem.History("s2"), 1)
	assert.Equal(t, "for session one", mem.History("s1")[0].Text)

	mem.Clear("s1")
	assert.Empty(t, mem.History("s1"))
	assert.Len(t, mem.History("s2"), 1, "clearing one session must not touch another")
}

func TestShortTermMemory_UnknownSession(t *testing.T) {
	mem := NewShortTermMemory(10)

	assert.Nil(t, mem.History("missing"))
	mem.Clear("missing") // no-op
}

func TestShortTermMemory_HistoryReturnsCopy(t *testing.T) {
	mem := NewShortTermMemory(10)
	mem.Append("s1", "user", "original")

	history := mem.History("s1")
	history[0].Text = "mutated"

	assert.Equal(t, "original", mem.History("s1")[0].Text)
}

func TestShortTermMemory_DefaultCapacity(t *testing.T) {
	assert.Equal(t, 20, NewShortTermMemory(0).Capacity())
	assert.Equal(t, 20, NewShortTermMemory(-3).Capacity())
	assert.Equal(t, 7, NewShortTermMemory(7).Capacity())
}

func TestShortTermMemory_ConcurrentAppend(t *testing.T) {
	mem := NewShortTermMemory(100)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			sessionID := fmt.Sprintf("s%d", g%2)
			for i := 0; i < 50; i++ {
				mem.Append(sessionID, "user", "x")
				mem.History(sessionID)
			}
		}(g)
	}
	wg.Wait()

	assert.Len(t, mem.History("s0"), 100)
	assert.Len(t, mem.History("s1"), 100)
}
