package memory

import (
	"sync"
)

// Turn 会话中的一轮发言
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// ShortTermMemory 进程内短期记忆
// 按session_id分桶的FIFO缓冲：每会话最多maxTurns轮，超出时淘汰最旧的。
// 短期记忆关注近期相关性，所以是FIFO而不是LRU。
// 不做持久化，进程重启即清空。
type ShortTermMemory struct {
	mu       sync.RWMutex
	sessions map[string]*session
	maxTurns int
}

// session单独持锁，一个会话的写入不阻塞其他会话
type session struct {
	mu    sync.Mutex
	turns []Turn
}

// NewShortTermMemory 创建短期记忆，maxTurns为每会话轮数上限
func NewShortTermMemory(maxTurns int) *ShortTermMemory {
	if maxTurns <= 0 {
		maxTurns = 20
	}
	return &ShortTermMemory{
		sessions: make(map[string]*session),
		maxTurns: maxTurns,
	}
}

func (m *ShortTermMemory) getOrCreate(sessionID string) *session {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		return s
	}
	s = &session{}
	m.sessions[sessionID] = s
	return s
}

// Append 追加一轮发言，首次引用session_id时创建会话
func (m *ShortTermMemory) Append(sessionID, role, text string) {
	s := m.getOrCreate(sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, Turn{Role: role, Text: text})
	if len(s.turns) > m.maxTurns {
		// FIFO淘汰最旧的
		over := len(s.turns) - m.maxTurns
		s.turns = append([]Turn(nil), s.turns[over:]...)
	}
}

// History 返回会话历史的拷贝，时间升序
func (m *ShortTermMemory) History(sessionID string) []Turn {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	turns := make([]Turn, len(s.turns))
	copy(turns, s.turns)
	return turns
}

// Clear 清空指定会话，不存在时是no-op
func (m *ShortTermMemory) Clear(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// Capacity 返回每会话轮数上限
func (m *ShortTermMemory) Capacity() int {
	return m.maxTurns
}
