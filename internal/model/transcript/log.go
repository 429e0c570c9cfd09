package transcript

import (
	"sync"
	"time"
)

// DefaultCapacity 转写记录的默认容量上限。
const DefaultCapacity = 50

// Role 标识一条转写的来源。
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// Entry 一条转写记录，写入后不再修改。
type Entry struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Log 有界的追加式转写序列，超出容量时淘汰最旧的一条。
type Log struct {
	mu       sync.RWMutex
	capacity int
	entries  []Entry
}

// NewLog 创建转写日志；capacity 小于等于 0 时使用 DefaultCapacity。
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		capacity: capacity,
		entries:  make([]Entry, 0, capacity),
	}
}

// Append 追加一条转写并返回写入的记录。
func (l *Log) Append(role Role, text string) Entry {
	entry := Entry{Role: role, Text: text, Timestamp: time.Now().UTC()}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.capacity {
		// 滚动淘汰最旧记录，保持底层数组不无限增长。
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:l.capacity]
	}
	l.mu.Unlock()

	return entry
}

// Entries 返回当前全部记录的副本。
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	copied := make([]Entry, len(l.entries))
	copy(copied, l.entries)
	return copied
}

// Len 返回当前记录条数。
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
