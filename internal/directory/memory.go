package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/xid"
)

type memoryNode struct {
	created uint64
	seq     uint64
	key     string
	value   Record
}

// Memory is an in-process directory. It keeps the same ordering and streaming
// guarantees as the Postgres directory and is used for local runs and tests.
type Memory struct {
	mu       sync.Mutex
	seq      uint64
	children map[string]map[string]*memoryNode
	subs     map[string]map[*memorySubscriber]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		children: make(map[string]map[string]*memoryNode),
		subs:     make(map[string]map[*memorySubscriber]struct{}),
	}
}

func (m *Memory) StreamChildren(ctx context.Context, path string) (<-chan Child, error) {
	if err := validate(path); err != nil {
		return nil, err
	}

	sub := &memorySubscriber{wake: make(chan struct{}, 1)}
	out := make(chan Child)

	m.mu.Lock()
	for _, node := range m.sortedLocked(path, bySeq) {
		sub.queue = append(sub.queue, Child{Key: node.key, Record: node.value.Clone()})
	}
	if m.subs[path] == nil {
		m.subs[path] = make(map[*memorySubscriber]struct{})
	}
	m.subs[path][sub] = struct{}{}
	m.mu.Unlock()

	go func() {
		defer close(out)
		defer m.unsubscribe(path, sub)
		sub.run(ctx, out)
	}()

	return out, nil
}

func (m *Memory) ReadOnce(ctx context.Context, path string) (Record, error) {
	parent, key, err := split(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if node, ok := m.children[parent][key]; ok {
		return node.value.Clone(), nil
	}

	nodes := m.children[path]
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	out := make(Record, len(nodes))
	for k, node := range nodes {
		out[k] = node.value.Clone()
	}

	return out, nil
}

func (m *Memory) Append(ctx context.Context, path string, record Record) (string, error) {
	if err := validate(path); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := xid.New().String()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeLocked(path, key, record.Clone())

	return key, nil
}

func (m *Memory) Set(ctx context.Context, path string, record Record) error {
	parent, key, err := split(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeLocked(parent, key, record.Clone())

	return nil
}

func (m *Memory) Update(ctx context.Context, path string, fields Record) error {
	parent, key, err := split(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.children[parent][key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	merged := node.value.Clone()
	if merged == nil {
		merged = make(Record, len(fields))
	}
	for k, v := range fields {
		merged[k] = cloneValue(v)
	}
	m.writeLocked(parent, key, merged)

	return nil
}

func (m *Memory) Increment(ctx context.Context, path string, field string, delta int64) (int64, error) {
	parent, key, err := split(path)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.children[parent][key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	current, ok := toInt64(node.value[field])
	if !ok {
		return 0, fmt.Errorf("поле %s в %s не является числом", field, path)
	}

	merged := node.value.Clone()
	if merged == nil {
		merged = make(Record, 1)
	}
	merged[field] = current + delta
	m.writeLocked(parent, key, merged)

	return current + delta, nil
}

func (m *Memory) ReadRange(ctx context.Context, path string, from, to int) ([]Child, error) {
	if err := validate(path); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	nodes := m.sortedLocked(path, byCreatedDesc)
	if from < 0 {
		from = 0
	}
	if to > len(nodes) {
		to = len(nodes)
	}
	if from >= to {
		return []Child{}, nil
	}

	out := make([]Child, 0, to-from)
	for _, node := range nodes[from:to] {
		out = append(out, Child{Key: node.key, Record: node.value.Clone()})
	}

	return out, nil
}

func (m *Memory) writeLocked(parent, key string, value Record) {
	m.seq++

	nodes := m.children[parent]
	if nodes == nil {
		nodes = make(map[string]*memoryNode)
		m.children[parent] = nodes
	}

	node, ok := nodes[key]
	if !ok {
		node = &memoryNode{created: m.seq, key: key}
		nodes[key] = node
	}
	node.seq = m.seq
	node.value = value

	for sub := range m.subs[parent] {
		sub.push(Child{Key: key, Record: value.Clone()})
	}
}

type nodeOrder func(a, b *memoryNode) bool

func bySeq(a, b *memoryNode) bool         { return a.seq < b.seq }
func byCreatedDesc(a, b *memoryNode) bool { return a.created > b.created }

func (m *Memory) sortedLocked(parent string, less nodeOrder) []*memoryNode {
	nodes := make([]*memoryNode, 0, len(m.children[parent]))
	for _, node := range m.children[parent] {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return less(nodes[i], nodes[j]) })

	return nodes
}

func (m *Memory) unsubscribe(path string, sub *memorySubscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.subs[path], sub)
	if len(m.subs[path]) == 0 {
		delete(m.subs, path)
	}
}

// memorySubscriber buffers events so writers never block on slow readers.
type memorySubscriber struct {
	mu    sync.Mutex
	queue []Child
	wake  chan struct{}
}

func (s *memorySubscriber) push(child Child) {
	s.mu.Lock()
	s.queue = append(s.queue, child)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *memorySubscriber) pop() (Child, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return Child{}, false
	}

	child := s.queue[0]
	s.queue = s.queue[1:]

	return child, true
}

func (s *memorySubscriber) run(ctx context.Context, out chan<- Child) {
	for {
		child, ok := s.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
				continue
			}
		}

		select {
		case <-ctx.Done():
			return
		case out <- child:
		}
	}
}
