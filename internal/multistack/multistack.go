// Package multistack maps names to independent stacks of values. Loop
// variables are scoped by pushing onto the stack of their name, so an inner
// loop reusing a name shadows the outer one without destroying it.
package multistack

import (
	"fmt"

	"github.com/conneroisu/scriptserv/internal/value"
)

// EmptyStackError is returned when reading from a name with no values.
type EmptyStackError struct {
	Name string
}

func (e *EmptyStackError) Error() string {
	return fmt.Sprintf("variable %q is not defined", e.Name)
}

// entry is an immutable stack node. Entries are shared: pushing allocates a
// new head that points at the previous one.
type entry struct {
	value value.Wrapper
	next  *entry
}

// MultiStack is not safe for concurrent use; each template execution owns one.
type MultiStack struct {
	heads map[string]*entry
}

// New creates an empty MultiStack.
func New() *MultiStack {
	return &MultiStack{heads: make(map[string]*entry)}
}

// Push places v on top of the stack for name.
func (m *MultiStack) Push(name string, v value.Wrapper) {
	m.heads[name] = &entry{value: v, next: m.heads[name]}
}

// Pop removes and returns the top value for name.
func (m *MultiStack) Pop(name string) (value.Wrapper, error) {
	head, ok := m.heads[name]
	if !ok {
		return value.Wrapper{}, &EmptyStackError{Name: name}
	}
	if head.next == nil {
		delete(m.heads, name)
	} else {
		m.heads[name] = head.next
	}
	return head.value, nil
}

// Peek returns the top value for name without removing it.
func (m *MultiStack) Peek(name string) (value.Wrapper, error) {
	head, ok := m.heads[name]
	if !ok {
		return value.Wrapper{}, &EmptyStackError{Name: name}
	}
	return head.value, nil
}

// Replace swaps the top value for name, keeping the rest of its stack.
func (m *MultiStack) Replace(name string, v value.Wrapper) error {
	head, ok := m.heads[name]
	if !ok {
		return &EmptyStackError{Name: name}
	}
	m.heads[name] = &entry{value: v, next: head.next}
	return nil
}

// IsEmpty reports whether name has no values.
func (m *MultiStack) IsEmpty(name string) bool {
	_, ok := m.heads[name]
	return !ok
}

// Depth returns how many values are stacked under name.
func (m *MultiStack) Depth(name string) int {
	n := 0
	for e := m.heads[name]; e != nil; e = e.next {
		n++
	}
	return n
}
