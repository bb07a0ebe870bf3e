package undo

import (
	"fmt"
	"testing"
)

func TestPushPop(t *testing.T) {
	s := New(3)
	if _, ok := s.Pop(); ok {
		t.Fatal("Pop on empty stack reported an entry")
	}

	s.Push(NewEntry("a", "A", ""))
	s.Push(NewEntry("b", "B", ""))

	e, ok := s.Peek()
	if !ok || e.Original != "b" {
		t.Fatalf("Peek = %+v, %v", e, ok)
	}
	if s.Len() != 2 {
		t.Fatalf("Len = %d after Peek", s.Len())
	}

	e, ok = s.Pop()
	if !ok || e.Original != "b" {
		t.Fatalf("Pop = %+v, %v", e, ok)
	}
	e, _ = s.Pop()
	if e.Original != "a" {
		t.Fatalf("Pop = %+v", e)
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d", s.Len())
	}
}

func TestEviction(t *testing.T) {
	s := New(3)
	for i := 0; i < 5; i++ {
		s.Push(NewEntry(fmt.Sprint(i), "", ""))
	}
	if s.Len() != 3 {
		t.Fatalf("Len = %d, want 3", s.Len())
	}
	for _, want := range []string{"4", "3", "2"} {
		e, _ := s.Pop()
		if e.Original != want {
			t.Errorf("Pop = %q, want %q", e.Original, want)
		}
	}
}

func TestDefaultCapacity(t *testing.T) {
	s := New(0)
	for i := 0; i < DefaultCapacity+10; i++ {
		s.Push(NewEntry("x", "y", ""))
	}
	if s.Len() != DefaultCapacity {
		t.Errorf("Len = %d, want %d", s.Len(), DefaultCapacity)
	}
}

func TestUpdate(t *testing.T) {
	s := New(5)
	e := NewEntry("helo", "рудщ", "")
	s.Push(e)
	if e.CharCount != 4 {
		t.Errorf("CharCount = %d", e.CharCount)
	}

	if !s.Update(e.ID, "hello") {
		t.Fatal("Update did not find entry")
	}
	got, _ := s.Peek()
	if got.Corrected != "hello" || got.CharCount != 5 {
		t.Errorf("after Update: %+v", got)
	}
	if s.Update("missing", "x") {
		t.Error("Update of unknown id reported success")
	}

	s.Clear()
	if s.Len() != 0 {
		t.Errorf("Len after Clear = %d", s.Len())
	}
}
