package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestRingBufferSimpleWrite(t *testing.T) {
	rb := NewRingBuffer(64)
	n, err := rb.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Write = (%d, %v), want (5, nil)", n, err)
	}
	if got := string(rb.Bytes()); got != "hello" {
		t.Errorf("Bytes = %q, want %q", got, "hello")
	}
}

func TestRingBufferWrapAround(t *testing.T) {
	rb := NewRingBuffer(8)
	rb.Write([]byte("abcdef"))
	rb.Write([]byte("ghij")) // pushes "ab" out

	got := string(rb.Bytes())
	if got != "cdefghij" {
		t.Errorf("Bytes = %q, want %q", got, "cdefghij")
	}
}

func TestRingBufferOversizeWrite(t *testing.T) {
	rb := NewRingBuffer(4)
	rb.Write([]byte("0123456789"))
	if got := string(rb.Bytes()); got != "6789" {
		t.Errorf("Bytes = %q, want %q", got, "6789")
	}
}

func TestRingBufferManySmallWrites(t *testing.T) {
	rb := NewRingBuffer(16)
	for i := 0; i < 100; i++ {
		rb.Write([]byte("ab"))
	}
	got := rb.Bytes()
	if len(got) != 16 {
		t.Fatalf("len(Bytes) = %d, want 16", len(got))
	}
	if !bytes.Equal(got, []byte(strings.Repeat("ab", 8))) {
		t.Errorf("Bytes = %q", got)
	}
}

func TestForComponentBeforeInit(t *testing.T) {
	// Must not panic and must not write anywhere.
	log := ForComponent(CompWatch)
	log.Info("noop")
}
