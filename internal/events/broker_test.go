package events

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerSubscribePublish(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish(NewContentChanged("work", 0))

	select {
	case ev := <-ch:
		assert.Equal(t, TypeContentChanged, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBrokerSlowSubscriberDropsNotBlocks(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	_, cancel := b.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Overfill the subscriber queue; Publish must never block.
		for i := 0; i < subscriberBuffer*2; i++ {
			b.Publish(NewContentChanged("work", i))
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestBrokerCancelReleasesSubscriber(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ch, cancel := b.Subscribe()
	cancel()
	cancel() // double cancel is safe

	_, open := <-ch
	assert.False(t, open)
}

func TestBrokerUnixSocketSubscriber(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "events.sock")

	b := NewBroker()
	defer b.Close()
	require.NoError(t, b.Listen(sock))

	conn, err := net.Dial("unix", sock)
	require.NoError(t, err)
	defer conn.Close()

	// Give the accept loop a moment to register the subscriber.
	time.Sleep(50 * time.Millisecond)

	b.Publish(NewWindowAutomation("work", "agent", "trust-folder"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(line, &ev))
	assert.Equal(t, TypeWindowAutomation, ev.Type)
}

func TestBrokerListenRemovesStaleSocket(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "events.sock")
	require.NoError(t, os.WriteFile(sock, nil, 0o644))

	b := NewBroker()
	defer b.Close()
	assert.NoError(t, b.Listen(sock))
}

func TestIngesterRepublishesHookFiles(t *testing.T) {
	dir := t.TempDir()

	b := NewBroker()
	defer b.Close()
	ch, cancel := b.Subscribe()
	defer cancel()

	in, err := NewIngester(dir, b)
	require.NoError(t, err)
	defer in.Stop()
	go in.Start()

	time.Sleep(50 * time.Millisecond)

	// Atomic tmp+rename, as producers do.
	tmp := filepath.Join(dir, "ev.json.tmp")
	final := filepath.Join(dir, "ev.json")
	require.NoError(t, os.WriteFile(tmp, []byte(`{"session":"work","kind":"stop"}`), 0o644))
	require.NoError(t, os.Rename(tmp, final))

	select {
	case ev := <-ch:
		assert.Equal(t, TypeHook, ev.Type)
		hook := ev.Data.(HookEvent)
		assert.Equal(t, "work", hook.Session)
		assert.Equal(t, "stop", hook.Kind)
	case <-time.After(3 * time.Second):
		t.Fatal("hook event not republished")
	}

	// File is removed after ingestion.
	assert.Eventually(t, func() bool {
		_, err := os.Stat(final)
		return os.IsNotExist(err)
	}, 2*time.Second, 50*time.Millisecond)
}
