package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(sub *Subscriber, want int, timeout time.Duration) <-chan []string {
	result := make(chan []string, 1)
	go func() {
		var got []string
		deadline := time.After(timeout)
		for len(got) < want {
			select {
			case frame := <-sub.Out():
				got = append(got, string(frame))
			case <-deadline:
				result <- got
				return
			}
		}
		result <- got
	}()
	return result
}

func TestAttachDetach(t *testing.T) {
	reg := NewRegistry(RegistryConfig{}, testLogger())
	s1 := reg.NewSubscriber(a7, ownerCaller)
	s2 := reg.NewSubscriber(a7, adminCaller)

	require.NoError(t, reg.Attach(s1))
	require.NoError(t, reg.Attach(s2))
	require.NoError(t, reg.Attach(s2))
	assert.Equal(t, 2, reg.Subscribers(a7))

	assert.True(t, reg.Detach(s1))
	assert.False(t, reg.Detach(s1))
	assert.Equal(t, 1, reg.Subscribers(a7))

	assert.True(t, reg.Detach(s2))
	assert.Equal(t, 0, reg.Subscribers(a7))
	reg.mu.Lock()
	_, present := reg.channels[a7]
	reg.mu.Unlock()
	assert.False(t, present, "empty channel entry is removed")
}

func TestBroadcastOnlyReachesItsChannel(t *testing.T) {
	reg := NewRegistry(RegistryConfig{}, testLogger())
	other := ChannelKey{Subject: a7.Subject, SubjectUUID: "B8"}
	inA7 := reg.NewSubscriber(a7, ownerCaller)
	inB8 := reg.NewSubscriber(other, ownerCaller)
	require.NoError(t, reg.Attach(inA7))
	require.NoError(t, reg.Attach(inB8))

	assert.Equal(t, 1, reg.Broadcast(context.Background(), a7, []byte("hello")))
	assert.Equal(t, "hello", string(<-inA7.Out()))
	assert.Len(t, inB8.Out(), 0)
}

func TestBroadcastEvictsStalledSubscriber(t *testing.T) {
	reg := NewRegistry(RegistryConfig{SubscriberBuffer: 1, SendWindow: 50 * time.Millisecond}, testLogger())
	s1 := reg.NewSubscriber(a7, ownerCaller)
	s2 := reg.NewSubscriber(a7, ownerCaller)
	s3 := reg.NewSubscriber(a7, adminCaller)
	for _, sub := range []*Subscriber{s1, s2, s3} {
		require.NoError(t, reg.Attach(sub))
	}

	got1 := collect(s1, 3, 2*time.Second)
	got3 := collect(s3, 3, 2*time.Second)

	for _, m := range []string{"m1", "m2", "m3"} {
		_, err := reg.Publish(context.Background(), a7, func(context.Context) ([]byte, error) {
			return []byte(m), nil
		})
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"m1", "m2", "m3"}, <-got1)
	assert.Equal(t, []string{"m1", "m2", "m3"}, <-got3)
	assert.True(t, s2.Closed(), "stalled subscriber is closed")
	assert.Equal(t, 2, reg.Subscribers(a7))
}

func TestBroadcastNeverBlocksPastWindow(t *testing.T) {
	window := 30 * time.Millisecond
	reg := NewRegistry(RegistryConfig{SubscriberBuffer: 1, SendWindow: window}, testLogger())
	for i := 0; i < 5; i++ {
		sub := reg.NewSubscriber(a7, ownerCaller)
		require.NoError(t, reg.Attach(sub))
		sub.out <- []byte("full")
	}

	start := time.Now()
	delivered := reg.Broadcast(context.Background(), a7, []byte("x"))
	elapsed := time.Since(start)

	assert.Zero(t, delivered)
	assert.Less(t, elapsed, 10*window)
	assert.Equal(t, 0, reg.Subscribers(a7))
}

func TestPublishFailureBroadcastsNothing(t *testing.T) {
	reg := NewRegistry(RegistryConfig{}, testLogger())
	sub := reg.NewSubscriber(a7, ownerCaller)
	require.NoError(t, reg.Attach(sub))

	boom := errors.New("insert failed")
	_, err := reg.Publish(context.Background(), a7, func(context.Context) ([]byte, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, sub.Out(), 0)
}

func TestConcurrentPublishKeepsPersistenceOrder(t *testing.T) {
	const senders, perSender = 8, 25
	total := senders * perSender

	reg := NewRegistry(RegistryConfig{SubscriberBuffer: total}, testLogger())
	subs := make([]*Subscriber, 3)
	for i := range subs {
		subs[i] = reg.NewSubscriber(a7, ownerCaller)
		require.NoError(t, reg.Attach(subs[i]))
	}

	var seq int
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				_, err := reg.Publish(context.Background(), a7, func(context.Context) ([]byte, error) {
					seq++
					return []byte(fmt.Sprintf("%04d", seq)), nil
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	for _, sub := range subs {
		require.Len(t, sub.Out(), total)
		prev := ""
		for i := 0; i < total; i++ {
			frame := string(<-sub.Out())
			assert.Greater(t, frame, prev)
			prev = frame
		}
	}

	reg.mu.Lock()
	assert.Empty(t, reg.locks, "idle sequence locks are released")
	reg.mu.Unlock()
}

func TestCloseDrainsEverySubscriber(t *testing.T) {
	reg := NewRegistry(RegistryConfig{}, testLogger())
	s1 := reg.NewSubscriber(a7, ownerCaller)
	s2 := reg.NewSubscriber(ChannelKey{Subject: a7.Subject, SubjectUUID: "B8"}, ownerCaller)
	require.NoError(t, reg.Attach(s1))
	require.NoError(t, reg.Attach(s2))

	reg.Close()

	assert.True(t, s1.Closed())
	assert.True(t, s2.Closed())
	assert.Equal(t, 0, reg.Subscribers(a7))
	assert.ErrorIs(t, reg.Attach(reg.NewSubscriber(a7, ownerCaller)), ErrRegistryClosed)
}

func TestCloseChannel(t *testing.T) {
	reg := NewRegistry(RegistryConfig{}, testLogger())
	s1 := reg.NewSubscriber(a7, ownerCaller)
	s2 := reg.NewSubscriber(ChannelKey{Subject: a7.Subject, SubjectUUID: "B8"}, ownerCaller)
	require.NoError(t, reg.Attach(s1))
	require.NoError(t, reg.Attach(s2))

	assert.Equal(t, 1, reg.CloseChannel(a7))
	assert.True(t, s1.Closed())
	assert.False(t, s2.Closed())
	assert.False(t, reg.Detach(s1))
}

func TestTryEnqueueOnClosedSubscriber(t *testing.T) {
	reg := NewRegistry(RegistryConfig{SubscriberBuffer: 1}, testLogger())
	sub := reg.NewSubscriber(a7, ownerCaller)

	assert.True(t, sub.TryEnqueue([]byte("a")))
	assert.False(t, sub.TryEnqueue([]byte("b")), "buffer full")

	sub.Close()
	sub.Close()
	<-sub.Out()
	assert.False(t, sub.TryEnqueue([]byte("c")))
}
