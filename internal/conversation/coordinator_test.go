package conversation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drivebot/internal/models"
)

type fakeSender struct {
	mu     sync.Mutex
	nextID int
	sent   []string
	edits  map[models.MessageRef]string
	err    error
	onSend func(chatID int64)
}

func newFakeSender() *fakeSender {
	return &fakeSender{edits: make(map[models.MessageRef]string)}
}

func (f *fakeSender) SendMessage(_ context.Context, chatID int64, text string) (models.MessageRef, error) {
	f.mu.Lock()
	if f.err != nil {
		err := f.err
		f.mu.Unlock()
		return models.MessageRef{}, err
	}
	f.nextID++
	ref := models.MessageRef{ChatID: chatID, MessageID: f.nextID}
	f.sent = append(f.sent, text)
	hook := f.onSend
	f.mu.Unlock()
	if hook != nil {
		hook(chatID)
	}
	return ref, nil
}

func (f *fakeSender) EditMessage(_ context.Context, ref models.MessageRef, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits[ref] = text
	return nil
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSender) editOf(ref models.MessageRef) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.edits[ref]
}

func textMessage(chatID int64, id int, text string) *models.Message {
	return &models.Message{Ref: models.MessageRef{ChatID: chatID, MessageID: id}, Private: true, Text: text}
}

func waitPending(t *testing.T, c *Coordinator, chatID int64) {
	t.Helper()
	require.Eventually(t, func() bool { return c.Pending(chatID) }, time.Second, time.Millisecond)
}

type askResult struct {
	out Outcome
	err error
}

func askAsync(c *Coordinator, ctx context.Context, chatID int64, timeout time.Duration) <-chan askResult {
	ch := make(chan askResult, 1)
	go func() {
		out, err := c.Ask(ctx, chatID, "question?", timeout)
		ch <- askResult{out: out, err: err}
	}()
	return ch
}

func TestAskAnswered(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(sender, nil)

	res := askAsync(c, context.Background(), 10, time.Second)
	waitPending(t, c, 10)

	reply := textMessage(10, 5, "Docs")
	require.True(t, c.Deliver(10, reply))

	got := <-res
	require.NoError(t, got.err)
	assert.Equal(t, Answered, got.out.Status)
	assert.Same(t, reply, got.out.Message)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, []string{"question?"}, sender.sent)
}

func TestAskReplyDuringSend(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(sender, nil)
	reply := textMessage(3, 2, "fast")
	var delivered atomic.Bool
	sender.onSend = func(chatID int64) {
		delivered.Store(c.Deliver(chatID, reply))
	}

	out, err := c.Ask(context.Background(), 3, "question?", time.Second)
	require.NoError(t, err)
	assert.True(t, delivered.Load(), "wait must exist before the prompt is acknowledged")
	assert.Equal(t, Answered, out.Status)
	assert.Same(t, reply, out.Message)
	assert.False(t, c.Pending(3))
}

func TestAskTimeout(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(sender, nil)

	out, err := c.Ask(context.Background(), 7, "question?", 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, TimedOut, out.Status)
	assert.Nil(t, out.Message)
	assert.Equal(t, TimeoutNotice, sender.editOf(out.Prompt))
	assert.False(t, c.Pending(7))

	assert.False(t, c.Deliver(7, textMessage(7, 9, "too late")))
}

func TestAskCancelled(t *testing.T) {
	c := NewCoordinator(newFakeSender(), nil)
	ctx, cancel := context.WithCancel(context.Background())

	res := askAsync(c, ctx, 1, time.Minute)
	waitPending(t, c, 1)
	cancel()

	got := <-res
	assert.ErrorIs(t, got.err, context.Canceled)
	assert.Equal(t, Cancelled, got.out.Status)
	assert.Equal(t, 0, c.Len())
}

func TestAskRejectsSecondQuestion(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(sender, nil)

	first := askAsync(c, context.Background(), 4, time.Second)
	waitPending(t, c, 4)

	_, err := c.Ask(context.Background(), 4, "second?", time.Second)
	require.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, 1, sender.sentCount(), "a rejected question is never sent")

	require.True(t, c.Deliver(4, textMessage(4, 8, "answer")))
	got := <-first
	require.NoError(t, got.err)
	assert.Equal(t, "answer", got.out.Message.Text)
}

func TestConcurrentAsksSameChat(t *testing.T) {
	c := NewCoordinator(newFakeSender(), nil)
	const n = 16

	results := make(chan askResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := c.Ask(context.Background(), 99, "question?", 2*time.Second)
			results <- askResult{out: out, err: err}
		}()
	}

	busy := 0
	for busy < n-1 {
		r := <-results
		require.ErrorIs(t, r.err, ErrBusy)
		busy++
	}
	assert.Equal(t, 1, c.Len())

	require.True(t, c.Deliver(99, textMessage(99, 1, "ok")))
	wg.Wait()
	last := <-results
	require.NoError(t, last.err)
	assert.Equal(t, Answered, last.out.Status)
	assert.Equal(t, 0, c.Len())
}

func TestAskSendFailureLeavesNoWait(t *testing.T) {
	sender := newFakeSender()
	sender.err = errors.New("network down")
	c := NewCoordinator(sender, nil)

	_, err := c.Ask(context.Background(), 5, "question?", time.Second)
	require.Error(t, err)
	assert.False(t, c.Pending(5))
}

func TestDeliverWithoutPendingIsNoop(t *testing.T) {
	c := NewCoordinator(newFakeSender(), nil)
	msg := textMessage(8, 1, "hello")

	assert.False(t, c.Deliver(8, msg))
	assert.False(t, c.Deliver(8, msg))
	assert.False(t, c.Deliver(8, nil))
}

func TestDeliverDuplicate(t *testing.T) {
	c := NewCoordinator(newFakeSender(), nil)
	res := askAsync(c, context.Background(), 2, time.Second)
	waitPending(t, c, 2)

	msg := textMessage(2, 1, "once")
	assert.True(t, c.Deliver(2, msg))
	assert.False(t, c.Deliver(2, msg))
	require.NoError(t, (<-res).err)
}

// Timer and reply race on every iteration; whichever side wins, the other must be
// a no-op and the table must end up empty.
func TestTimeoutRacesDelivery(t *testing.T) {
	c := NewCoordinator(newFakeSender(), nil)

	for i := 0; i < 200; i++ {
		chatID := int64(1000 + i)
		res := askAsync(c, context.Background(), chatID, time.Millisecond)
		msg := textMessage(chatID, i, "reply")

		var delivered bool
		deadline := time.Now().Add(50 * time.Millisecond)
		for time.Now().Before(deadline) {
			if delivered = c.Deliver(chatID, msg); delivered {
				break
			}
			select {
			case r := <-res:
				res = nil
				require.NoError(t, r.err)
				require.Equal(t, TimedOut, r.out.Status)
			default:
			}
			if res == nil {
				break
			}
		}
		if res != nil {
			r := <-res
			require.NoError(t, r.err)
			if delivered {
				require.Equal(t, Answered, r.out.Status)
				require.Same(t, msg, r.out.Message)
			} else {
				require.Equal(t, TimedOut, r.out.Status)
			}
		} else {
			require.False(t, delivered)
		}
		require.False(t, c.Pending(chatID))
	}
	assert.Equal(t, 0, c.Len())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "answered", Answered.String())
	assert.Equal(t, "timed_out", TimedOut.String())
	assert.Equal(t, "cancelled", Cancelled.String())
	assert.Equal(t, "unknown", Status(0).String())
}
