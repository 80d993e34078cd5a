package routing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/soyeahso/botkit/internal/domain"
	"github.com/soyeahso/botkit/internal/logging"
)

// ErrStreamClosed is returned when emitting into a closed stream.
var ErrStreamClosed = errors.New("routing: stream is closed")

// EmptyStreamText is sent as the final message when a stream carried only
// informative updates.
const EmptyStreamText = "Streaming closed with no content"

// StreamConfig controls chunk batching.
type StreamConfig struct {
	// Debounce is how long the stream waits after the last emit before
	// flushing. Default: 500ms.
	Debounce time.Duration

	// BatchSize caps the fragments drained per flush. Default: 10.
	BatchSize int

	// PollInterval is how often Close checks for the queue to drain.
	// Default: 50ms.
	PollInterval time.Duration

	// Retry is replaced by DefaultRetryConfig only when left zero; a
	// config with InitialDelay set and MaxRetries 0 disables retries.
	Retry RetryConfig
}

// DefaultStreamConfig returns the standard batching policy.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Debounce:     500 * time.Millisecond,
		BatchSize:    10,
		PollInterval: 50 * time.Millisecond,
		Retry:        DefaultRetryConfig(),
	}
}

func (c StreamConfig) withDefaults() StreamConfig {
	d := DefaultStreamConfig()
	if c.Debounce <= 0 {
		c.Debounce = d.Debounce
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.Retry.MaxRetries == 0 && c.Retry.InitialDelay == 0 {
		onRetry := c.Retry.OnRetry
		c.Retry = d.Retry
		c.Retry.OnRetry = onRetry
	}
	return c
}

// StreamOptions wires a Stream to its conversation.
type StreamOptions struct {
	Sender domain.Sender
	Ref    domain.ConversationReference
	Config StreamConfig
	Log    *logging.Logger

	// OnChunk is called with every activity the channel accepted,
	// including the final message.
	OnChunk func(*domain.Activity)

	// OnError is called when a flush fails after retries.
	OnError func(error)
}

// Stream coalesces incrementally emitted fragments into a bounded number of
// chunk sends followed by one final message.
type Stream struct {
	ctx     context.Context
	sender  domain.Sender
	ref     domain.ConversationReference
	cfg     StreamConfig
	log     *logging.Logger
	onChunk func(*domain.Activity)
	onError func(error)

	// mu guards the queue, timer and the bookkeeping read by Close.
	mu       sync.Mutex
	queue    []*domain.Activity
	timer    *time.Timer
	emitted  bool
	closed   bool
	flushing bool
	lastErr  error
	id       string
	index    int
	count    int

	// lock admits one flush or the final send at a time and guards the
	// accumulators below.
	lock        chan struct{}
	text        string
	attachments []domain.Attachment
	entities    []domain.Entity
	channelData domain.ChannelData

	closeMu sync.Mutex
	result  *domain.Activity
}

// NewStream creates a stream. ctx bounds sends made from timer flushes.
func NewStream(ctx context.Context, opts StreamOptions) *Stream {
	log := opts.Log
	if log == nil {
		log = logging.New(nil, "silent")
	}
	return &Stream{
		ctx:     ctx,
		sender:  opts.Sender,
		ref:     opts.Ref,
		cfg:     opts.Config.withDefaults(),
		log:     log.Sub("stream"),
		onChunk: opts.OnChunk,
		onError: opts.OnError,
		index:   1,
		lock:    make(chan struct{}, 1),
	}
}

// Emit enqueues a fragment and restarts the debounce timer.
func (s *Stream) Emit(a *domain.Activity) error {
	if a == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.emitted = true
	s.queue = append(s.queue, a.Clone())
	s.armLocked()
	return nil
}

// EmitText emits a message text fragment.
func (s *Stream) EmitText(text string) error {
	return s.Emit(domain.NewMessage(text))
}

// Update emits an informative progress update.
func (s *Stream) Update(text string) error {
	return s.Emit(domain.NewTyping(text).WithData(domain.ChannelData{"streamType": string(domain.StreamInformative)}))
}

func (s *Stream) armLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.cfg.Debounce, s.flush)
}

// Closed reports whether Close has been called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Count returns the number of fragments flushed so far.
func (s *Stream) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Sequence returns the sequence number the next chunk will carry.
func (s *Stream) Sequence() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// ID returns the stream id assigned by the channel, or "".
func (s *Stream) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Stream) flush() {
	s.lock <- struct{}{}
	defer func() { <-s.lock }()

	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	n := len(s.queue)
	if n > s.cfg.BatchSize {
		n = s.cfg.BatchSize
	}
	batch := s.queue[:n:n]
	s.queue = append([]*domain.Activity(nil), s.queue[n:]...)
	s.count += n
	s.flushing = n > 0
	s.mu.Unlock()

	if n == 0 {
		return
	}

	var informative []*domain.Activity
	for _, a := range batch {
		if m, ok := a.AsMessage(); ok {
			s.text += m.Text
			s.attachments = append(s.attachments, m.Attachments...)
			s.entities = append(s.entities, m.Entities...)
		}
		if a.ChannelData != nil {
			s.channelData = s.channelData.Merge(a.ChannelData)
		}
		if t, ok := a.AsTyping(); ok && t.StreamType == domain.StreamInformative && s.text == "" {
			informative = append(informative, a)
		}
	}

	err := s.sendChunks(informative)

	s.mu.Lock()
	s.flushing = false
	s.lastErr = err
	if len(s.queue) > 0 && s.timer == nil {
		s.armLocked()
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Str("conversation", s.ref.Conversation.ID).Msg("stream flush failed")
		if s.onError != nil {
			s.onError(err)
		}
	}
}

func (s *Stream) sendChunks(informative []*domain.Activity) error {
	for _, a := range informative {
		if err := s.sendChunk(a); err != nil {
			return err
		}
	}
	if s.text != "" {
		return s.sendChunk(domain.NewTyping(s.text))
	}
	return nil
}

func (s *Stream) sendChunk(a *domain.Activity) error {
	s.mu.Lock()
	id, seq := s.id, s.index
	s.mu.Unlock()

	if id != "" {
		a.WithID(id)
	}
	a.AddStreamUpdate(seq)

	res, err := s.send(s.ctx, a)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.id == "" {
		s.id = res.ID
	}
	s.index++
	s.mu.Unlock()
	return nil
}

func (s *Stream) send(ctx context.Context, a *domain.Activity) (*domain.Activity, error) {
	var res *domain.Activity
	err := Retry(ctx, s.cfg.Retry, func() error {
		out, err := s.sender.Send(ctx, a, s.ref, false)
		if err != nil {
			s.log.Debug().Err(err).Msg("stream send attempt failed")
			return err
		}
		res = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = a
	}
	if s.onChunk != nil {
		s.onChunk(res)
	}
	return res, nil
}

// Close waits for pending fragments to be flushed, then sends the final
// message and returns it. It returns nil when nothing was ever emitted.
// Later calls return the first result without sending again.
func (s *Stream) Close(ctx context.Context) (*domain.Activity, error) {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	if s.result != nil {
		return s.result, nil
	}

	s.mu.Lock()
	s.closed = true
	emitted := s.emitted
	s.mu.Unlock()
	if !emitted {
		return nil, nil
	}

	if err := s.waitDrained(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	id, flushErr := s.id, s.lastErr
	s.mu.Unlock()
	if id == "" && flushErr != nil {
		return nil, flushErr
	}

	res, err := s.sendFinal(ctx, id)
	if err != nil {
		return nil, err
	}
	s.result = res
	return res, nil
}

// Abort ends the stream after a failed request. Queued fragments are
// dropped and the debounce timer is stopped. A stream that already sent
// chunks is ended with a final message carrying what was accumulated;
// otherwise nothing is sent.
func (s *Stream) Abort(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.queue = nil
	s.mu.Unlock()

	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	if s.result != nil {
		return nil
	}
	if err := s.waitDrained(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	id := s.id
	if id == "" {
		s.emitted = false
	}
	s.mu.Unlock()
	if id == "" {
		return nil
	}

	res, err := s.sendFinal(ctx, id)
	if err != nil {
		return err
	}
	s.result = res
	return nil
}

func (s *Stream) sendFinal(ctx context.Context, id string) (*domain.Activity, error) {
	s.lock <- struct{}{}
	defer func() { <-s.lock }()

	text := s.text
	if text == "" && len(s.attachments) == 0 {
		text = EmptyStreamText
	}

	final := domain.NewMessage(text).AddAttachment(s.attachments...)
	if id != "" {
		final.WithID(id)
	}
	final.WithData(s.channelData)
	final.AddEntity(s.entities...)
	final.AddStreamFinal()

	return s.send(ctx, final)
}

// waitDrained polls until the queue is empty and no flush is running.
func (s *Stream) waitDrained(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		s.mu.Lock()
		drained := len(s.queue) == 0 && !s.flushing
		s.mu.Unlock()
		if drained {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
