// Package chat drives the chat room: it loads the backlog, merges pushed
// messages in arrival order, and submits outgoing text.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/pookietalk/pookie/internal/models"
)

var (
	ErrNotAuthenticated = errors.New("chat: session is not authenticated")
	ErrActive           = errors.New("chat: controller already active")
)

type MessageSource interface {
	History(ctx context.Context) ([]models.ChatMessage, error)
	Send(ctx context.Context, sender, content string) error
}

// Channel is the push side. realtime.Channel satisfies it.
type Channel interface {
	Connect(ctx context.Context) error
	OnMessage(fn func(models.ChatMessage))
	Disconnect() error
}

// ChannelFactory returns a fresh, unconnected channel for each activation.
type ChannelFactory func() Channel

type Identity interface {
	User() *models.User
}

type Controller struct {
	source   MessageSource
	dial     ChannelFactory
	identity Identity
	logger   *zap.Logger

	mu     sync.Mutex
	active bool
	// epoch counts activations; callbacks from an earlier activation are
	// discarded.
	epoch       uint64
	channel     Channel
	messages    []models.ChatMessage
	held        []models.ChatMessage
	historyDone bool
	historyErr  error
	ready       chan struct{}
	input       string
	subs        map[int]func([]models.ChatMessage)
	nextSub     int
	// version stamps each snapshot handed to subscribers.
	version uint64

	// deliverMu serializes subscriber callbacks; delivered is the newest
	// version they have seen. Older snapshots that lose the race are skipped.
	deliverMu sync.Mutex
	delivered uint64

	wg sync.WaitGroup
}

func NewController(source MessageSource, dial ChannelFactory, identity Identity, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	ready := make(chan struct{})
	close(ready)
	return &Controller{
		source:   source,
		dial:     dial,
		identity: identity,
		logger:   logger,
		ready:    ready,
		subs:     make(map[int]func([]models.ChatMessage)),
	}
}

// Activate starts the history fetch and opens the realtime channel. ctx
// bounds both. A failed connect is returned but leaves the controller
// active, showing history without live updates.
func (c *Controller) Activate(ctx context.Context) error {
	if c.identity.User() == nil {
		return ErrNotAuthenticated
	}

	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return ErrActive
	}
	c.active = true
	c.epoch++
	epoch := c.epoch
	c.messages = nil
	c.held = nil
	c.historyDone = false
	c.historyErr = nil
	ready := make(chan struct{})
	c.ready = ready
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(ready)
		msgs, err := c.source.History(ctx)
		c.applyHistory(epoch, msgs, err)
	}()

	ch := c.dial()
	ch.OnMessage(func(m models.ChatMessage) { c.push(epoch, m) })
	if err := ch.Connect(ctx); err != nil {
		c.logger.Warn("realtime connect failed", zap.Error(err))
		return fmt.Errorf("connect realtime channel: %w", err)
	}

	c.mu.Lock()
	if !c.active || c.epoch != epoch {
		// Deactivated while dialing.
		c.mu.Unlock()
		ch.Disconnect()
		return nil
	}
	c.channel = ch
	c.mu.Unlock()
	return nil
}

func (c *Controller) applyHistory(epoch uint64, msgs []models.ChatMessage, err error) {
	if err != nil {
		c.logger.Warn("history unavailable, starting with an empty backlog", zap.Error(err))
		msgs = nil
	}

	c.mu.Lock()
	if !c.active || c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	merged := make([]models.ChatMessage, 0, len(msgs)+len(c.held))
	merged = append(merged, msgs...)
	merged = append(merged, c.held...)
	c.messages = merged
	c.held = nil
	c.historyDone = true
	c.historyErr = err
	deliver := c.notifyLocked()
	c.mu.Unlock()
	deliver()
}

// push appends in arrival order. Messages that beat the history response are
// held until the backlog has been placed in front of them.
func (c *Controller) push(epoch uint64, m models.ChatMessage) {
	c.mu.Lock()
	if !c.active || c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	if !c.historyDone {
		c.held = append(c.held, m)
		c.mu.Unlock()
		return
	}
	c.messages = append(c.messages, m)
	deliver := c.notifyLocked()
	c.mu.Unlock()
	deliver()
}

// Deactivate closes the channel. Results that arrive later are dropped.
func (c *Controller) Deactivate() error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return nil
	}
	c.active = false
	ch := c.channel
	c.channel = nil
	c.mu.Unlock()

	if ch == nil {
		return nil
	}
	if err := ch.Disconnect(); err != nil {
		c.logger.Debug("disconnect", zap.Error(err))
		return err
	}
	return nil
}

// Ready is closed once the current activation's history has been applied.
func (c *Controller) Ready() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// HistoryErr reports why the backlog is empty, if it failed to load.
func (c *Controller) HistoryErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.historyErr
}

func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Messages returns a copy of the ordered sequence.
func (c *Controller) Messages() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.ChatMessage(nil), c.messages...)
}

func (c *Controller) SetInput(text string) {
	c.mu.Lock()
	c.input = text
	c.mu.Unlock()
}

func (c *Controller) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// Submit sends the current input. Blank input is ignored. The input is
// cleared only when the send succeeds; on failure it is kept and the error
// is returned.
func (c *Controller) Submit(ctx context.Context) error {
	text := c.Input()
	if strings.TrimSpace(text) == "" {
		return nil
	}
	user := c.identity.User()
	if user == nil {
		return ErrNotAuthenticated
	}

	if err := c.source.Send(ctx, user.Email, text); err != nil {
		c.logger.Warn("failed to send message", zap.Error(err))
		return err
	}

	c.mu.Lock()
	if c.input == text {
		c.input = ""
	}
	c.mu.Unlock()
	return nil
}

// Subscribe calls fn with the full sequence after every change.
func (c *Controller) Subscribe(fn func([]models.ChatMessage)) (cancel func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// notifyLocked must be called with mu held. The returned func runs the
// deliveries after unlock; subscribers never see a snapshot older than one
// they were already given.
func (c *Controller) notifyLocked() func() {
	c.version++
	if len(c.subs) == 0 {
		return func() {}
	}
	version := c.version
	snapshot := append([]models.ChatMessage(nil), c.messages...)
	fns := make([]func([]models.ChatMessage), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	return func() {
		c.deliverMu.Lock()
		defer c.deliverMu.Unlock()
		if version <= c.delivered {
			return
		}
		c.delivered = version
		for _, fn := range fns {
			fn(snapshot)
		}
	}
}

// Wait blocks until outstanding history fetches have returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}
