// Package bridge broadcasts model lifecycle events to in-process
// subscribers and to plugins observing model changes.
package bridge

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/dorcha-inc/hookhost/internal/core"
	"github.com/dorcha-inc/hookhost/internal/models"
)

const (
	// DefaultSubscriberBuffer is the backlog above which a stalled subscriber is reported.
	DefaultSubscriberBuffer = 64
	DefaultDeliveryTimeout  = 250 * time.Millisecond
)

// ErrClosed is returned when subscribing to a closed bridge.
var ErrClosed = errors.New("bridge closed")

// Handler receives model events. Handlers run on the subscriber's own goroutine.
type Handler func(models.ChangeEvent)

// PluginNotifier forwards events to plugins. *plugin.Manager implements it.
type PluginNotifier interface {
	NotifyModelChange(ev models.ChangeEvent)
}

// Options configures a Bridge.
type Options struct {
	// WindowLabel identifies the window this host serves.
	WindowLabel string
	// SubscriberBuffer and DeliveryTimeout only drive the lag warning: a
	// subscriber whose backlog exceeds SubscriberBuffer and that has not
	// taken an event for DeliveryTimeout is logged as falling behind.
	SubscriberBuffer int
	DeliveryTimeout  time.Duration
	Clock            clockwork.Clock
	// Plugins, when set, receives every delivered event asynchronously.
	Plugins PluginNotifier
}

// Bridge fans model events out to subscribers. Each subscriber has its own
// unbounded queue so a slow or failing subscriber never holds up the others
// and never loses events.
type Bridge struct {
	opts Options

	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool
	wg     sync.WaitGroup
}

// New creates a bridge.
func New(opts Options) *Bridge {
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = DefaultSubscriberBuffer
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	b := &Bridge{opts: opts, subs: make(map[uint64]*subscriber)}
	if opts.Plugins != nil {
		// The bridge is new, so this cannot fail.
		_, _ = b.Subscribe("plugins", opts.Plugins.NotifyModelChange)
	}
	return b
}

// WindowLabel returns the label of the local window.
func (b *Bridge) WindowLabel() string {
	return b.opts.WindowLabel
}

// Subscribe registers fn under name. Events are delivered in publish order.
func (b *Bridge) Subscribe(name string, fn Handler) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	b.nextID++
	sub := &subscriber{
		id:       b.nextID,
		name:     name,
		fn:       fn,
		clock:    b.opts.Clock,
		backlog:  b.opts.SubscriberBuffer,
		stall:    b.opts.DeliveryTimeout,
		lastTake: b.opts.Clock.Now(),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
	b.subs[sub.id] = sub

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		sub.run()
	}()

	zap.L().Debug("Model event subscriber added", zap.String("subscriber", name))
	return &Subscription{bridge: b, sub: sub}, nil
}

func (b *Bridge) unsubscribe(sub *subscriber) {
	b.mu.Lock()
	_, ok := b.subs[sub.id]
	delete(b.subs, sub.id)
	b.mu.Unlock()

	if ok {
		sub.close()
		zap.L().Debug("Model event subscriber removed", zap.String("subscriber", sub.name))
	}
}

// PublishUpserted announces that model was created or updated by windowLabel.
func (b *Bridge) PublishUpserted(model models.Model, windowLabel string) int {
	return b.Publish(models.ChangeEvent{Change: models.ChangeUpserted, Model: model, WindowLabel: windowLabel})
}

// PublishDeleted announces that model was deleted by windowLabel.
func (b *Bridge) PublishDeleted(model models.Model, windowLabel string) int {
	return b.Publish(models.ChangeEvent{Change: models.ChangeDeleted, Model: model, WindowLabel: windowLabel})
}

// Publish queues ev for every subscriber and returns how many accepted it.
// It never blocks on a subscriber.
func (b *Bridge) Publish(ev models.ChangeEvent) int {
	if !ev.Model.Known() {
		zap.L().Warn("Dropping model event of unknown kind",
			zap.String("change", string(ev.Change)),
			zap.String("model", string(ev.Model.Kind())))
		return 0
	}
	if b.suppressed(ev) {
		zap.L().Debug("Suppressing window-local model event",
			zap.String("model_id", ev.Model.ID()),
			zap.String("window", ev.WindowLabel))
		return 0
	}

	delivered := 0
	for _, sub := range b.snapshot() {
		if sub.enqueue(ev) {
			delivered++
		}
	}
	return delivered
}

// suppressed reports whether ev is a window-local key/value change from
// another window.
func (b *Bridge) suppressed(ev models.ChangeEvent) bool {
	return ev.Model.Kind() == models.KindKeyValue &&
		ev.Model.Namespace() == models.NamespaceNoSync &&
		ev.WindowLabel != b.opts.WindowLabel
}

func (b *Bridge) snapshot() []*subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	out := make([]*subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		out = append(out, sub)
	}
	return out
}

// Subscribers returns the number of live subscriptions.
func (b *Bridge) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close stops every subscriber and waits for in-flight handlers to return.
// It must not be called from a handler.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[uint64]*subscriber)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	b.wg.Wait()
}

// Subscription is a handle to a registered subscriber.
type Subscription struct {
	bridge *Bridge
	sub    *subscriber
}

// Name returns the subscriber name.
func (s *Subscription) Name() string {
	return s.sub.name
}

// Close stops delivery. Queued events are discarded. It is idempotent and
// may be called from the subscriber's own handler.
func (s *Subscription) Close() {
	s.bridge.unsubscribe(s.sub)
}

type subscriber struct {
	id    uint64
	name  string
	fn    Handler
	clock clockwork.Clock

	backlog int
	stall   time.Duration

	mu       sync.Mutex
	queue    []models.ChangeEvent
	lastTake time.Time
	lagging  bool

	wake      chan struct{}
	stop      chan struct{}
	closeOnce sync.Once
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() { close(s.stop) })
}

func (s *subscriber) enqueue(ev models.ChangeEvent) bool {
	select {
	case <-s.stop:
		return false
	default:
	}

	s.mu.Lock()
	s.queue = append(s.queue, ev)
	pending := len(s.queue)
	waited := s.clock.Since(s.lastTake)
	report := !s.lagging && pending > s.backlog && waited >= s.stall
	if report {
		s.lagging = true
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}

	if report {
		zap.L().Warn("Model event subscriber is falling behind",
			zap.String("subscriber", s.name),
			zap.Int("pending", pending),
			zap.Duration("since_last_delivery", waited))
	}
	return true
}

func (s *subscriber) take() (models.ChangeEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return models.ChangeEvent{}, false
	}
	ev := s.queue[0]
	s.queue[0] = models.ChangeEvent{}
	s.queue = s.queue[1:]
	s.lastTake = s.clock.Now()
	if len(s.queue) <= s.backlog {
		s.lagging = false
	}
	return ev, true
}

func (s *subscriber) run() {
	for {
		ev, ok := s.take()
		if !ok {
			select {
			case <-s.stop:
				return
			case <-s.wake:
				continue
			}
		}
		select {
		case <-s.stop:
			return
		default:
		}
		s.deliver(ev)
	}
}

func (s *subscriber) deliver(ev models.ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			core.LogPanicRecovery("bridge.subscriber."+s.name, r)
		}
	}()
	s.fn(ev)
}
