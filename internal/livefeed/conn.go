package livefeed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joshp123/hivewatch/internal/telemetry"
)

// EventKind identifies a transport lifecycle event.
type EventKind int

const (
	EventOpen EventKind = iota + 1
	EventMessage
	EventError
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	default:
		return "unknown"
	}
}

// Tag identifies one connection attempt. Session increases with every Open,
// so reopening the same hive still yields a distinct tag.
type Tag struct {
	DeviceID string
	Session  uint64
}

func (t Tag) String() string {
	return fmt.Sprintf("%s#%d", t.DeviceID, t.Session)
}

// Event is a transport lifecycle event. Transports fill Kind, Payload and Err;
// the Conn stamps Tag.
type Event struct {
	Tag     Tag
	Kind    EventKind
	Payload []byte
	Err     error
}

// Transport runs a single live feed session for one hive. Run blocks until ctx
// is cancelled or the feed ends and reports through emit in transport order.
// EventClose must be the last event emitted.
type Transport interface {
	Run(ctx context.Context, deviceID string, emit func(Event))
}

// ConnectionError wraps an error reported by the transport for a session.
type ConnectionError struct {
	Tag Tag
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("live feed %s: %v", e.Tag, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Stats counts what the connection has seen since it was created.
type Stats struct {
	Readings  uint64
	Pings     uint64
	Malformed uint64
	Errors    uint64
	Stale     uint64
}

type session struct {
	tag    Tag
	cancel context.CancelFunc
}

// Conn owns the live feed session for the selected hive.
//
// Conn is not safe for concurrent use. Its owner serializes Open, Close,
// Handle and the reads, and dispatch must route transport events back through
// that same serialization before calling Handle.
type Conn struct {
	transport Transport
	dispatch  func(Event)
	logger    *slog.Logger
	now       func() time.Time

	state       State
	current     *session
	nextSession uint64
	stats       Stats

	wg sync.WaitGroup
}

// NewConn creates a disconnected Conn. dispatch is called from transport
// goroutines with every event.
func NewConn(transport Transport, dispatch func(Event), logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		transport: transport,
		dispatch:  dispatch,
		logger:    logger,
		now:       time.Now,
	}
}

// Open closes the current session, if any, and starts a new one for deviceID.
func (c *Conn) Open(deviceID string) Tag {
	c.Close()

	c.nextSession++
	tag := Tag{DeviceID: deviceID, Session: c.nextSession}
	ctx, cancel := context.WithCancel(context.Background())
	c.current = &session{tag: tag, cancel: cancel}
	c.state = StateConnecting

	c.logger.Info("live feed connecting", "device_id", deviceID, "session", tag.Session)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.transport.Run(ctx, deviceID, func(ev Event) {
			ev.Tag = tag
			c.dispatch(ev)
		})
	}()

	return tag
}

// Close cancels the current session. It is idempotent. Once it returns, Handle
// rejects every event of the cancelled session.
func (c *Conn) Close() {
	if c.current != nil {
		c.current.cancel()
		c.logger.Info("live feed closed", "device_id", c.current.tag.DeviceID, "session", c.current.tag.Session)
		c.current = nil
	}
	c.state = StateDisconnected
}

// Handle applies a transport event. It returns the reading carried by a
// telemetry message of the current session; every other event yields false.
func (c *Conn) Handle(ev Event) (telemetry.Reading, bool) {
	if c.current == nil || ev.Tag != c.current.tag {
		c.stats.Stale++
		c.logger.Debug("dropping stale live feed event", "tag", ev.Tag.String(), "kind", ev.Kind.String())
		return telemetry.Reading{}, false
	}

	switch ev.Kind {
	case EventOpen:
		c.state = StateConnected
		c.logger.Info("live feed connected", "device_id", ev.Tag.DeviceID)

	case EventMessage:
		msg, err := DecodeMessage(ev.Payload)
		if err != nil {
			c.stats.Malformed++
			c.logger.Warn("ignoring live feed message", "device_id", ev.Tag.DeviceID, "error", err)
			return telemetry.Reading{}, false
		}
		if msg.Ping {
			c.stats.Pings++
			return telemetry.Reading{}, false
		}
		reading := msg.Reading
		if reading.Time.IsZero() {
			reading.Time = c.now().UTC()
		}
		c.stats.Readings++
		return reading, true

	case EventError:
		c.state = StateError
		c.stats.Errors++
		c.logger.Warn("live feed error", "error", &ConnectionError{Tag: ev.Tag, Err: ev.Err})

	case EventClose:
		// An errored session keeps showing the error after its close.
		if c.state != StateError {
			c.state = StateDisconnected
		}
		c.current.cancel()
		c.current = nil
		c.logger.Info("live feed disconnected", "device_id", ev.Tag.DeviceID)
	}

	return telemetry.Reading{}, false
}

// State is the connection state. After an errored session closes it stays
// StateError until the next Open or Close; otherwise a close rests in
// StateDisconnected.
func (c *Conn) State() State {
	return c.state
}

// Current returns the tag of the open session.
func (c *Conn) Current() (Tag, bool) {
	if c.current == nil {
		return Tag{}, false
	}
	return c.current.tag, true
}

func (c *Conn) Stats() Stats {
	return c.stats
}

// Wait blocks until every transport goroutine has returned. Call it without
// holding the owner's lock, after Close.
func (c *Conn) Wait() {
	c.wg.Wait()
}
