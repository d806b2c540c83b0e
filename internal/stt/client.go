// Package stt implements streaming speech-to-text clients for the supported
// providers. Each provider speaks JSON over a websocket; audio goes out as
// binary frames and recognition results come back as transcript events.
package stt

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Segment is one raw recognition fragment from the provider.
type Segment struct {
	SpeakerID   string  `json:"speakerId"`
	Text        string  `json:"text"`
	StartMs     int64   `json:"startMs"`
	EndMs       int64   `json:"endMs"`
	Confidence  float64 `json:"confidence"`
	IsFinal     bool    `json:"isFinal"`
	SpeechFinal bool    `json:"speechFinal"`
}

// EventType discriminates the inbound event union.
type EventType string

const (
	EventConnected    EventType = "connected"
	EventTranscript   EventType = "transcript"
	EventError        EventType = "error"
	EventDisconnected EventType = "disconnected"
)

// Event is one inbound event from the provider stream.
type Event struct {
	Type    EventType `json:"type"`
	Segment *Segment  `json:"segment,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Config identifies the provider session to open.
type Config struct {
	Provider string // deepgram, assemblyai, gladia, azure-speech, custom
	BaseURL  string // empty = provider default
	APIKey   string
	Language string
	Model    string
	Region   string // azure-speech only
}

// Client is an open streaming recognition session.
type Client interface {
	// SendAudio forwards one binary PCM frame to the provider.
	SendAudio(ctx context.Context, audio []byte) error

	// Events returns the inbound event stream. The channel is buffered, so
	// events arriving before the consumer attaches are retained in order.
	Events() <-chan Event

	// Close requests graceful shutdown. Closing an already-closed session
	// is a no-op.
	Close() error
}

// provider abstracts the per-vendor websocket details.
type provider interface {
	name() string
	// request builds the websocket URL and headers for the session.
	request(cfg Config) (string, http.Header, error)
	// afterConnect runs once the socket is open (e.g. Gladia's config frame).
	afterConnect(c *wsClient) error
	// parse converts one inbound text message into events. A nil slice means
	// the message was not a recognizable event.
	parse(msg []byte) []Event
	// deferConnected reports whether the connected event waits for a
	// provider handshake message instead of firing at socket open.
	deferConnected() bool
	// closeMessage is an optional graceful-shutdown text frame.
	closeMessage() []byte
}

// Dial opens a streaming session with the configured provider.
func Dial(ctx context.Context, cfg Config) (Client, error) {
	var p provider
	switch cfg.Provider {
	case "deepgram":
		p = deepgramProvider{}
	case "assemblyai":
		p = assemblyAIProvider{}
	case "gladia":
		p = gladiaProvider{cfg: cfg}
	case "azure-speech":
		p = azureProvider{}
	case "custom":
		p = customProvider{}
	case "aws-transcribe":
		return nil, fmt.Errorf("AWS Transcribe support is not yet implemented")
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}

	url, headers, err := p.request(cfg)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, headers)
	if err != nil {
		return nil, fmt.Errorf("websocket connection failed: %w", err)
	}

	c := &wsClient{
		conn:     conn,
		provider: p,
		events:   make(chan Event, 100),
		done:     make(chan struct{}),
	}

	if err := p.afterConnect(c); err != nil {
		_ = conn.Close()
		return nil, err
	}

	// Providers with a readiness handshake emit connected from the read
	// loop instead; everyone else is ready as soon as the socket is open.
	if !p.deferConnected() {
		c.events <- Event{Type: EventConnected}
	}

	c.wg.Add(1)
	go c.readLoop()
	return c, nil
}

// wsClient is the shared websocket transport under every provider.
type wsClient struct {
	conn     *websocket.Conn
	provider provider

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex
	wg        sync.WaitGroup
}

func (c *wsClient) SendAudio(ctx context.Context, audio []byte) error {
	select {
	case <-c.done:
		return fmt.Errorf("client is closed")
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, audio)
}

func (c *wsClient) Events() <-chan Event {
	return c.events
}

func (c *wsClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		if msg := c.provider.closeMessage(); msg != nil {
			_ = c.conn.WriteMessage(websocket.TextMessage, msg)
		}
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		err = c.conn.Close()

		// Let readLoop finish before closing the event channel.
		c.wg.Wait()
		close(c.events)
	})
	return err
}

// writeText sends a text frame under the write lock. Used by provider
// afterConnect hooks.
func (c *wsClient) writeText(msg []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

func (c *wsClient) readLoop() {
	defer c.wg.Done()

	// Track the last unrecognized server message so a reason-less close
	// frame can still carry a useful diagnostic.
	var lastServerText string

	for {
		select {
		case <-c.done:
			return
		default:
		}

		msgType, msg, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				// Local close: this is the graceful path.
				c.emit(Event{Type: EventDisconnected})
			default:
				c.emit(Event{Type: EventError, Error: closeReason(err, lastServerText)})
			}
			return
		}

		if msgType != websocket.TextMessage {
			continue
		}

		events := c.provider.parse(msg)
		if events == nil {
			lastServerText = truncate(string(msg), 300)
			continue
		}
		for _, ev := range events {
			c.emit(ev)
		}
	}
}

// emit delivers an event without ever blocking the read loop. The channel
// is large enough that drops only happen when the consumer is gone.
func (c *wsClient) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// closeReason turns a read error into a caller-facing message, preferring
// the server's close reason and falling back to the last unparsed message
// (often an error JSON the server sent right before closing).
func closeReason(err error, lastServerText string) string {
	if ce, ok := err.(*websocket.CloseError); ok {
		if ce.Text != "" {
			return ce.Text
		}
		if lastServerText != "" {
			return fmt.Sprintf("server closed (code %d): %s", ce.Code, lastServerText)
		}
		return fmt.Sprintf("connection closed by server (code %d)", ce.Code)
	}
	if lastServerText != "" {
		return fmt.Sprintf("websocket error: %v (last server message: %s)", err, lastServerText)
	}
	return fmt.Sprintf("websocket error: %v", err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func hostOrDefault(baseURL, def string) string {
	if baseURL == "" {
		return def
	}
	for len(baseURL) > 0 && baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}
	return baseURL
}
