// Package events provides a NATS client wrapper for pub/sub messaging and
// request/reply RPC across the chat-platform services. It handles connection
// lifecycle, subject-based subscriptions, and convenience methods for the
// chat and moderation channels.
package events

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns used across the services.
const (
	SubjectChatEvents = "chat.events"       // + .<chat_id>
	SubjectUserNotify = "user.notify"       // + .<user_id>
	SubjectModeration = "moderation.events" // sanctions, report resolutions

	// RPC subjects served by chatd.
	SubjectChatSend     = "rpc.chat.send"
	SubjectChatHistory  = "rpc.chat.history"
	SubjectChatList     = "rpc.chat.list"
	SubjectChatMarkRead = "rpc.chat.mark_read"
	SubjectChatReadAll  = "rpc.chat.mark_chat_read"
	SubjectChatTyping   = "rpc.chat.typing"
	SubjectChatDelete   = "rpc.chat.delete"
	SubjectUserBlock    = "rpc.user.block"
	SubjectUserUnblock  = "rpc.user.unblock"
	SubjectImageVet     = "rpc.image.vet"

	// RPC subjects served by moderatord.
	SubjectReportFile    = "rpc.report.file"
	SubjectReportResolve = "rpc.report.resolve"
	SubjectReportAppeal  = "rpc.report.appeal"
	SubjectModSanction   = "rpc.mod.sanction"
	SubjectModQueue      = "rpc.mod.queue"
	SubjectModLog        = "rpc.mod.log"
	SubjectModReports    = "rpc.mod.reports"
)

// Client wraps the NATS connection with helper methods for pub/sub and RPC.
type Client struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "chat-platform",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// Connect connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func Connect(config Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &Client{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *Client) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *Client) Subscribe(subject string, handler func(data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// HandleRequest serves an RPC subject. The handler's return value is sent
// back as the reply. Queue-group subscription spreads requests across
// service instances.
func (c *Client) HandleRequest(subject, queue string, handler func(data []byte) []byte) error {
	sub, err := c.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		reply := handler(msg.Data)
		if err := msg.Respond(reply); err != nil {
			log.Printf("[nats] respond %s: %v", subject, err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats handle %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// Request performs a request/reply call with the given timeout.
func (c *Client) Request(subject string, data []byte, timeout time.Duration) ([]byte, error) {
	msg, err := c.conn.Request(subject, data, timeout)
	if err != nil {
		return nil, fmt.Errorf("nats request %s: %w", subject, err)
	}
	return msg.Data, nil
}

// PublishChatEvent publishes data to the chat.events.<chatID> subject.
func (c *Client) PublishChatEvent(chatID int64, data []byte) error {
	return c.Publish(fmt.Sprintf("%s.%d", SubjectChatEvents, chatID), data)
}

// SubscribeChatEvents subscribes to a chat's event subject.
func (c *Client) SubscribeChatEvents(chatID int64, handler func(data []byte)) error {
	return c.Subscribe(fmt.Sprintf("%s.%d", SubjectChatEvents, chatID), handler)
}

// PublishUserNotify publishes data to the user.notify.<userID> subject.
func (c *Client) PublishUserNotify(userID string, data []byte) error {
	return c.Publish(SubjectUserNotify+"."+userID, data)
}

// PublishModeration publishes data to the moderation events subject.
func (c *Client) PublishModeration(data []byte) error {
	return c.Publish(SubjectModeration, data)
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}
