// chatd serves the chat delivery RPC endpoints over NATS: moderated message
// sending, chat lists, read tracking, typing signals, blocks, and image
// vetting. It owns the content classifier, so every message is scored
// in-process before it touches the database.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/youthguard/chat-platform/internal/chat"
	"github.com/youthguard/chat-platform/internal/classifier"
	"github.com/youthguard/chat-platform/internal/events"
	"github.com/youthguard/chat-platform/internal/imagecheck"
	"github.com/youthguard/chat-platform/internal/metrics"
	"github.com/youthguard/chat-platform/internal/migrations"
	"github.com/youthguard/chat-platform/internal/modlog"
	"github.com/youthguard/chat-platform/internal/notify"
	"github.com/youthguard/chat-platform/internal/protocol"
	"github.com/youthguard/chat-platform/internal/ratelimit"
	"github.com/youthguard/chat-platform/internal/sanction"
	"github.com/youthguard/chat-platform/internal/user"
)

const rpcQueue = "chatd"

// requestTimeout bounds each RPC handler's database work.
const requestTimeout = 5 * time.Second

func main() {
	log.Println("Starting chatd...")

	// --- Postgres ---
	dsn := "postgres://localhost/chatplatform?sslmode=disable"
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		dsn = v
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("failed to open Postgres: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(ctx); err != nil {
		cancel()
		log.Fatalf("failed to connect to Postgres: %v", err)
	}
	cancel()

	if err := migrations.Run(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	// --- Redis ---
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	// --- NATS ---
	natsConfig := events.DefaultConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsConfig.Name = "chatd"
	natsClient, err := events.Connect(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// --- Wiring ---
	users := user.NewStore(db)
	logs := modlog.NewStore(db)
	notes := notify.NewStore(db)
	sink := events.NewSink(natsClient)
	engine := sanction.NewEngine(users, logs, notes, sink)

	limiter := ratelimit.NewLimiter(rdb)
	chatStore := chat.NewStore(db)
	typing := chat.NewTypingState(rdb)
	chatSvc := chat.NewService(chatStore, users, limiter.Bind(ratelimit.RuleMessage),
		classifier.New(), logs, engine, typing, sink)

	vetter := imagecheck.NewVetter(imagecheck.NewStore(db), nil)
	imageLimit := limiter.Bind(ratelimit.RuleImage)

	handle := func(subject string, handler func(ctx context.Context, data []byte) []byte) {
		err := natsClient.HandleRequest(subject, rpcQueue, func(data []byte) []byte {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()
			return handler(ctx, data)
		})
		if err != nil {
			log.Fatalf("failed to subscribe to %s: %v", subject, err)
		}
	}

	handle(events.SubjectChatSend, func(ctx context.Context, data []byte) []byte {
		var req protocol.SendMessageRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return protocol.ErrReply(protocol.CodeBadRequest, "invalid request")
		}
		m, err := chatSvc.Send(ctx, req.SenderID, req.RecipientID, req.Content)
		if err != nil {
			return protocol.FailReply(err)
		}
		return protocol.OKReply(protocol.SendMessageReply{
			MessageID: m.ID,
			ChatID:    m.ChatID,
			CreatedAt: m.CreatedAt,
		})
	})

	handle(events.SubjectChatHistory, func(ctx context.Context, data []byte) []byte {
		var req protocol.HistoryRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return protocol.ErrReply(protocol.CodeBadRequest, "invalid request")
		}
		if req.Limit <= 0 || req.Limit > 100 {
			req.Limit = 50
		}
		msgs, err := chatSvc.History(ctx, req.ChatID, req.UserID, req.Limit, req.BeforeID)
		if err != nil {
			return protocol.FailReply(err)
		}
		reply := protocol.HistoryReply{Messages: make([]protocol.HistoryMessage, 0, len(msgs))}
		for _, m := range msgs {
			reply.Messages = append(reply.Messages, protocol.HistoryMessage{
				ID:        m.ID,
				SenderID:  m.SenderID,
				Content:   m.Content,
				Deleted:   m.Deleted,
				ReadAt:    m.ReadAt,
				CreatedAt: m.CreatedAt,
			})
		}
		return protocol.OKReply(reply)
	})

	handle(events.SubjectChatList, func(ctx context.Context, data []byte) []byte {
		var req protocol.ChatListRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return protocol.ErrReply(protocol.CodeBadRequest, "invalid request")
		}
		if req.Limit <= 0 || req.Limit > 100 {
			req.Limit = 50
		}
		chats, err := chatSvc.Chats(ctx, req.UserID, req.Limit)
		if err != nil {
			return protocol.FailReply(err)
		}
		total, err := chatSvc.TotalUnread(ctx, req.UserID)
		if err != nil {
			return protocol.FailReply(err)
		}
		reply := protocol.ChatListReply{
			Chats:       make([]protocol.ChatListEntry, 0, len(chats)),
			TotalUnread: total,
		}
		for _, c := range chats {
			reply.Chats = append(reply.Chats, protocol.ChatListEntry{
				ChatID:      c.ChatID,
				PartnerID:   c.PartnerID,
				PartnerName: c.PartnerName,
				LastMessage: c.LastMessage,
				Unread:      c.Unread,
				UpdatedAt:   c.UpdatedAt,
			})
		}
		return protocol.OKReply(reply)
	})

	handle(events.SubjectChatMarkRead, func(ctx context.Context, data []byte) []byte {
		var req protocol.MarkReadRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return protocol.ErrReply(protocol.CodeBadRequest, "invalid request")
		}
		if err := chatSvc.MarkRead(ctx, req.MessageID, req.UserID); err != nil {
			return protocol.FailReply(err)
		}
		return protocol.OKReply(nil)
	})

	handle(events.SubjectChatReadAll, func(ctx context.Context, data []byte) []byte {
		var req protocol.MarkChatReadRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return protocol.ErrReply(protocol.CodeBadRequest, "invalid request")
		}
		if err := chatSvc.MarkChatRead(ctx, req.ChatID, req.UserID); err != nil {
			return protocol.FailReply(err)
		}
		return protocol.OKReply(nil)
	})

	handle(events.SubjectChatTyping, func(ctx context.Context, data []byte) []byte {
		var req protocol.TypingRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return protocol.ErrReply(protocol.CodeBadRequest, "invalid request")
		}
		if err := chatSvc.SetTyping(ctx, req.ChatID, req.UserID); err != nil {
			return protocol.FailReply(err)
		}
		return protocol.OKReply(nil)
	})

	handle(events.SubjectChatDelete, func(ctx context.Context, data []byte) []byte {
		var req protocol.DeleteMessageRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return protocol.ErrReply(protocol.CodeBadRequest, "invalid request")
		}
		if err := chatSvc.DeleteMessage(ctx, req.MessageID, req.UserID); err != nil {
			return protocol.FailReply(err)
		}
		return protocol.OKReply(nil)
	})

	handle(events.SubjectUserBlock, func(ctx context.Context, data []byte) []byte {
		var req protocol.BlockRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return protocol.ErrReply(protocol.CodeBadRequest, "invalid request")
		}
		if err := users.Block(ctx, req.UserID, req.TargetID); err != nil {
			return protocol.FailReply(err)
		}
		return protocol.OKReply(nil)
	})

	handle(events.SubjectUserUnblock, func(ctx context.Context, data []byte) []byte {
		var req protocol.BlockRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return protocol.ErrReply(protocol.CodeBadRequest, "invalid request")
		}
		if err := users.Unblock(ctx, req.UserID, req.TargetID); err != nil {
			return protocol.FailReply(err)
		}
		return protocol.OKReply(nil)
	})

	handle(events.SubjectImageVet, func(ctx context.Context, data []byte) []byte {
		var req protocol.VetImageRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return protocol.ErrReply(protocol.CodeBadRequest, "invalid request")
		}
		if len(req.Data) == 0 {
			return protocol.ErrReply(protocol.CodeBadRequest, "empty image")
		}
		if allowed, err := imageLimit.Allow(ctx, req.UserID); err == nil && !allowed {
			return protocol.ErrReply(protocol.CodeRateLimited, "zu viele Uploads")
		}
		res := vetter.Vet(ctx, req.Data, req.UserID)
		return protocol.OKReply(protocol.VetImageReply{Allowed: res.Allowed, Reason: res.Reason})
	})

	// --- Metrics ---
	metricsAddr := ":9091"
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		metricsAddr = v
	}
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: metrics.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()

	log.Printf("chatd running")
	log.Printf("  postgres_dsn: %s", dsn)
	log.Printf("  redis_addr:   %s", redisAddr)
	log.Printf("  nats_url:     %s", natsConfig.URL)
	log.Printf("  metrics_addr: %s", metricsAddr)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	natsClient.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics shutdown error: %v", err)
	}
	cancel()
	rdb.Close()
	db.Close()
}
