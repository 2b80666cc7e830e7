// moderatord serves the moderation RPC endpoints over NATS: report filing
// and resolution, appeals, moderator-initiated sanctions, and the dashboard
// queries for the review queue and the moderation log.
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

	"github.com/youthguard/chat-platform/internal/events"
	"github.com/youthguard/chat-platform/internal/metrics"
	"github.com/youthguard/chat-platform/internal/migrations"
	"github.com/youthguard/chat-platform/internal/modlog"
	"github.com/youthguard/chat-platform/internal/notify"
	"github.com/youthguard/chat-platform/internal/protocol"
	"github.com/youthguard/chat-platform/internal/ratelimit"
	"github.com/youthguard/chat-platform/internal/report"
	"github.com/youthguard/chat-platform/internal/sanction"
	"github.com/youthguard/chat-platform/internal/user"
)

const rpcQueue = "moderatord"

const requestTimeout = 5 * time.Second

// queueGaugeInterval is how often the queue depth gauge is refreshed.
const queueGaugeInterval = 30 * time.Second

func main() {
	log.Println("Starting moderatord...")

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
	natsConfig.Name = "moderatord"
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
	reports := report.NewStore(db)
	workflow := report.NewWorkflow(reports, engine, logs, notes, users)
	reportLimit := ratelimit.NewLimiter(rdb).Bind(ratelimit.RuleReport)

	requireModerator := func(ctx context.Context, moderatorID string) []byte {
		actor, err := users.Get(ctx, moderatorID)
		if err != nil {
			return protocol.FailReply(err)
		}
		if !actor.IsModerator() {
			return protocol.ErrReply(protocol.CodePermission, "moderator role required")
		}
		return nil
	}

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

	handle(events.SubjectReportFile, func(ctx context.Context, data []byte) []byte {
		var req protocol.FileReportRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return protocol.ErrReply(protocol.CodeBadRequest, "invalid request")
		}
		if allowed, err := reportLimit.Allow(ctx, req.ReporterID); err == nil && !allowed {
			return protocol.ErrReply(protocol.CodeRateLimited, "zu viele Meldungen")
		}
		r, err := workflow.File(ctx, req.ReporterID, req.ReportedUserID, req.MessageID, req.Reason, req.Detail)
		if err != nil {
			return protocol.FailReply(err)
		}
		return protocol.OKReply(protocol.FileReportReply{ReportID: r.ID})
	})

	handle(events.SubjectReportResolve, func(ctx context.Context, data []byte) []byte {
		var req protocol.ResolveReportRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return protocol.ErrReply(protocol.CodeBadRequest, "invalid request")
		}
		if err := workflow.Resolve(ctx, req.ReportID, req.ModeratorID, req.Decision, req.Detail); err != nil {
			return protocol.FailReply(err)
		}
		return protocol.OKReply(nil)
	})

	handle(events.SubjectReportAppeal, func(ctx context.Context, data []byte) []byte {
		var req protocol.AppealRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return protocol.ErrReply(protocol.CodeBadRequest, "invalid request")
		}
		if err := workflow.Appeal(ctx, req.ReportID, req.ReporterID, req.Reason); err != nil {
			return protocol.FailReply(err)
		}
		return protocol.OKReply(nil)
	})

	handle(events.SubjectModSanction, func(ctx context.Context, data []byte) []byte {
		var req protocol.SanctionRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return protocol.ErrReply(protocol.CodeBadRequest, "invalid request")
		}

		var (
			strikes int
			err     error
		)
		switch req.Action {
		case modlog.ActionStrike:
			strikes, err = engine.Strike(ctx, req.UserID, req.Reason, &req.ModeratorID)
		case modlog.ActionRestrict:
			err = engine.Restrict(ctx, req.UserID, req.Reason, &req.ModeratorID)
		case modlog.ActionBan:
			err = engine.Ban(ctx, req.UserID, req.Reason, &req.ModeratorID)
		case modlog.ActionUnban:
			err = engine.Unban(ctx, req.UserID, req.ModeratorID)
		case modlog.ActionUnrestrict:
			err = engine.Unrestrict(ctx, req.UserID, req.ModeratorID)
		case modlog.ActionResetStrikes:
			err = engine.ResetStrikes(ctx, req.UserID, req.ModeratorID)
		default:
			return protocol.ErrReply(protocol.CodeBadRequest, "unknown sanction action")
		}
		if err != nil {
			return protocol.FailReply(err)
		}
		return protocol.OKReply(protocol.SanctionReply{Strikes: strikes})
	})

	handle(events.SubjectModQueue, func(ctx context.Context, data []byte) []byte {
		var req protocol.QueueRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return protocol.ErrReply(protocol.CodeBadRequest, "invalid request")
		}
		if deny := requireModerator(ctx, req.ModeratorID); deny != nil {
			return deny
		}
		if req.Limit <= 0 || req.Limit > 200 {
			req.Limit = 50
		}
		entries, err := logs.PendingQueue(ctx, req.Limit)
		if err != nil {
			return protocol.FailReply(err)
		}
		reply := protocol.QueueReply{Entries: make([]protocol.QueueEntry, 0, len(entries))}
		for _, e := range entries {
			reply.Entries = append(reply.Entries, protocol.QueueEntry{
				ID:        e.ID,
				Kind:      e.Type,
				ReportID:  e.ReportID,
				Priority:  e.Priority,
				CreatedAt: e.CreatedAt,
			})
		}
		return protocol.OKReply(reply)
	})

	handle(events.SubjectModLog, func(ctx context.Context, data []byte) []byte {
		var req protocol.LogRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return protocol.ErrReply(protocol.CodeBadRequest, "invalid request")
		}
		if deny := requireModerator(ctx, req.ModeratorID); deny != nil {
			return deny
		}
		if req.Limit <= 0 || req.Limit > 200 {
			req.Limit = 50
		}

		var (
			entries []modlog.Entry
			err     error
		)
		if req.UserID != "" {
			entries, err = logs.ForUser(ctx, req.UserID, req.Limit)
		} else {
			entries, err = logs.Recent(ctx, req.Limit)
		}
		if err != nil {
			return protocol.FailReply(err)
		}

		reply := protocol.LogReply{Entries: make([]protocol.LogEntry, 0, len(entries))}
		for _, e := range entries {
			reply.Entries = append(reply.Entries, protocol.LogEntry{
				ID:             e.ID,
				UserID:         e.UserID,
				Action:         e.Action,
				Reason:         e.Reason,
				ModeratorID:    e.ModeratorID,
				StrikesAfter:   e.StrikesAfter,
				Content:        e.Content,
				Classification: e.Classification,
				Score:          e.Score,
				CreatedAt:      e.CreatedAt,
			})
		}
		return protocol.OKReply(reply)
	})

	handle(events.SubjectModReports, func(ctx context.Context, data []byte) []byte {
		var req protocol.QueueRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return protocol.ErrReply(protocol.CodeBadRequest, "invalid request")
		}
		if deny := requireModerator(ctx, req.ModeratorID); deny != nil {
			return deny
		}
		if req.Limit <= 0 || req.Limit > 200 {
			req.Limit = 50
		}
		pending, err := reports.Pending(ctx, req.Limit)
		if err != nil {
			return protocol.FailReply(err)
		}
		counts, err := reports.CountByStatus(ctx)
		if err != nil {
			return protocol.FailReply(err)
		}
		reply := protocol.ReportsReply{
			Reports: make([]protocol.ReportEntry, 0, len(pending)),
			Counts:  counts,
		}
		for _, r := range pending {
			reply.Reports = append(reply.Reports, protocol.ReportEntry{
				ID:              r.ID,
				ReporterID:      r.ReporterID,
				ReportedUserID:  r.ReportedUserID,
				MessageID:       r.MessageID,
				Reason:          r.Reason,
				Detail:          r.Detail,
				Status:          r.Status,
				ActionTaken:     r.ActionTaken,
				RejectionReason: r.RejectionReason,
				Appealed:        r.Appealed,
				AppealReason:    r.AppealReason,
				CreatedAt:       r.CreatedAt,
				ResolvedAt:      r.ResolvedAt,
			})
		}
		return protocol.OKReply(reply)
	})

	// Queue depth gauge.
	stopGauge := make(chan struct{})
	go func() {
		ticker := time.NewTicker(queueGaugeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
				entries, err := logs.PendingQueue(ctx, 1000)
				cancel()
				if err != nil {
					log.Printf("[moderatord] queue depth refresh: %v", err)
					continue
				}
				metrics.QueueDepth.Set(float64(len(entries)))
			case <-stopGauge:
				return
			}
		}
	}()

	// --- Metrics ---
	metricsAddr := ":9092"
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		metricsAddr = v
	}
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: metrics.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()

	log.Printf("moderatord running")
	log.Printf("  postgres_dsn: %s", dsn)
	log.Printf("  redis_addr:   %s", redisAddr)
	log.Printf("  nats_url:     %s", natsConfig.URL)
	log.Printf("  metrics_addr: %s", metricsAddr)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	close(stopGauge)
	natsClient.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics shutdown error: %v", err)
	}
	cancel()
	rdb.Close()
	db.Close()
}
