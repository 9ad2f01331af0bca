// Package app assembles the bot: storage, services, background jobs and the
// ops listener, and runs them until the context is cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackslab/mening-nomzodim-backend/internal/config"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/enums"
	"github.com/hackslab/mening-nomzodim-backend/internal/domain/model"
	"github.com/hackslab/mening-nomzodim-backend/internal/infra/aiclient"
	"github.com/hackslab/mening-nomzodim-backend/internal/infra/faceblur"
	tginfra "github.com/hackslab/mening-nomzodim-backend/internal/infra/telegram"
	"github.com/hackslab/mening-nomzodim-backend/internal/jobs/taskposter"
	"github.com/hackslab/mening-nomzodim-backend/internal/jobs/vipwatch"
	"github.com/hackslab/mening-nomzodim-backend/internal/metrics"
	"github.com/hackslab/mening-nomzodim-backend/internal/opsserver"
	pgrepo "github.com/hackslab/mening-nomzodim-backend/internal/repo/postgres"
	redrepo "github.com/hackslab/mening-nomzodim-backend/internal/repo/redis"
	convosvc "github.com/hackslab/mening-nomzodim-backend/internal/services/convo"
	escsvc "github.com/hackslab/mening-nomzodim-backend/internal/services/escalation"
	ledgersvc "github.com/hackslab/mening-nomzodim-backend/internal/services/ledger"
	mediasvc "github.com/hackslab/mening-nomzodim-backend/internal/services/mediaroute"
	modsvc "github.com/hackslab/mening-nomzodim-backend/internal/services/moderation"
	promptsvc "github.com/hackslab/mening-nomzodim-backend/internal/services/prompts"
	readysvc "github.com/hackslab/mening-nomzodim-backend/internal/services/readiness"
	replysvc "github.com/hackslab/mening-nomzodim-backend/internal/services/reply"
	stepssvc "github.com/hackslab/mening-nomzodim-backend/internal/services/steps"
	vipsvc "github.com/hackslab/mening-nomzodim-backend/internal/services/vip"
	"github.com/hackslab/mening-nomzodim-backend/internal/state"
	"github.com/hackslab/mening-nomzodim-backend/migrations"
)

const metricsNamespace = "nomzodim"

// moderationTasks breaks the escalation/moderation construction cycle:
// escalation files tasks through it, and the target is set once the
// moderation service exists.
type moderationTasks struct {
	svc *modsvc.Service
}

func (t *moderationTasks) CreateTask(ctx context.Context, taskType enums.TaskType, userID int64, sessionID string, payload any) (model.AdminTask, error) {
	if t.svc == nil {
		return model.AdminTask{}, fmt.Errorf("moderation service is not wired yet")
	}
	return t.svc.CreateTask(ctx, taskType, userID, sessionID, payload)
}

type App struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	postgres *pgxpool.Pool
	redis    *goredis.Client
	bot      *tginfra.Bot

	profileRepo *pgrepo.ProfileRepo
	messageRepo *pgrepo.MessageRepo

	dialogState state.Store

	engine      *convosvc.Engine
	escalations *escsvc.Service
	moderation  *modsvc.Service
	mediaRouter *mediasvc.Service
	reply       *replysvc.Service

	posterJob *taskposter.Job
	vipJob    *vipwatch.Job
	ops       *opsserver.Server
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pgrepo.Migrate(ctx, pool, migrations.Files); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	redisClient, err := redrepo.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	bot, err := tginfra.NewBot(cfg.Bot.Token, cfg.Bot.PollTimeout, cfg.Bot.SendRate)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}

	aiClient, err := aiclient.New(ctx, aiclient.Config{
		APIKey:          cfg.AI.APIKey,
		Model:           cfg.AI.Model,
		Temperature:     cfg.AI.Temperature,
		MaxOutputTokens: cfg.AI.MaxOutputTokens,
	})
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init ai client: %w", err)
	}

	m := metrics.Registry(metricsNamespace)

	profileRepo := pgrepo.NewProfileRepo(pool)
	orderRepo := pgrepo.NewOrderRepo(pool)
	mediaRepo := pgrepo.NewMediaRepo(pool)
	messageRepo := pgrepo.NewMessageRepo(pool)
	taskRepo := pgrepo.NewTaskRepo(pool)
	vipRepo := pgrepo.NewVipRepo(pool)
	adPostRepo := pgrepo.NewAdPostRepo(pool)
	dialogState := redrepo.NewStateRepo(redisClient)

	stepMachine := stepssvc.NewMachine(profileRepo, orderRepo)
	orderLedger := ledgersvc.NewService(ledgersvc.Dependencies{
		Orders:   orderRepo,
		Profiles: profileRepo,
		Steps:    stepMachine,
	}, ledgersvc.Fees{
		Ad:      cfg.Pricing.AdFee,
		Contact: cfg.Pricing.ContactFee,
		Vip:     cfg.Pricing.VipFee,
	})
	vipService := vipsvc.NewService(vipRepo, cfg.Pricing.VipTerm)
	promptBuilder := promptsvc.NewBuilder(promptsvc.Config{
		Template:   cfg.Reply.SystemPrompt,
		Sentinel:   cfg.Reply.Sentinel,
		AdFee:      cfg.Pricing.AdFee,
		ContactFee: cfg.Pricing.ContactFee,
		VipFee:     cfg.Pricing.VipFee,
	})
	guard := readysvc.NewGuard(pgrepo.NewSchemaProbe(pool))
	if err := ensureMediaStorage(ctx, guard); err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, err
	}

	taskBridge := &moderationTasks{}
	escalationService := escsvc.NewService(escsvc.Dependencies{
		State:    dialogState,
		Steps:    stepMachine,
		Profiles: profileRepo,
		Messages: messageRepo,
		Tasks:    taskBridge,
		Banner:   bot,
	}, cfg.Reply.EscalationKeywords, cfg.Reply.Sentinel, cfg.Bot.PublicChatID, logger)

	moderationService := modsvc.NewService(modsvc.Dependencies{
		Tasks:       taskRepo,
		Orders:      orderLedger,
		AdPosts:     adPostRepo,
		Media:       mediaRepo,
		Profiles:    profileRepo,
		Vip:         vipService,
		Escalations: escalationService,
		Sender:      bot,
	}, modsvc.Chats{
		Public:  cfg.Bot.PublicChatID,
		Vip:     cfg.Bot.VipChatID,
		Archive: cfg.Bot.ArchiveChatID,
		Audit:   cfg.Review.AuditChatID,
	}, m, logger)
	taskBridge.svc = moderationService

	blurClient := faceblur.New(cfg.FaceBlur.URL, cfg.FaceBlur.Timeout, logger)
	mediaRouter := mediasvc.NewService(mediasvc.Dependencies{
		Steps:     stepMachine,
		Orders:    orderLedger,
		Media:     mediaRepo,
		Messages:  messageRepo,
		Tasks:     moderationService,
		Readiness: guard,
		Archiver:  bot,
		Blurrer:   blurClient,
	}, cfg.Bot.ArchiveChatID, m, logger)

	engine := convosvc.NewEngine(stepMachine, orderLedger, convosvc.PaymentDetails{
		CardNumber: cfg.Payment.CardNumber,
		CardHolder: cfg.Payment.CardHolder,
		QREnabled:  cfg.Payment.QREnabled,
	}, logger)

	replyService := replysvc.NewService(replysvc.Dependencies{
		State:       dialogState,
		Steps:       stepMachine,
		Engine:      engine,
		Escalations: escalationService,
		Prompts:     promptBuilder,
		Messages:    messageRepo,
		AI:          aiClient,
		Sender:      bot,
	}, replysvc.Config{
		Delay:            cfg.Reply.DebounceDelay,
		HistoryLimit:     cfg.Reply.HistoryLimit,
		ApologizeOnError: cfg.Reply.ApologizeOnError,
	}, m, logger)

	posterJob := taskposter.New(taskRepo, bot, taskposter.ReviewChats{
		Payment:    cfg.Review.PaymentChatID,
		Publish:    cfg.Review.PublishChatID,
		Escalation: cfg.Review.EscalationChatID,
	}, cfg.Review.BatchSize, m, logger)

	vipJob := vipwatch.New(vipRepo, bot, bot, cfg.Bot.VipChatID, cfg.Vip.ReminderBefore, m, logger)

	ops := opsserver.New(cfg.HTTP, map[string]opsserver.Pinger{
		"postgres": pool.Ping,
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	}, logger)

	return &App{
		cfg:         cfg,
		logger:      logger,
		metrics:     m,
		postgres:    pool,
		redis:       redisClient,
		bot:         bot,
		profileRepo: profileRepo,
		messageRepo: messageRepo,
		dialogState: dialogState,
		engine:      engine,
		escalations: escalationService,
		moderation:  moderationService,
		mediaRouter: mediaRouter,
		reply:       replyService,
		posterJob:   posterJob,
		vipJob:      vipJob,
		ops:         ops,
	}, nil
}

// ensureMediaStorage probes the media schema once at startup. An incomplete
// or unreachable schema refuses to boot instead of surfacing later as
// per-message refusals. The probe result stays cached for the process.
func ensureMediaStorage(ctx context.Context, guard *readysvc.Guard) error {
	if err := guard.Ensure(ctx); err != nil {
		return fmt.Errorf("media storage readiness: %w", err)
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Info("bot app started")

	errCh := make(chan error, 4)
	go func() {
		errCh <- a.bot.Listen(ctx, tginfra.Handlers{
			OnCommand:  a.handleCommand,
			OnText:     a.handleText,
			OnMedia:    a.handleMedia,
			OnCallback: a.handleCallback,
		})
	}()
	go func() {
		errCh <- a.runPosterLoop(ctx)
	}()
	go func() {
		errCh <- a.runVipLoop(ctx)
	}()
	go func() {
		errCh <- a.ops.Run()
	}()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("bot app stopped")
			return nil
		case err := <-errCh:
			if err == nil || errors.Is(err, context.Canceled) {
				continue
			}
			return err
		}
	}
}

// runPosterLoop sweeps pending admin tasks into their review chats. A failed
// sweep is logged and retried on the next tick; only polling failures that
// persist show up as gaps in the review chats.
func (a *App) runPosterLoop(ctx context.Context) error {
	interval := a.cfg.Review.PostInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}

	a.runPosterSweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.runPosterSweep(ctx)
		}
	}
}

func (a *App) runPosterSweep(ctx context.Context) {
	if err := a.posterJob.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("task poster sweep failed", zap.Error(err))
	}
}

func (a *App) runVipLoop(ctx context.Context) error {
	interval := a.cfg.Vip.SweepInterval
	if interval <= 0 {
		interval = time.Hour
	}

	a.runVipSweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.runVipSweep(ctx)
		}
	}
}

func (a *App) runVipSweep(ctx context.Context) {
	if err := a.vipJob.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("vip sweep failed", zap.Error(err))
	}
}

// Close releases everything Run left behind. Armed reply timers are stopped
// first; their buffered fragments survive in redis and get answered after
// the user's next message.
func (a *App) Close() {
	a.reply.Shutdown()

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.ops.Shutdown(shutCtx); err != nil {
		a.logger.Warn("ops server shutdown", zap.Error(err))
	}

	if err := a.redis.Close(); err != nil {
		a.logger.Warn("close redis", zap.Error(err))
	}
	a.postgres.Close()
}
