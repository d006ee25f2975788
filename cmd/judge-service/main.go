package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"judgecore/internal/common/cache"
	"judgecore/internal/common/db"
	commonmw "judgecore/internal/common/http/middleware"
	"judgecore/internal/common/mq"
	"judgecore/internal/common/storage"
	"judgecore/internal/judge/checker"
	"judgecore/internal/judge/controller"
	"judgecore/internal/judge/language"
	"judgecore/internal/judge/repository"
	"judgecore/internal/judge/sandbox"
	"judgecore/internal/judge/service"
	"judgecore/internal/judge/testdata"
	"judgecore/pkg/utils/logger"
)

const defaultConfigPath = "configs/judge_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "judge service exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		return fmt.Errorf("init database failed: %w", err)
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		return fmt.Errorf("init redis failed: %w", err)
	}
	defer func() {
		_ = redisCache.Close()
	}()

	mqClient, err := mq.NewKafkaQueue(appCfg.Kafka.toMQConfig())
	if err != nil {
		return fmt.Errorf("init kafka failed: %w", err)
	}
	defer func() {
		_ = mqClient.Close()
	}()

	sandboxClient, err := sandbox.NewHTTPClient(appCfg.Sandbox)
	if err != nil {
		return fmt.Errorf("init sandbox client failed: %w", err)
	}
	languages, err := language.NewTable(appCfg.Languages)
	if err != nil {
		return fmt.Errorf("init language table failed: %w", err)
	}
	logger.Info(context.Background(), "language table loaded", zap.Strings("languages", languages.IDs()))

	loader, err := buildDataLoader(appCfg, redisCache)
	if err != nil {
		return err
	}

	submissions := repository.NewSubmissionRepository(mysqlDB, redisCache)
	progressRepo := repository.NewProgressRepository(redisCache, appCfg.Judge.ProgressTTL)
	guard := repository.NewRunGuard(redisCache, appCfg.Judge.RunTokenTTL)
	events := repository.NewMQStatusEventPublisher(mqClient, appCfg.Kafka.FinalTopic)

	progress := service.NewProgressPublisher(progressRepo, 0)
	finalizer := service.NewFinalizer(service.FinalizerConfig{
		Submissions: submissions,
		Progress:    progress,
		Guard:       guard,
		Events:      events,
	})
	runner, err := service.NewRunner(service.RunnerDeps{
		Submissions: submissions,
		Data:        loader,
		Languages:   languages,
		Executor:    sandboxClient,
		Checkers:    checker.NewCompiler(sandboxClient, appCfg.Checker),
		Progress:    progress,
		Finalizer:   finalizer,
		Guard:       guard,
	}, service.RunnerConfig{
		JobTimeout:      appCfg.Judge.JobTimeout,
		CompileCPU:      appCfg.Judge.CompileCPU,
		CompileMemoryMB: appCfg.Judge.CompileMemoryMB,
		ProcLimit:       appCfg.Judge.ProcLimit,
		OutputLimit:     appCfg.Judge.OutputLimit,
	})
	if err != nil {
		return fmt.Errorf("init judge runner failed: %w", err)
	}
	judgeSvc, err := service.NewService(runner, appCfg.Judge.PoolSize)
	if err != nil {
		return fmt.Errorf("init judge service failed: %w", err)
	}

	weightedTopics, err := appCfg.Kafka.weightedTopics()
	if err != nil {
		return err
	}
	limiter := mq.NewTokenLimiter(judgeSvc.PoolSize())
	err = mqClient.SubscribeWeighted(context.Background(), weightedTopics, judgeSvc.HandleMessage, &mq.SubscribeOptions{
		ConsumerGroup:   appCfg.Kafka.ConsumerGroup,
		DeadLetterTopic: appCfg.Kafka.DeadLetter,
		MessageTTL:      appCfg.Kafka.MessageTTL,
	}, limiter)
	if err != nil {
		return fmt.Errorf("subscribe kafka failed: %w", err)
	}

	statusQuery := service.NewStatusQuery(progressRepo, submissions)
	httpServer := buildHTTPServer(appCfg.Server, controller.NewJudgeController(statusQuery, map[string]controller.Pinger{
		"mysql": mysqlDB,
		"redis": redisCache,
		"kafka": mqClient,
	}))
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener failed: %w", err)
	}

	if err := mqClient.Start(); err != nil {
		_ = listener.Close()
		return fmt.Errorf("start kafka consumer failed: %w", err)
	}
	logger.Info(context.Background(), "judge consumer started",
		zap.Int("pool_size", judgeSvc.PoolSize()),
		zap.String("submit_topic", appCfg.Kafka.SubmitTopic),
		zap.String("rejudge_topic", appCfg.Kafka.RejudgeTopic),
	)

	signalCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(signalCtx)
	g.Go(func() error {
		logger.Info(context.Background(), "judge http server started", zap.String("addr", appCfg.Server.Addr))
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server stopped: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info(context.Background(), "shutting down")
		return shutdown(httpServer, mqClient)
	})
	return g.Wait()
}

func buildDataLoader(appCfg *AppConfig, redisCache *cache.RedisCache) (*testdata.Loader, error) {
	if appCfg.MinIO.Endpoint == "" {
		return testdata.NewLoader(appCfg.Judge.DataDir, nil), nil
	}
	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO.MinIOConfig)
	if err != nil {
		return nil, fmt.Errorf("init minio failed: %w", err)
	}
	syncer := testdata.NewPackSyncer(objStorage, redisCache, appCfg.MinIO.Bucket, appCfg.MinIO.LockWait).
		WithLockTTL(appCfg.MinIO.LockTTL)
	return testdata.NewLoader(appCfg.Judge.DataDir, syncer), nil
}

func shutdown(httpServer *http.Server, consumer mq.MessageQueue) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		return httpServer.Shutdown(ctx)
	})
	g.Go(func() error {
		// Stop waits for in-flight judge runs to finalize.
		return consumer.Stop()
	})
	return g.Wait()
}

func buildHTTPServer(cfg ServerConfig, judgeController *controller.JudgeController) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.RequestLogger())

	judgeController.Register(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
