package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	hlog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzzerolog "github.com/hertz-contrib/logger/zerolog"
	"github.com/spf13/pflag"

	"resume-search-go/internal/agent"
	"resume-search-go/internal/api/handler"
	"resume-search-go/internal/api/router"
	"resume-search-go/internal/config"
	"resume-search-go/internal/constants"
	"resume-search-go/internal/logger"
	"resume-search-go/internal/parser"
	"resume-search-go/internal/retrieval"
	"resume-search-go/internal/storage"
	"resume-search-go/internal/tracing"
	"resume-search-go/internal/types"
)

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "internal/config/config.yaml", "配置文件路径")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("加载配置失败")
	}

	logger.Init(logger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})
	hlog.SetLogger(hertzzerolog.From(logger.Logger))
	logger.Info().Str("config", configPath).Msg("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Tracing.Enabled {
		shutdownTracing, err := tracing.InitProvider(ctx, tracing.ProviderConfig{
			ServiceName:  cfg.Tracing.ServiceName,
			OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
			SampleRatio:  cfg.Tracing.SampleRatio,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("初始化链路追踪失败")
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := shutdownTracing(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("关闭链路追踪失败")
			}
		}()
	}

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化存储失败")
	}
	defer storageManager.Close()
	logger.Info().Msg("存储服务初始化成功")

	embedder, err := parser.NewAliyunEmbedder(cfg.Aliyun.APIKey, cfg.Aliyun.Embedding)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化Embedder失败")
	}

	vectorStore, err := storage.NewResumeVectorStore(embedder, storageManager.Qdrant)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化向量存储失败")
	}

	llmModel, err := agent.NewAliyunQwenChatModel(cfg.Aliyun.APIKey, cfg.Aliyun.Model, cfg.Aliyun.APIURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化聊天模型失败")
	}

	var pipelineOpts []retrieval.PipelineOption
	if cfg.Reranker.Enabled {
		reranker := retrieval.NewLLMReranker(llmModel, cfg.Reranker.ContentMaxChars)
		pipelineOpts = append(pipelineOpts, retrieval.WithReranker(reranker, cfg.Reranker.OverfetchFactor))
	}

	pipeline, err := retrieval.NewPipeline(
		storageManager.MySQL,
		vectorStore,
		types.HybridSearchConfig{
			VectorWeight:  cfg.HybridSearch.VectorWeight,
			KeywordWeight: cfg.HybridSearch.KeywordWeight,
		},
		pipelineOpts...,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化检索管线失败")
	}
	logger.Info().Bool("reranker", cfg.Reranker.Enabled).Msg("检索管线初始化成功")

	var chatMemory agent.ChatMemory
	if cfg.Chat.UseRedisMemory && storageManager.Redis != nil {
		ttl := config.GetDuration(cfg.Chat.HistoryTTL, constants.DefaultChatHistoryTTL)
		chatMemory, err = agent.NewRedisChatMemory(storageManager.Redis.Client(), cfg.Chat.MaxHistoryTurns, ttl)
		if err != nil {
			logger.Fatal().Err(err).Msg("初始化Redis会话存储失败")
		}
		logger.Info().Msg("使用Redis会话存储")
	} else {
		chatMemory = agent.NewInMemoryChatMemory(cfg.Chat.MaxHistoryTurns)
		logger.Info().Msg("使用进程内会话存储")
	}

	conversationManager, err := agent.NewConversationManager(chatMemory, pipeline, llmModel, cfg.Chat.DefaultTopK)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化对话管理器失败")
	}

	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithExitWaitTime(3*time.Second),
	)
	router.RegisterRoutes(h,
		handler.NewSearchHandler(pipeline),
		handler.NewChatHandler(conversationManager),
		storageManager,
	)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("收到退出信号，开始关闭")
		cancel()
		_ = h.Shutdown(context.Background())
	}()

	logger.Info().Str("address", cfg.Server.Address).Msg("HTTP服务启动")
	h.Spin()
	logger.Info().Msg("服务已退出")
}
