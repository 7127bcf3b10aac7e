package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	logpkg "scenescape-counter/common/logger"
	"scenescape-counter/internal/config"
	"scenescape-counter/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	log, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, "scenescape-counter")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// 启动前注册信号，启动阶段的中断同样走优雅关闭
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, log)
	stop()

	_ = log.Sync()
	os.Exit(code)
}

// run 启动服务并阻塞到 ctx 取消，返回进程退出码
// 启动失败或峰值汇总未能写出时返回 1
func run(ctx context.Context, cfg *config.Config, log *zap.Logger, opts ...service.Option) int {
	log.Info("Starting scenescape-counter",
		zap.String("rest_url", cfg.REST.URL),
		zap.String("mqtt_broker", cfg.MQTT.BrokerURL()),
		zap.String("category", cfg.Counter.TargetCategory),
	)

	svc := service.NewCounterService(cfg, log, opts...)
	if err := svc.Start(ctx); err != nil {
		if !errors.Is(ctx.Err(), context.Canceled) {
			log.Error("Failed to start counter", zap.Error(err))
			return 1
		}
		log.Info("Interrupted during startup", zap.Error(err))
	} else {
		// 等待中断信号
		<-ctx.Done()
		log.Info("Received interrupt, shutting down")
	}

	// 优雅关闭
	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Counter.ShutdownTimeout)
	defer cancel()
	if err := svc.Stop(stopCtx); err != nil {
		log.Error("Error during shutdown", zap.Error(err))
		return 1
	}

	log.Info("Service stopped")
	return 0
}
