package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	_ "go.uber.org/automaxprocs"

	"github.com/lk2023060901/garden-chat-go/application"
	"github.com/lk2023060901/garden-chat-go/internal/chat/audit"
	"github.com/lk2023060901/garden-chat-go/internal/chat/auth"
	"github.com/lk2023060901/garden-chat-go/internal/chat/server"
	"github.com/lk2023060901/garden-chat-go/pkg/log"
	"github.com/lk2023060901/garden-chat-go/pkg/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chatserver: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	app := application.New()
	if err := app.Run(); err != nil {
		return err
	}
	defer log.Sync()

	log.Info("starting chat server", zap.String("version", application.VersionString()))

	var srvCfg server.Config
	if err := app.Config().UnmarshalKey("server", &srvCfg); err != nil {
		return err
	}

	users := make(map[string]string)
	if err := app.Config().UnmarshalKey("users", &users); err != nil {
		return err
	}
	if len(users) == 0 {
		users = auth.DefaultUsers()
		log.Warn("no users configured, using the built-in credential table")
	}

	var auditCfg audit.Config
	if err := app.Config().UnmarshalKey("audit", &auditCfg); err != nil {
		return err
	}

	metrics.Register(prometheus.DefaultRegisterer)

	srv, err := server.New(srvCfg, auth.NewStore(users), audit.NewLogger(auditCfg))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = srv.Serve(ctx)
	log.Info("chat server stopped")
	return err
}
