package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rushteam/roommatch/config"
	"github.com/rushteam/roommatch/core"
	"github.com/rushteam/roommatch/interaction"
	"github.com/rushteam/roommatch/pkg/logger"
	"github.com/rushteam/roommatch/profile"
	"github.com/rushteam/roommatch/recommend"
	"github.com/rushteam/roommatch/registry"
)

// app 持有一次命令执行所需的全部组件。
type app struct {
	cfg       *config.AppConfig
	store     core.RecommendDataStore
	registry  *registry.Registry
	service   *recommend.Service
	recorder  *interaction.Recorder
	registrar *profile.Registrar
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.AppName, cfg.LogLevel); err != nil {
		return nil, err
	}

	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		return nil, err
	}
	s, err := config.OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	svc, err := recommend.NewService(s, reg, recommend.WithLogger(log.Logger))
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	registrar, err := profile.NewRegistrar(s, reg)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	log.Debug().Str("store", s.Name()).Int("traits", reg.Len()).Msg("app ready")
	return &app{
		cfg:       cfg,
		store:     s,
		registry:  reg,
		service:   svc,
		recorder:  interaction.NewRecorder(s),
		registrar: registrar,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// withApp 为命令创建 app，执行 fn 后关闭存储。
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error().Err(err).Msg("close store")
		}
	}()
	return fn(ctx, a)
}
