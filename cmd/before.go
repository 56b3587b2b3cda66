package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/chihqiang/dbxnotify/config"
	"github.com/chihqiang/dbxnotify/pkg/logx"
)

type CliContextValue string

var (
	CliContextValueConfig CliContextValue = "config"
)

// Before 加载配置文件并存入 context
func Before(ctx context.Context, command *cli.Command) (context.Context, error) {
	filename := command.String(FlagConfig)
	conf, err := config.Load(filename)
	if err != nil {
		return ctx, err
	}
	level := logx.ParseLevel(conf.Log.Level)
	logx.SetLevel(level)
	if level == logx.LevelDebug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}
	// 将配置存储在context中，而不是使用全局变量
	return context.WithValue(ctx, CliContextValueConfig, conf), nil
}

func configFrom(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(CliContextValueConfig).(*config.Config)
	if !ok {
		return nil, fmt.Errorf("config not found in context")
	}
	return cfg, nil
}
