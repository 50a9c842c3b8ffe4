package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	goFeedback "github.com/MrEthical07/goFeedback"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// commonFlags are accepted by every leaf command.
type commonFlags struct {
	configPath string
	envFile    string
	logLevel   string
	redisAddr  string
	jsonOut    bool
}

func (f *commonFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "YAML config file")
	fs.StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded before reading GOFEEDBACK_* variables")
	fs.StringVar(&f.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	fs.StringVar(&f.redisAddr, "redis-addr", "", "Redis address for the submission ledger (in-memory when empty)")
	fs.BoolVar(&f.jsonOut, "json", false, "print results as JSON")
}

// env is what a command needs at run time.
type env struct {
	client *goFeedback.Client
	logger *slog.Logger
	out    io.Writer
	json   bool
	close  func()
}

func (f *commonFlags) open(stdout, stderr io.Writer) (*env, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(f.logLevel)); err != nil {
		return nil, fmt.Errorf("%w: --log-level: %v", errUsage, err)
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := loadConfig(f.configPath, f.envFile)
	if err != nil {
		return nil, err
	}

	builder := goFeedback.New().WithConfig(cfg).WithLogger(logger)
	if cfg.Audit.Enabled {
		builder = builder.WithAuditSink(goFeedback.NewSlogSink(logger))
	}
	var rdb *redis.Client
	if f.redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: f.redisAddr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		builder = builder.WithRedis(rdb)
	}

	client, err := builder.Build()
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, fmt.Errorf("build client: %w", err)
	}
	logger.Debug("client ready", "report", fmt.Sprintf("%+v", client.Report()))

	return &env{
		client: client,
		logger: logger,
		out:    stdout,
		json:   f.jsonOut,
		close: func() {
			client.Close()
			if rdb != nil {
				_ = rdb.Close()
			}
		},
	}, nil
}

// loadConfig layers defaults, the YAML file and the environment, in that order.
func loadConfig(path, envFile string) (goFeedback.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return goFeedback.Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := goFeedback.DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return goFeedback.Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return goFeedback.Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	return goFeedback.ApplyEnv(cfg)
}

func readFeedback(path string) (goFeedback.FeedbackData, error) {
	var data goFeedback.FeedbackData
	if strings.TrimSpace(path) == "" {
		return data, fmt.Errorf("%w: --feedback is required", errUsage)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return data, fmt.Errorf("read feedback: %w", err)
	}
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return data, fmt.Errorf("parse feedback %s: %w", path, err)
	}
	return data, nil
}
