package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/0xC9C3/bunny-s3-proxy/internal/api"
	"github.com/0xC9C3/bunny-s3-proxy/internal/bunny"
	"github.com/0xC9C3/bunny-s3-proxy/internal/config"
	"github.com/0xC9C3/bunny-s3-proxy/internal/logging"
	"github.com/0xC9C3/bunny-s3-proxy/internal/multipart"
	"github.com/0xC9C3/bunny-s3-proxy/internal/runtime"
)

func main() {
	app := &cli.App{
		Name:  "bunny-s3-proxy",
		Usage: "S3-compatible gateway in front of a Bunny.net storage zone",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "storage-zone", Aliases: []string{"z"}, EnvVars: []string{"BUNNY_STORAGE_ZONE"}, Required: true, Usage: "Bunny storage zone name, also exposed as the gateway's single S3 bucket"},
			&cli.StringFlag{Name: "access-key", Aliases: []string{"k"}, EnvVars: []string{"BUNNY_ACCESS_KEY"}, Required: true, Usage: "Bunny storage zone access key"},
			&cli.StringFlag{Name: "region", Aliases: []string{"r"}, EnvVars: []string{"BUNNY_REGION"}, Value: string(config.DefaultRegion), Usage: "Bunny storage region code (de, uk, ny, la, sg, se, br, jh, syd)"},
			&cli.StringFlag{Name: "listen-addr", Aliases: []string{"l"}, EnvVars: []string{"LISTEN_ADDR"}, Value: config.DefaultListenAddr, Usage: "TCP address to listen on"},
			&cli.StringFlag{Name: "socket-path", Aliases: []string{"s"}, EnvVars: []string{"SOCKET_PATH"}, Usage: "unix socket path to listen on, instead of listen-addr"},
			&cli.StringFlag{Name: "s3-access-key-id", EnvVars: []string{"S3_ACCESS_KEY_ID"}, Value: config.DefaultS3AccessKeyID, Usage: "access key ID clients must present via SigV4"},
			&cli.StringFlag{Name: "s3-secret-access-key", EnvVars: []string{"S3_SECRET_ACCESS_KEY"}, Value: config.DefaultS3SecretAccessKey, Usage: "secret access key clients must sign with via SigV4"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, EnvVars: []string{"VERBOSE"}, Usage: "log in human-readable text format instead of JSON"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "startup failed:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger := logging.New(logFormat(cfg), os.Stdout)

	shared := bunny.New(cfg)
	uploadClient := func() *bunny.Client { return bunny.NewUploadClient(cfg) }
	engine := multipart.New(shared, uploadClient)

	svc := &api.Service{
		Bunny:           shared,
		Multipart:       engine,
		Zone:            cfg.StorageZone,
		Region:          string(cfg.Region),
		ServiceName:     "s3",
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		ClockSkew:       15 * time.Minute,
		ServiceHost:     hostFromListen(cfg),
		MaxBodyBytes:    0,
		PathLive:        "/livez",
		PathReady:       "/readyz",
		ReadyCheck:      func() error { return nil },
		Now:             time.Now,
		Logger:          logger,
		StartedAt:       time.Now().UTC(),
	}

	srv, err := runtime.New(cfg, svc.Handler(), logger)
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-shutdownCh
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil {
			logger.Error("graceful shutdown failed", "error", shutdownErr)
		}
	}()

	logger.Info("server starting", "zone", cfg.StorageZone, "region", cfg.Region, "addr", cfg.ListenAddr, "socket", cfg.SocketPath)
	if err := srv.Start(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server exited with error: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func loadConfig(c *cli.Context) (config.Config, error) {
	region, err := config.ParseRegion(c.String("region"))
	if err != nil {
		return config.Config{}, err
	}

	cfg := config.Config{
		StorageZone:       c.String("storage-zone"),
		AccessKey:         c.String("access-key"),
		Region:            region,
		ListenAddr:        c.String("listen-addr"),
		SocketPath:        c.String("socket-path"),
		S3AccessKeyID:     c.String("s3-access-key-id"),
		S3SecretAccessKey: c.String("s3-secret-access-key"),
		Verbose:           c.Bool("verbose"),
	}
	if cfg.SocketPath != "" {
		cfg.ListenAddr = ""
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func logFormat(cfg config.Config) string {
	if cfg.Verbose {
		return "text"
	}
	return "json"
}

func hostFromListen(cfg config.Config) string {
	if cfg.SocketPath != "" {
		return "localhost"
	}
	addr := cfg.ListenAddr
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			if i == 0 {
				return "localhost"
			}
			return addr[:i]
		}
	}
	return addr
}
