package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/irontracks/liveworkout/internal"
	"github.com/irontracks/liveworkout/internal/config"
	"github.com/irontracks/liveworkout/internal/logging"
	"github.com/irontracks/liveworkout/pkg"

	log "github.com/sirupsen/logrus"
)

func main() {
	fmt.Println("starting ...")

	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	flag.Parse()

	log.Warnf("---->> running in [%s] environment", *env)

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		panic(err)
	}

	sentryDSN := os.Getenv("SENTRY_DSN")
	logging.Setup(logging.LoggerSetupParams{
		LogFileName:      cfg.LogsPath,
		LogToStdout:      cfg.LogToStdout,
		LogLevel:         cfg.LogLevel,
		LogFormatJSON:    false,
		Environment:      cfg.Environment,
		SentryEnabled:    cfg.SentryEnabled,
		SentryDSN:        sentryDSN,
		SentryServerName: "liveworkout-service",
	})

	log.Debugf("using port: %d", cfg.Port)
	log.Debugf("using server logs path: [%s]", cfg.LogsPath)

	versionInfo, err := tryGetLastCommitHash()
	if err != nil {
		log.Tracef("failed to get last commit hash / version info: %s", err)
	} else {
		log.Tracef("running version: %s", versionInfo)
	}

	appLoginSecret := os.Getenv("IRONTRACKS_APP_LOGIN_SECRET")
	if appLoginSecret == "" {
		log.Errorf("app login secret not set. use IRONTRACKS_APP_LOGIN_SECRET")
	}

	redisPassword := os.Getenv("IRONTRACKS_REDIS_PASS")
	if redisPassword == "" {
		log.Errorf("redis password not set. use IRONTRACKS_REDIS_PASS")
	}

	finishCommitEndpoint := os.Getenv("IRONTRACKS_FINISH_COMMIT_ENDPOINT")
	if finishCommitEndpoint == "" {
		finishCommitEndpoint = cfg.FinishCommitEndpoint
	}
	if finishCommitEndpoint == "" {
		log.Warnln("finish commit endpoint not set, finished workouts will be saved via direct insert only")
	}

	chOsInterrupt := make(chan os.Signal, 1)
	signal.Notify(chOsInterrupt, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())

	server, err := internal.NewServer(
		ctx,
		internal.NewServerParams{
			Config:               cfg,
			VersionInfo:          versionInfo,
			AppLoginSecret:       appLoginSecret,
			RedisPassword:        redisPassword,
			FinishCommitEndpoint: finishCommitEndpoint,
		},
	)
	if err != nil {
		log.Fatalf("new server: %s", err)
	}

	server.Serve(ctx, cfg.Host, cfg.Port)

	receivedSig := <-chOsInterrupt
	log.Warnf("signal [%s] received, killing everything ...", receivedSig)
	cancel()

	// go to sleep 🥱
	server.GracefulShutdown()
}

// tryGetLastCommitHash will try to get the last commit hash
// assumes that the built main executable is in project root
func tryGetLastCommitHash() (string, error) {
	cmd := exec.Command("/usr/bin/git", "rev-parse", "HEAD")
	stdout, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return pkg.BytesToString(stdout), nil
}
