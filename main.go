package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
)

var version = "dev"

func newLogger() zerolog.Logger {
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, NoColor: false, TimeFormat: time.RFC3339}
	consoleWriter.TimeFormat = "[" + time.RFC3339 + "]"
	consoleWriter.PartsOrder = []string{
		zerolog.TimestampFieldName,
		zerolog.LevelFieldName,
		zerolog.CallerFieldName,
		zerolog.MessageFieldName,
	}

	logger := zerolog.New(consoleWriter).
		With().Timestamp().Logger()

	level := zerolog.InfoLevel
	envLevel, ok := os.LookupEnv("LOG_LEVEL")
	if ok {
		parsed, err := zerolog.ParseLevel(envLevel)
		if err != nil {
			logger.Warn().Err(err).Msg("could not parse environment variable LOG_LEVEL")
			return logger
		}
		level = parsed
	}

	return logger.Level(level)
}

func main() {
	args := Command{}
	cli := kong.Parse(&args,
		kong.Name("stockvault"),
		kong.Description("Inventory backup and restore service"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignals(cancel)

	logger := newLogger()

	var err error
	switch cli.Command() {
	case "version":
		fmt.Println("stockvault", version)
		return
	case "backup":
		err = backupCommand(ctx, args, logger)
	case "restore":
		err = restoreCommand(ctx, args, logger)
	case "list":
		err = listCommand(ctx, args, logger)
	case "validate":
		err = validateCommand(ctx, args, logger)
	case "delete":
		err = deleteCommand(ctx, args, logger)
	case "clean":
		err = cleanCommand(ctx, args, logger)
	case "health":
		err = healthCommand(ctx, args, logger)
	case "daemon":
		err = daemonCommand(ctx, args, logger)
	default:
		panic(cli.Command())
	}

	if err != nil {
		logger.Error().Err(err).Str("command", cli.Command()).Msg("command failed")
		cli.Exit(1)
	}
}

func setupSignals(onSignal func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		onSignal()
	}()
}
