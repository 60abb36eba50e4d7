package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"tangled.org/booru.social/booru/internal/config"
)

func main() {
	configureLogging(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), os.Stdout)

	if err := run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("exiting")
	}
}

func run(args []string) error {
	app := &cli.App{
		Name:  "booru-moderation",
		Usage: "moderation workflow engine for the image board",
		Flags: config.Flags(),
		Commands: []*cli.Command{
			serveCmd,
			sweepCmd,
			auditCmd,
			contentCmd,
			rolesCmd,
		},
	}
	return app.Run(args)
}

// configureLogging sets the global zerolog level and output. Level defaults
// to info; format "json" writes JSON lines, anything else pretty console logs.
func configureLogging(level, format string, out io.Writer) {
	switch strings.ToLower(level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if format == "json" {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}
