package main

import (
	"context"
	"io"
	"os"

	"github.com/pilab-dev/shadow-auth/cmd/authctl/cmd"
	"github.com/pilab-dev/shadow-auth/tracing"
	"github.com/rs/zerolog"
)

func main() {
	// Spans are only useful when debugging the CLI itself.
	var spans io.Writer = io.Discard
	if os.Getenv("AUTHCTL_TRACE") != "" {
		spans = os.Stderr
	}

	tp, err := tracing.InitTracerProvider("shadow-auth-authctl", spans)
	if err != nil {
		logger := zerolog.New(os.Stderr)
		logger.Fatal().Err(err).Msg("Failed to initialize TracerProvider")
	}
	defer func() {
		_ = tp.Shutdown(context.Background())
	}()

	os.Exit(cmd.Execute())
}
