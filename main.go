package main

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"pdfscribe/cmd"
)

func main() {
	// Environment overrides (PDFSCRIBE_LOG_LEVEL, PDFSCRIBE_PYTHON) may
	// live in a local .env; a missing file is fine.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cmd.Execute()
}
