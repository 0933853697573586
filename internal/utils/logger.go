package utils

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the global logger. A non-empty logFile keeps log
// lines away from the terminal while the live display is drawing.
func InitLogger(debug bool, logFile string) error {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if logFile == "" {
		SetLogOutput(os.Stderr, false)
		return nil
	}
	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	SetLogOutput(f, true)
	return nil
}

func GetLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

func SetLogOutput(w io.Writer, noColor bool) {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.DateTime,
		NoColor:    noColor,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}
