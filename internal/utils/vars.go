package utils

import (
	"regexp"
	"time"
)

const DefaultBufferSize = 1024 * 1024 * 8 // socket buffers in high-thread mode
const LogFile = ".yandl.log"
const ToolUserAgent = "yandl/1.0"

var (
	DefaultTransferOptions = TransferOptions{
		Workers:      4,
		ChunkSize:    10 * 1024,
		SplitSize:    5 * 1024 * 1024,
		Retries:      3,
		RetryBackoff: 6 * time.Second,
	}
)

// characters rejected by at least one of the common filesystems
var unsafeFileChars = regexp.MustCompile(`[\x00-\x1f\x7f"*/:<>?\\|]+`)

var reservedWindowsNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:135.0) Gecko/20100101 Firefox/135.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:135.0) Gecko/20100101 Firefox/135.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.3 Safari/605.1.15",
	"curl/7.88.1",
	"Wget/1.21.4",
}
