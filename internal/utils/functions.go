package utils

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

func GetRandomUserAgent() string {
	return userAgents[time.Now().UnixNano()%int64(len(userAgents))]
}

func RenewOutputPath(outputPath string) string {
	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	index := 1
	for {
		outputPath = filepath.Join(dir, fmt.Sprintf("%s-(%d)%s", name, index, ext))
		if _, err := os.Stat(outputPath); os.IsNotExist(err) {
			return outputPath
		}
		index++
	}
}

func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			result[key] = value
		}
	}
	return result
}

// SplitProxyAuth moves credentials embedded in a proxy URL out into separate
// values unless a username was given explicitly.
func SplitProxyAuth(proxyURL, username, password string) (string, string, string) {
	parsed, err := url.Parse(proxyURL)
	if err != nil || parsed.User == nil || username != "" {
		return proxyURL, username, password
	}
	username = parsed.User.Username()
	if p, set := parsed.User.Password(); set {
		password = p
	}
	parsed.User = nil
	return parsed.String(), username, password
}

// SanitizeFileName replaces characters that are invalid on common filesystems
// and trims what Windows refuses at the end of a name.
func SanitizeFileName(name string) string {
	name = unsafeFileChars.ReplaceAllString(name, "")
	name = strings.TrimRight(strings.TrimSpace(name), ". ")
	stem := strings.ToUpper(strings.TrimSuffix(name, filepath.Ext(name)))
	if reservedWindowsNames[stem] {
		name = "_" + name
	}
	if len(name) > 255 {
		ext := filepath.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = name[:255-len(ext)] + ext
	}
	return name
}

// FileNameFromURL returns the unescaped last path element of a URL.
func FileNameFromURL(link string) string {
	parsed, err := url.Parse(link)
	if err != nil {
		return ""
	}
	name := path.Base(parsed.Path)
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	if name == "/" || name == "." {
		return ""
	}
	return name
}

func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func FormatSpeed(bytesPerSecond float64) string {
	if bytesPerSecond <= 0 {
		return "0 B/s"
	}
	return FormatBytes(uint64(bytesPerSecond)) + "/s"
}

func ReadDownloadList(filePath string) ([]DownloadEntry, error) {
	log := GetLogger("config")
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading YAML file: %w", err)
	}
	var entries []DownloadEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("error parsing YAML file: %w", err)
	}
	for i, entry := range entries {
		if entry.URL == "" {
			return nil, fmt.Errorf("missing URL for entry %d", i+1)
		}
	}
	log.Debug().Int("count", len(entries)).Msg("Entries loaded from YAML")
	return entries, nil
}
