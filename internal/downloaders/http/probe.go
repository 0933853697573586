package rangehttp

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tanq16/yandl/internal/utils"
)

type fileInfo struct {
	Size           int64
	FileName       string
	RangeSupported bool
}

func probeSize(ctx context.Context, client utils.HTTPDoer, link string) (int64, error) {
	info, err := getFileInfo(ctx, client, link)
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

// getFileInfo asks with HEAD first. Servers that answer HEAD without a length
// are asked for the first byte and the total is read from Content-Range.
func getFileInfo(ctx context.Context, client utils.HTTPDoer, link string) (fileInfo, error) {
	var info fileInfo
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, nil)
	if err != nil {
		return info, fmt.Errorf("error creating HEAD request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return info, fmt.Errorf("error checking URL: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return info, fmt.Errorf("URL not found (404)")
	}
	if resp.StatusCode < 400 {
		info.FileName = fileNameFromDisposition(resp.Header.Get("Content-Disposition"))
		info.RangeSupported = resp.Header.Get("Accept-Ranges") == "bytes"
		if resp.ContentLength > 0 {
			info.Size = resp.ContentLength
			return info, nil
		}
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return info, fmt.Errorf("error creating GET request: %w", err)
	}
	req.Header.Set("Range", "bytes=0-0")
	resp, err = client.Do(req)
	if err != nil {
		return info, fmt.Errorf("error probing size: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1))
	if info.FileName == "" {
		info.FileName = fileNameFromDisposition(resp.Header.Get("Content-Disposition"))
	}
	switch resp.StatusCode {
	case http.StatusPartialContent:
		_, _, total, err := ParseContentRange(resp.Header.Get("Content-Range"))
		if err != nil || total <= 0 {
			return info, ErrSizeUnknown
		}
		info.Size, info.RangeSupported = total, true
	case http.StatusOK:
		if resp.ContentLength <= 0 {
			return info, ErrSizeUnknown
		}
		info.Size, info.RangeSupported = resp.ContentLength, false
	default:
		return info, fmt.Errorf("server returned error: %d", resp.StatusCode)
	}
	return info, nil
}

// ParseContentRange reads "bytes start-end/total"; total is -1 for "*".
func ParseContentRange(header string) (start, end, total int64, err error) {
	header = strings.TrimPrefix(strings.TrimSpace(header), "bytes ")
	span, size, found := strings.Cut(header, "/")
	if !found {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}
	first, last, found := strings.Cut(span, "-")
	if !found {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}
	if start, err = strconv.ParseInt(first, 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid start byte: %w", err)
	}
	if end, err = strconv.ParseInt(last, 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid end byte: %w", err)
	}
	if size == "*" {
		return start, end, -1, nil
	}
	if total, err = strconv.ParseInt(size, 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid total bytes: %w", err)
	}
	return start, end, total, nil
}

func fileNameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	if fn := params["filename"]; fn != "" {
		return utils.SanitizeFileName(fn)
	}
	if fn, ok := strings.CutPrefix(params["filename*"], "UTF-8''"); ok {
		if unescaped, err := url.PathUnescape(fn); err == nil {
			return utils.SanitizeFileName(unescaped)
		}
	}
	return ""
}
