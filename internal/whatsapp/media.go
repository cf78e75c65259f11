package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// MaxMediaBytes caps downloads; provider audio and images are far below this.
const MaxMediaBytes = 64 << 20

// MediaInfo is the provider's metadata for an uploaded media object.
type MediaInfo struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	FileSize int64  `json:"file_size"`
}

// MediaFetcher resolves and downloads inbound media.
type MediaFetcher interface {
	FetchMedia(ctx context.Context, mediaID string) (MediaInfo, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// FetchMedia looks up the short-lived download URL for mediaID.
func (c *Client) FetchMedia(ctx context.Context, mediaID string) (MediaInfo, error) {
	var info MediaInfo
	err := c.cfg.Retry.do(ctx, c.sleep, func(int) error {
		raw, err := c.get(ctx, fmt.Sprintf("%s/%s", c.cfg.BaseURL, mediaID))
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &info); err != nil {
			return fmt.Errorf("%w: decode media: %v", ErrPermanent, err)
		}
		return nil
	})
	if err != nil {
		return MediaInfo{}, err
	}
	if info.URL == "" {
		return MediaInfo{}, fmt.Errorf("%w: media %s has no url", ErrPermanent, mediaID)
	}
	return info, nil
}

// Download fetches the media bytes. The URL requires the same bearer token.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	var out []byte
	err := c.cfg.Retry.do(ctx, c.sleep, func(int) error {
		raw, err := c.get(ctx, url)
		if err != nil {
			return err
		}
		out = raw
		return nil
	})
	return out, err
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxMediaBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransient, err)
	}
	if err := classifyStatus(resp.StatusCode, raw); err != nil {
		return nil, err
	}
	if len(raw) > MaxMediaBytes {
		return nil, fmt.Errorf("%w: media exceeds %d bytes", ErrPermanent, MaxMediaBytes)
	}
	return raw, nil
}
