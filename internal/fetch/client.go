// Package fetch resolves tile URLs to decoded bitmaps over HTTP.
package fetch

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"panoview/internal/decode"
)

type Client struct {
	http    *http.Client
	decoder decode.Decoder
	logger  *zap.Logger
}

func New(decoder decode.Decoder, logger *zap.Logger) *Client {
	return &Client{
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		decoder: decoder,
		logger:  logger,
	}
}

// FetchAndDecode downloads one tile and decodes it to RGBA. Network
// transfer and decode are both abandoned when ctx is cancelled.
func (c *Client) FetchAndDecode(ctx context.Context, url string) (*image.RGBA, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build tile request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tile fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tile body: %w", err)
	}

	// The body may have arrived just as the tile scrolled out of view;
	// skip the decode in that case.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bm, err := c.decoder.Decode(data)
	if err != nil {
		return nil, err
	}
	return bm, nil
}
