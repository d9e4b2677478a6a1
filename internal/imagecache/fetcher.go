// internal/imagecache/fetcher.go
package imagecache

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"  // decoder registration
	_ "image/jpeg" // decoder registration
	_ "image/png"  // decoder registration
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// Fetcher loads and decodes one image.
type Fetcher interface {
	Fetch(ctx context.Context, location string) (image.Image, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, location string) (image.Image, error)

func (f FetcherFunc) Fetch(ctx context.Context, location string) (image.Image, error) {
	return f(ctx, location)
}

// DefaultFetcher reads http(s) URLs with Client and everything else
// (file:// URLs and plain paths) from disk.
type DefaultFetcher struct {
	Client *http.Client
}

func (f DefaultFetcher) Fetch(ctx context.Context, location string) (image.Image, error) {
	rc, err := f.open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	img, _, err := image.Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", location, err)
	}
	return img, nil
}

func (f DefaultFetcher) open(ctx context.Context, location string) (io.ReadCloser, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return nil, err
		}
		client := f.Client
		if client == nil {
			client = http.DefaultClient
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("get %s: %s", location, resp.Status)
		}
		return resp.Body, nil
	}
	path := location
	if strings.HasPrefix(location, "file://") {
		u, err := url.Parse(location)
		if err != nil {
			return nil, err
		}
		path = u.Path
	}
	return os.Open(path)
}
