package ggrender

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/spf13/afero"
	"github.com/sunshineplan/imgconv"
)

func isURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// loadBody resolves the body image reference to a decoded image.
func (f *Factory) loadBody(ctx context.Context, ref string) (image.Image, error) {
	if ref == "" {
		return nil, fmt.Errorf("no body image")
	}

	var data []byte
	if isURL(ref) {
		resp, err := f.client.R().SetContext(ctx).Get(ref)
		if err != nil {
			return nil, fmt.Errorf("fetch body image: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("fetch body image: %s", resp.Status())
		}
		data = resp.Body()
	} else {
		var err error
		data, err = afero.ReadFile(f.fs, ref)
		if err != nil {
			return nil, fmt.Errorf("read body image: %w", err)
		}
	}

	img, err := imgconv.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode body image: %w", err)
	}
	return img, nil
}
