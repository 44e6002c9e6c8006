package extract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func readPDF(data []byte) (*model.Context, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("reading pdf: %w", err)
	}
	if err := api.ValidateContext(pctx); err != nil {
		return nil, fmt.Errorf("validating pdf: %w", err)
	}
	return pctx, nil
}

// pdfText concatenates the text shown on every page, pages separated by a
// blank line.
func pdfText(ctx context.Context, data []byte) (string, error) {
	pctx, err := readPDF(data)
	if err != nil {
		return "", err
	}

	var out bytes.Buffer
	for page := 1; page <= pctx.PageCount; page++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		r, err := pdfcpu.ExtractPageContent(pctx, page)
		if err != nil {
			return "", fmt.Errorf("reading page %d: %w", page, err)
		}
		if r == nil {
			continue
		}
		stream, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("reading page %d: %w", page, err)
		}
		if out.Len() > 0 {
			out.WriteString("\n\n")
		}
		out.WriteString(contentText(stream))
	}
	return out.String(), nil
}

// pdfImages returns one normalised image per page: the largest raster
// image placed on it. Pages without a raster image are skipped.
func (x *Extractor) pdfImages(ctx context.Context, data []byte) ([]string, error) {
	pctx, err := readPDF(data)
	if err != nil {
		return nil, err
	}

	var pages []string
	for page := 1; page <= pctx.PageCount; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		imgs, err := pdfcpu.ExtractPageImages(pctx, page, false)
		if err != nil {
			return nil, fmt.Errorf("reading images on page %d: %w", page, err)
		}
		img := largestImage(imgs)
		if img == nil {
			x.logger.DebugContext(ctx, "page has no raster image", "page", page)
			continue
		}
		enc, err := encodePNG(fit(img, x.maxDim))
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		pages = append(pages, enc)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no page images found; try text mode")
	}
	return pages, nil
}

func largestImage(imgs map[int]model.Image) image.Image {
	keys := make([]int, 0, len(imgs))
	for k := range imgs {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	var (
		best     image.Image
		bestArea int
	)
	for _, k := range keys {
		decoded, _, err := image.Decode(imgs[k])
		if err != nil {
			continue
		}
		b := decoded.Bounds()
		if area := b.Dx() * b.Dy(); area > bestArea {
			best, bestArea = decoded, area
		}
	}
	return best
}
