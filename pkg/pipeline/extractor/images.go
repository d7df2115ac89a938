package extractor

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/brant/roofpipeline/pkg/models"
)

// extractImages pulls embedded JPEG XObjects out of the PDF's stream
// objects (the common case for scanned blueprints and inspection photos)
// and decodes each into both a PNG re-encoding (for the LLM-vision adapter,
// which wants a standard image container) and a grayscale Raster-shaped
// buffer (for the CV path in pkg/cv). PDFs with no embedded raster images
// (pure vector/text blueprints) yield zero images here; downstream
// consumers treat that as "no page imagery available" rather than an error.
func extractImages(raw []byte, maxImages int) []models.ExtractedImage {
	var out []models.ExtractedImage
	for _, m := range streamPattern.FindAllSubmatch(raw, -1) {
		if len(out) >= maxImages {
			break
		}
		dict, payload := m[1], m[2]
		if !bytes.Contains(dict, []byte("/DCTDecode")) {
			continue
		}
		img, err := jpeg.Decode(bytes.NewReader(payload))
		if err != nil {
			continue
		}
		out = append(out, toExtractedImage(img, len(out)))
	}
	return out
}

func toExtractedImage(img image.Image, pageIndex int) models.ExtractedImage {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	gray := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// standard luma weights, 16-bit channel values from RGBA()
			lum := (299*r + 587*g + 114*b) / 1000
			gray[y*w+x] = uint8(lum >> 8)
		}
	}

	var pngBuf bytes.Buffer
	grayImg := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range gray {
		grayImg.Set(i%w, i/w, color.Gray{Y: v})
	}
	_ = png.Encode(&pngBuf, grayImg) // re-encoding failures leave PNGBytes empty, never fatal

	return models.ExtractedImage{
		PageIndex: pageIndex,
		PNGBytes:  pngBuf.Bytes(),
		Gray:      gray,
		Width:     w,
		Height:    h,
	}
}
