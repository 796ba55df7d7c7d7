// Copyright 2026 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package extract

import (
	"context"
	"fmt"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/kadirpekel/sift/pkg/config"
)

// visionPageBatch is the Vision API limit on pages per file annotation
// request.
const visionPageBatch = 5

// VisionOCR recovers text from images and scanned PDF pages through the
// Google Vision document text detector.
type VisionOCR struct {
	client      *vision.ImageAnnotatorClient
	languages   []string
	pageTimeout time.Duration
}

// NewVisionOCR dials Vision using ambient Google application credentials.
func NewVisionOCR(ctx context.Context, cfg *config.OCRConfig) (*VisionOCR, error) {
	client, err := vision.NewImageAnnotatorClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}
	return &VisionOCR{
		client:      client,
		languages:   cfg.Languages,
		pageTimeout: cfg.PageTimeout,
	}, nil
}

// Image runs document text detection on one image, returning the text and
// the mean block confidence in [0,1].
func (v *VisionOCR) Image(ctx context.Context, data []byte) (string, float64, error) {
	ctx, cancel := context.WithTimeout(ctx, v.pageTimeout)
	defer cancel()

	resp, err := v.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image: &visionpb.Image{Content: data},
			Features: []*visionpb.Feature{
				{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
			},
			ImageContext: &visionpb.ImageContext{LanguageHints: v.languages},
		}},
	})
	if err != nil {
		return "", 0, fmt.Errorf("vision annotate failed: %w", err)
	}
	if len(resp.Responses) == 0 {
		return "", 0, fmt.Errorf("vision returned no responses")
	}
	r := resp.Responses[0]
	if r.Error != nil {
		return "", 0, fmt.Errorf("vision error: %s", r.Error.Message)
	}
	if r.FullTextAnnotation == nil || r.FullTextAnnotation.Text == "" {
		return "", 0, fmt.Errorf("no text detected")
	}
	return r.FullTextAnnotation.Text, annotationConfidence(r.FullTextAnnotation), nil
}

// PDF OCRs a scanned document inline, visionPageBatch pages per request.
// The returned slice is indexed by page; pages that produced nothing stay
// empty. Confidence is the mean over pages with text.
func (v *VisionOCR) PDF(ctx context.Context, data []byte, totalPages int) ([]string, float64, error) {
	pages := make([]string, totalPages)
	var confSum float64
	confN := 0

	for start := 1; start <= totalPages; start += visionPageBatch {
		var pageNums []int32
		for p := start; p < start+visionPageBatch && p <= totalPages; p++ {
			pageNums = append(pageNums, int32(p))
		}
		responses, err := v.pdfBatch(ctx, data, pageNums)
		if err != nil {
			return nil, 0, err
		}
		for _, r := range responses {
			page := int(r.GetContext().GetPageNumber())
			if page < 1 || page > totalPages || r.Error != nil {
				continue
			}
			fta := r.FullTextAnnotation
			if fta == nil || fta.Text == "" {
				continue
			}
			pages[page-1] = cleanText(fta.Text)
			confSum += annotationConfidence(fta)
			confN++
		}
	}

	if confN == 0 {
		return nil, 0, fmt.Errorf("ocr detected no text on any page")
	}
	return pages, confSum / float64(confN), nil
}

func (v *VisionOCR) pdfBatch(ctx context.Context, data []byte, pageNums []int32) ([]*visionpb.AnnotateImageResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, v.pageTimeout)
	defer cancel()

	resp, err := v.client.BatchAnnotateFiles(ctx, &visionpb.BatchAnnotateFilesRequest{
		Requests: []*visionpb.AnnotateFileRequest{{
			InputConfig: &visionpb.InputConfig{
				Content:  data,
				MimeType: "application/pdf",
			},
			Features: []*visionpb.Feature{
				{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
			},
			ImageContext: &visionpb.ImageContext{LanguageHints: v.languages},
			Pages:        pageNums,
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("vision file annotate failed: %w", err)
	}
	if len(resp.Responses) == 0 {
		return nil, fmt.Errorf("vision returned no file responses")
	}
	fr := resp.Responses[0]
	if fr.Error != nil {
		return nil, fmt.Errorf("vision error: %s", fr.Error.Message)
	}
	return fr.Responses, nil
}

// Close releases the underlying gRPC connection.
func (v *VisionOCR) Close() error {
	return v.client.Close()
}

func annotationConfidence(fta *visionpb.TextAnnotation) float64 {
	var sum float64
	n := 0
	for _, pg := range fta.GetPages() {
		for _, b := range pg.GetBlocks() {
			sum += float64(b.GetConfidence())
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// ImageExtractor OCRs standalone images.
type ImageExtractor struct {
	ocr *VisionOCR
}

// NewImageExtractor returns the image extractor backed by the given OCR
// client.
func NewImageExtractor(ocr *VisionOCR) *ImageExtractor { return &ImageExtractor{ocr: ocr} }

func (e *ImageExtractor) Name() string { return "image" }

func (e *ImageExtractor) Priority() int { return 80 }

func (e *ImageExtractor) Supports(format Format, _ string) bool { return format == FormatImage }

func (e *ImageExtractor) Extract(ctx context.Context, data []byte, filename string) ([]Item, error) {
	text, conf, err := e.ocr.Image(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("ocr failed for %q: %w", filename, err)
	}
	text = cleanText(text)
	if text == "" {
		return nil, fmt.Errorf("image %q produced no text", filename)
	}
	return []Item{{
		Text:          text,
		Blocks:        ParseBlocks(text),
		TypeHint:      "generic",
		OCRUsed:       true,
		OCRConfidence: conf,
	}}, nil
}

var _ Extractor = (*ImageExtractor)(nil)
