package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/calvin/shopsearch/internal/domain"
	"github.com/calvin/shopsearch/internal/repository"
)

type recordingIndex struct {
	mu        sync.Mutex
	upserts   map[string]*repository.ProductPayload
	deletes   []string
	upsertErr error
}

func newRecordingIndex() *recordingIndex {
	return &recordingIndex{upserts: make(map[string]*repository.ProductPayload)}
}

func (r *recordingIndex) Upsert(ctx context.Context, pointID string, vector []float32, payload *repository.ProductPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return r.upsertErr
	}
	r.upserts[pointID] = payload
	return nil
}

func (r *recordingIndex) Delete(ctx context.Context, pointID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes = append(r.deletes, pointID)
	return nil
}

type recordingEmbedder struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (r *recordingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.texts = append(r.texts, text)
	return []float32{0.5, 0.5}, nil
}

func (r *recordingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.5, 0.5}
	}
	return out, nil
}

type recordingCaptioner struct {
	mu      sync.Mutex
	urls    []string
	caption string
	err     error
}

func (r *recordingCaptioner) CaptionURL(ctx context.Context, url string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.urls = append(r.urls, url)
	return r.caption, nil
}

func TestPointIDsDeterministic(t *testing.T) {
	if TextPointID(42) != TextPointID(42) {
		t.Error("text point ID is not stable for the same product")
	}
	if ImagePointID(42) != ImagePointID(42) {
		t.Error("image point ID is not stable for the same product")
	}
}

func TestPointIDsDistinct(t *testing.T) {
	if TextPointID(1) == TextPointID(2) {
		t.Error("different products share a text point ID")
	}
	if TextPointID(7) == ImagePointID(7) {
		t.Error("text and image point IDs collide for the same product")
	}
}

func TestBuildProductDocument(t *testing.T) {
	p := &domain.Product{
		Title:       "Linen Shirt",
		Description: "Lightweight summer shirt.",
		Tags:        domain.StringArray{"summer", "linen"},
		Vendor:      "Acme",
		ProductType: "Shirts",
	}
	doc := BuildProductDocument(p)
	lines := strings.Split(doc, "\n")
	want := []string{
		"Linen Shirt",
		"Lightweight summer shirt.",
		"summer linen",
		"vendor: Acme",
		"type: Shirts",
	}
	if len(lines) != len(want) {
		t.Fatalf("document has %d lines, want %d:\n%s", len(lines), len(want), doc)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestBuildProductDocumentSkipsEmptyFields(t *testing.T) {
	doc := BuildProductDocument(&domain.Product{Title: "Bare"})
	if doc != "Bare" {
		t.Errorf("document = %q, want title only", doc)
	}
}

func TestIndexProductWritesBothPoints(t *testing.T) {
	textIndex := newRecordingIndex()
	imageIndex := newRecordingIndex()
	embedder := &recordingEmbedder{}
	captioner := &recordingCaptioner{caption: "a folded linen shirt"}
	svc := NewIndexerService(nil, textIndex, imageIndex, embedder, captioner, quietLogger(), nil)

	product := &domain.Product{
		ID:     3,
		Title:  "Linen Shirt",
		Status: domain.ProductStatusActive,
		Price:  39.99,
		Images: []domain.ProductImage{{URL: "https://cdn.example.com/3.jpg", Position: 1}},
	}
	if err := svc.IndexProduct(context.Background(), product); err != nil {
		t.Fatalf("IndexProduct failed: %v", err)
	}

	payload, ok := textIndex.upserts[TextPointID(3)]
	if !ok {
		t.Fatal("text point was not written")
	}
	if payload.ProductID != 3 || payload.Title != "Linen Shirt" {
		t.Errorf("unexpected text payload: %+v", payload)
	}
	if _, ok := imageIndex.upserts[ImagePointID(3)]; !ok {
		t.Error("image point was not written")
	}
	if len(captioner.urls) != 1 || captioner.urls[0] != "https://cdn.example.com/3.jpg" {
		t.Errorf("captioner saw %v, want the primary image URL", captioner.urls)
	}
}

func TestIndexProductAbsorbsImageFailure(t *testing.T) {
	textIndex := newRecordingIndex()
	imageIndex := newRecordingIndex()
	embedder := &recordingEmbedder{}
	captioner := &recordingCaptioner{err: errors.New("vision backend down")}
	svc := NewIndexerService(nil, textIndex, imageIndex, embedder, captioner, quietLogger(), nil)

	product := &domain.Product{
		ID:     4,
		Title:  "Wool Hat",
		Status: domain.ProductStatusActive,
		Images: []domain.ProductImage{{URL: "https://cdn.example.com/4.jpg", Position: 1}},
	}
	if err := svc.IndexProduct(context.Background(), product); err != nil {
		t.Fatalf("image failure should not fail indexing: %v", err)
	}
	if _, ok := textIndex.upserts[TextPointID(4)]; !ok {
		t.Error("text point was not written")
	}
	if len(imageIndex.upserts) != 0 {
		t.Error("image point written despite caption failure")
	}
}

func TestIndexProductWithoutImageClearsStalePoint(t *testing.T) {
	textIndex := newRecordingIndex()
	imageIndex := newRecordingIndex()
	svc := NewIndexerService(nil, textIndex, imageIndex, &recordingEmbedder{}, &recordingCaptioner{}, quietLogger(), nil)

	product := &domain.Product{ID: 5, Title: "No Photo", Status: domain.ProductStatusActive}
	if err := svc.IndexProduct(context.Background(), product); err != nil {
		t.Fatalf("IndexProduct failed: %v", err)
	}
	if len(imageIndex.deletes) != 1 || imageIndex.deletes[0] != ImagePointID(5) {
		t.Errorf("stale image point not deleted: %v", imageIndex.deletes)
	}
}

func TestIndexProductRemovesInactive(t *testing.T) {
	textIndex := newRecordingIndex()
	imageIndex := newRecordingIndex()
	embedder := &recordingEmbedder{}
	svc := NewIndexerService(nil, textIndex, imageIndex, embedder, &recordingCaptioner{}, quietLogger(), nil)

	product := &domain.Product{ID: 6, Title: "Retired", Status: domain.ProductStatusArchived}
	if err := svc.IndexProduct(context.Background(), product); err != nil {
		t.Fatalf("IndexProduct failed: %v", err)
	}
	if len(embedder.texts) != 0 {
		t.Error("inactive product should not be embedded")
	}
	if len(textIndex.deletes) != 1 || textIndex.deletes[0] != TextPointID(6) {
		t.Errorf("text point not removed: %v", textIndex.deletes)
	}
	if len(imageIndex.deletes) != 1 || imageIndex.deletes[0] != ImagePointID(6) {
		t.Errorf("image point not removed: %v", imageIndex.deletes)
	}
}
