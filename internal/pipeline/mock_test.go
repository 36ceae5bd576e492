package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/osint-investigator/internal/model"
	"github.com/sells-group/osint-investigator/internal/nlp"
)

// --- Searcher Mock ---

type mockSearcher struct {
	mock.Mock
}

func (m *mockSearcher) Search(ctx context.Context, query string, category model.SourceCategory, limit int) ([]model.RawHit, error) {
	args := m.Called(ctx, query, category, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RawHit), args.Error(1)
}

// --- Generator Mock ---

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

// --- Recognizer Mock ---

type mockRecognizer struct {
	mock.Mock
}

func (m *mockRecognizer) Recognize(ctx context.Context, text string) ([]nlp.Entity, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]nlp.Entity), args.Error(1)
}

func hit(cat model.SourceCategory, title, snippet, link string) model.RawHit {
	return model.RawHit{Title: title, Snippet: snippet, Link: link, SourceCategory: cat}
}

type searcherFunc func(ctx context.Context, query string, category model.SourceCategory, limit int) ([]model.RawHit, error)

func (f searcherFunc) Search(ctx context.Context, query string, category model.SourceCategory, limit int) ([]model.RawHit, error) {
	return f(ctx, query, category, limit)
}
