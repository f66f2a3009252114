package translate

import "context"

// mockTranslator passes text through unchanged.
type mockTranslator struct{}

func NewMockTranslator() Translator {
	return &mockTranslator{}
}

func (m *mockTranslator) Translate(_ context.Context, text, _, _ string) (string, error) {
	return text, nil
}
