package storygen

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const fallbackEncoding = "cl100k_base"

// tokenCounter считает токены для моделей, по которым провайдер не вернул usage.
// Энкодер загружается один раз; если загрузка не удалась, используется грубая
// оценка по количеству символов.
type tokenCounter struct {
	model string
	once  sync.Once
	enc   *tiktoken.Tiktoken
}

func newTokenCounter(model string) *tokenCounter {
	return &tokenCounter{model: model}
}

func (t *tokenCounter) load() {
	enc, err := tiktoken.EncodingForModel(t.model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
	}
	if err == nil {
		t.enc = enc
	}
}

// Count возвращает количество токенов в s.
func (t *tokenCounter) Count(s string) int {
	if s == "" {
		return 0
	}
	t.once.Do(t.load)
	if t.enc != nil {
		return len(t.enc.Encode(s, nil, nil))
	}
	return approxTokens(s)
}

// approxTokens: ~4 символа на токен.
func approxTokens(s string) int {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
