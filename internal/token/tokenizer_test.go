package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucentpay/sift/internal/cache"
	"github.com/lucentpay/sift/internal/model"
)

func texts(tokens []model.Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Text
	}
	return out
}

func TestTokenizeEmpty(t *testing.T) {
	tk := New(nil)
	for _, input := range []string{"", "   ", "\t\n "} {
		got, _ := tk.Tokenize(model.LangRU, input, DefaultFlags)
		assert.Empty(t, got, "input %q", input)
	}
}

func TestInitialsCollapse(t *testing.T) {
	tk := New(nil)

	got, _ := tk.Tokenize(model.LangRU, "И.. И. Петров", DefaultFlags)
	assert.Equal(t, []string{"И.", "И.", "Петров"}, texts(got))
}

func TestHyphenAndApostropheStayInside(t *testing.T) {
	tk := New(nil)

	tests := []struct {
		input string
		want  []string
	}{
		{"Петров-Сидоров", []string{"Петров-Сидоров"}},
		{"O'Connor", []string{"O'Connor"}},
		{"Жанна д’Арк", []string{"Жанна", "д’Арк"}},
		{"пять - шесть", []string{"пять", "-", "шесть"}},
	}
	for _, tt := range tests {
		got, _ := tk.Tokenize(model.LangAuto, tt.input, DefaultFlags)
		assert.Equal(t, tt.want, texts(got), "input %q", tt.input)
	}
}

func TestClassification(t *testing.T) {
	tk := New(nil)

	got, _ := tk.Tokenize(model.LangRU, "Оплата ТОВ «ПРИВАТБАНК» 1500", DefaultFlags)
	require.Len(t, got, 6)

	assert.Equal(t, model.ScriptCyrillic, got[0].Script)
	assert.Equal(t, "«", got[2].Text)
	assert.True(t, got[2].IsPunct)
	assert.Equal(t, "ПРИВАТБАНК", got[3].Text)
	assert.True(t, got[5].IsDigit)
	assert.Equal(t, "1500", got[5].Text)
}

func TestOffsetsMatchText(t *testing.T) {
	tk := New(nil)

	input := "Иван Петров LLC"
	got, _ := tk.Tokenize(model.LangAuto, input, 0)
	for _, tok := range got {
		assert.Equal(t, tok.Text, input[tok.Start:tok.End])
	}
}

func TestCacheHit(t *testing.T) {
	c := cache.New[[]model.Token](16, time.Minute)
	defer c.Close()
	tk := New(c)

	first, hit := tk.Tokenize(model.LangRU, "Иван Петров", DefaultFlags)
	assert.False(t, hit)
	second, hit := tk.Tokenize(model.LangRU, "Иван Петров", DefaultFlags)
	assert.True(t, hit)
	assert.Equal(t, first, second)

	// Different flags miss the cache.
	_, hit = tk.Tokenize(model.LangRU, "Иван Петров", 0)
	assert.False(t, hit)
}

func TestDetectLanguage(t *testing.T) {
	tk := New(nil)

	tests := []struct {
		input string
		hint  model.Language
		want  model.Language
	}{
		{"Иван Петров", model.LangAuto, model.LangRU},
		{"Платіж Сергій Шевченко", model.LangAuto, model.LangUK},
		{"John Smith payment", model.LangAuto, model.LangEN},
		{"Иван Петров", model.LangUK, model.LangUK}, // hint is trusted
		{"12345 !!!", model.LangAuto, model.LangEN},
	}
	for _, tt := range tests {
		tokens, _ := tk.Tokenize(tt.hint, tt.input, DefaultFlags)
		assert.Equal(t, tt.want, DetectLanguage(tt.hint, tokens), "input %q", tt.input)
	}
}
