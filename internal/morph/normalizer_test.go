package morph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucentpay/sift/internal/lexicon"
	"github.com/lucentpay/sift/internal/model"
	"github.com/lucentpay/sift/internal/tagger"
)

// fakeOracle serves canned analyses and counts calls.
type fakeOracle struct {
	analyses map[string]Analysis
	calls    int
}

func (f *fakeOracle) Analyze(_ context.Context, tok string, _ model.Language) (Analysis, error) {
	f.calls++
	if a, ok := f.analyses[tok]; ok {
		return a, nil
	}
	return Analysis{}, ErrUnavailable
}

func tagWord(text string, role model.Role, script model.Script) tagger.Tagged {
	return tagger.Tagged{Trace: model.TokenTrace{
		Token:      model.Token{Text: text, Script: script},
		Role:       role,
		OutputText: text,
	}}
}

func TestNominativeConversionViaOracle(t *testing.T) {
	oracle := &fakeOracle{analyses: map[string]Analysis{
		"Ивану":   {Lemma: "иван", Case: CaseDative, Gender: GenderMasculine, Confidence: 0.98},
		"Петрову": {Lemma: "петров", Case: CaseDative, Gender: GenderMasculine, Confidence: 0.95},
	}}
	n := New(oracle, lexicon.Default(), 0, 0)

	in := []tagger.Tagged{
		tagWord("Ивану", model.RoleGiven, model.ScriptCyrillic),
		tagWord("Петрову", model.RoleSurname, model.ScriptCyrillic),
	}
	got := n.Normalize(context.Background(), model.LangRU, in)

	require.Len(t, got, 2)
	assert.Equal(t, "Иван", got[0].Trace.OutputText)
	assert.Equal(t, "Петров", got[1].Trace.OutputText)
	// Input slice untouched.
	assert.Equal(t, "Ивану", in[0].Trace.OutputText)
}

func TestDiminutiveResolution(t *testing.T) {
	n := New(NoopOracle{}, lexicon.Default(), 0, 0)

	in := []tagger.Tagged{tagWord("Саша", model.RoleGiven, model.ScriptCyrillic)}
	got := n.Normalize(context.Background(), model.LangRU, in)

	assert.Equal(t, "Александр", got[0].Trace.OutputText)
	assert.Equal(t, NoteDiminutive, got[0].Trace.MorphNotes)
}

func TestDiminutiveOnlyForGiven(t *testing.T) {
	// "Саша" as a surname must not be rewritten to Александр.
	n := New(NoopOracle{}, lexicon.Default(), 0, 0)

	in := []tagger.Tagged{tagWord("Саша", model.RoleSurname, model.ScriptCyrillic)}
	got := n.Normalize(context.Background(), model.LangRU, in)

	assert.Equal(t, "Саша", got[0].Trace.OutputText)
}

func TestFeminineSurnamePreserved(t *testing.T) {
	oracle := &fakeOracle{analyses: map[string]Analysis{
		"Петровой": {Lemma: "петров", Case: CaseDative, Gender: GenderFeminine, Confidence: 0.9},
	}}
	n := New(oracle, lexicon.Default(), 0, 0)

	in := []tagger.Tagged{tagWord("Петровой", model.RoleSurname, model.ScriptCyrillic)}
	got := n.Normalize(context.Background(), model.LangRU, in)

	assert.Equal(t, "Петрова", got[0].Trace.OutputText)
	assert.Equal(t, NoteFemininePreserved, got[0].Trace.MorphNotes)
}

func TestASCIIPassthroughInCyrillicContext(t *testing.T) {
	oracle := &fakeOracle{analyses: map[string]Analysis{}}
	n := New(oracle, lexicon.Default(), 0, 0)

	in := []tagger.Tagged{tagWord("Smith", model.RoleSurname, model.ScriptLatin)}
	got := n.Normalize(context.Background(), model.LangRU, in)

	assert.Equal(t, "Smith", got[0].Trace.OutputText)
	assert.Equal(t, NoteASCIIPassthrough, got[0].Trace.MorphNotes)
	assert.Zero(t, oracle.calls, "oracle must not be asked about ASCII tokens")
}

func TestOracleUnavailableDegrades(t *testing.T) {
	n := New(NoopOracle{}, lexicon.Default(), 0, 0)

	tests := []struct {
		text string
		role model.Role
		want string
		note string
	}{
		{"Петрову", model.RoleSurname, "Петров", NoteSuffixRule},
		{"Ивановичу", model.RolePatronymic, "Иванович", NoteSuffixRule},
		{"Хтоськову", model.RoleSurname, "Хтоськов", NoteSuffixRule},
		{"Шмидт", model.RoleSurname, "Шмидт", NoteOracleUnavailable},
	}
	for _, tt := range tests {
		in := []tagger.Tagged{tagWord(tt.text, tt.role, model.ScriptCyrillic)}
		got := n.Normalize(context.Background(), model.LangRU, in)
		assert.Equal(t, tt.want, got[0].Trace.OutputText, "text %q", tt.text)
		assert.Equal(t, tt.note, got[0].Trace.MorphNotes, "text %q", tt.text)
	}
}

func TestIdempotent(t *testing.T) {
	oracle := &fakeOracle{analyses: map[string]Analysis{
		"Ивану": {Lemma: "иван", Case: CaseDative, Gender: GenderMasculine, Confidence: 0.98},
		"Иван":  {Lemma: "иван", Case: CaseNominative, Gender: GenderMasculine, Confidence: 0.99},
	}}
	n := New(oracle, lexicon.Default(), 0, 0)

	first := n.Normalize(context.Background(), model.LangRU,
		[]tagger.Tagged{tagWord("Ивану", model.RoleGiven, model.ScriptCyrillic)})
	out := first[0].Trace.OutputText

	second := n.Normalize(context.Background(), model.LangRU,
		[]tagger.Tagged{tagWord(out, model.RoleGiven, model.ScriptCyrillic)})
	assert.Equal(t, out, second[0].Trace.OutputText)
}

func TestAnalysisCache(t *testing.T) {
	oracle := &fakeOracle{analyses: map[string]Analysis{
		"Ивану": {Lemma: "иван", Case: CaseDative, Gender: GenderMasculine, Confidence: 0.98},
	}}
	n := New(oracle, lexicon.Default(), 64, time.Minute)
	defer n.Close()

	in := []tagger.Tagged{tagWord("Ивану", model.RoleGiven, model.ScriptCyrillic)}
	first := n.Normalize(context.Background(), model.LangRU, in)
	second := n.Normalize(context.Background(), model.LangRU, in)

	assert.Equal(t, 1, oracle.calls)
	assert.False(t, first[0].Trace.MorphCacheHit)
	assert.True(t, second[0].Trace.MorphCacheHit)
	assert.Equal(t, first[0].Trace.OutputText, second[0].Trace.OutputText)
}
