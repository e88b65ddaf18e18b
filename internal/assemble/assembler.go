// Package assemble groups role-tagged, normalized tokens into screening
// entities. A run of name-part tokens forms one person; a legal-form token
// opens an organization run that collects the organization's proper name.
// Context tokens (stopwords, punctuation, amounts) never join an entity but
// also never split one.
package assemble

import (
	"strings"

	"github.com/lucentpay/sift/internal/model"
	"github.com/lucentpay/sift/internal/tagger"
)

// Assembler builds NormalizedEntity records from tagged tokens.
type Assembler struct{}

// New creates an Assembler.
func New() *Assembler {
	return &Assembler{}
}

// Assemble walks the tagged tokens in order and emits zero or more entities.
// Multiple persons in one input (payer and payee) yield multiple records.
func (a *Assembler) Assemble(tagged []tagger.Tagged) []model.NormalizedEntity {
	var entities []model.NormalizedEntity

	var (
		kind    model.EntityKind
		open    bool
		members []tagger.Tagged
	)

	flush := func() {
		if open && len(members) > 0 {
			entities = append(entities, build(kind, members))
		}
		open = false
		members = nil
	}

	for _, tg := range tagged {
		role := tg.Trace.Role
		switch {
		case role == model.RoleStopword:
			// Context only: retained in the request trace, excluded from
			// every entity.
			continue

		case role == model.RoleLegalForm:
			if !open || kind != model.KindOrganization {
				flush()
				kind = model.KindOrganization
				open = true
			}
			members = append(members, tg)

		case tg.Trace.RuleApplied == tagger.RuleOrgMember:
			if open && kind == model.KindOrganization {
				members = append(members, tg)
			}
			// An org member without an open org run means the legal form
			// was consumed by a flushed run; drop rather than invent.

		case role.NamePart():
			if !open || kind != model.KindPerson {
				flush()
				kind = model.KindPerson
				open = true
			}
			members = append(members, tg)

		default: // unknown outside org context splits runs
			flush()
		}
	}
	flush()

	return entities
}

func build(kind model.EntityKind, members []tagger.Tagged) model.NormalizedEntity {
	core := make([]string, 0, len(members))
	trace := make([]model.TokenTrace, 0, len(members))
	for _, m := range members {
		core = append(core, m.Trace.OutputText)
		trace = append(trace, m.Trace)
	}
	return model.NormalizedEntity{
		Kind:           kind,
		CoreTokens:     core,
		NormalizedText: strings.Join(core, " "),
		Confidence:     confidence(kind, members),
		Trace:          trace,
	}
}

// Rule weights for confidence scoring. Lexicon-backed rules score higher
// than suffix patterns, which score higher than positional defaults.
var ruleWeight = map[string]float64{
	tagger.RuleGivenName:     0.95,
	tagger.RuleLegalForm:     0.95,
	tagger.RuleInitial:       0.85,
	tagger.RulePatronymic:    0.85,
	tagger.RuleSurname:       0.80,
	tagger.RulePositionalSur: 0.65,
	tagger.RulePositionalGiv: 0.65,
	tagger.RuleOrgMember:     0.75,
}

// confidence averages rule weights over member tokens, with a small penalty
// when morphology degraded and a bonus for multi-token person names.
func confidence(kind model.EntityKind, members []tagger.Tagged) float64 {
	var sum float64
	degraded := false
	for _, m := range members {
		w, ok := ruleWeight[m.Trace.RuleApplied]
		if !ok {
			w = 0.5
		}
		sum += w
		if m.Trace.MorphNotes == "oracle_unavailable" {
			degraded = true
		}
	}
	c := sum / float64(len(members))

	if kind == model.KindPerson && len(members) >= 2 {
		c += 0.05
	}
	if kind == model.KindOrganization && len(members) == 1 {
		// A bare legal form with no proper name is a weak entity.
		c -= 0.30
	}
	if degraded {
		c -= 0.10
	}

	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return c
}
