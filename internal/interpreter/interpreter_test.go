package interpreter

import (
	"testing"

	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/unicode/norm"
)

func TestKeywordInterpreter_DropsShortFragments(t *testing.T) {
	raw := "**Points clés**\n- Dépenses en hausse\n- ok\n- Revenus stables malgré tout"

	in, err := NewKeywordInterpreter().Interpret(domain.KindPatterns, raw)
	require.NoError(t, err)
	require.NotNil(t, in.Patterns)

	assert.Equal(t, []string{"Dépenses en hausse", "Revenus stables malgré tout"}, in.Patterns.KeyPoints)
	assert.Empty(t, in.Patterns.Risks)
	assert.NotNil(t, in.Patterns.Risks)
	assert.NotNil(t, in.Patterns.Opportunities)
	assert.Equal(t, "", in.Patterns.Overview)
}

func TestKeywordInterpreter_NoKeywordsGivesEmptyBuckets(t *testing.T) {
	raws := []string{
		"",
		"Le modèle n'a rien trouvé de particulier.",
		"**Divers**\n- une ligne assez longue pour compter",
		"{\"unexpected\": true}",
	}
	k := NewKeywordInterpreter()

	for _, raw := range raws {
		p, err := k.Interpret(domain.KindPatterns, raw)
		require.NoError(t, err)
		assert.Equal(t, domain.NewPatternInsights(), p.Patterns, "raw=%q", raw)

		tr, err := k.Interpret(domain.KindTrends, raw)
		require.NoError(t, err)
		assert.Equal(t, domain.NewTrendInsights(), tr.Trends, "raw=%q", raw)

		r, err := k.Interpret(domain.KindRecommendations, raw)
		require.NoError(t, err)
		assert.Equal(t, domain.NewRecommendationInsights(), r.Recommendations, "raw=%q", raw)
	}
}

func TestKeywordInterpreter_Patterns(t *testing.T) {
	raw := `Voici mon analyse.

**Aperçu général**
Votre activité est rentable sur la période.
Les charges restent maîtrisées.

**Points clés**
- Le loyer représente 80 % des dépenses
- Revenus concentrés sur un seul client

## Risques
• Dépendance à un client unique • Trésorerie faible en fin de mois

**Opportunités** : - Renégocier le bail commercial`

	in, err := NewKeywordInterpreter().Interpret(domain.KindPatterns, raw)
	require.NoError(t, err)

	p := in.Patterns
	assert.Equal(t, "Votre activité est rentable sur la période.\nLes charges restent maîtrisées.", p.Overview)
	assert.Equal(t, []string{"Le loyer représente 80 % des dépenses", "Revenus concentrés sur un seul client"}, p.KeyPoints)
	assert.Equal(t, []string{"Dépendance à un client unique", "Trésorerie faible en fin de mois"}, p.Risks)
	assert.Equal(t, []string{"Renégocier le bail commercial"}, p.Opportunities)
}

func TestKeywordInterpreter_DecomposedAccents(t *testing.T) {
	raw := norm.NFD.String("**Points clés**\n- Hausse des dépenses de transport")

	in, err := NewKeywordInterpreter().Interpret(domain.KindPatterns, raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hausse des dépenses de transport"}, in.Patterns.KeyPoints)
}

func TestKeywordInterpreter_Trends(t *testing.T) {
	raw := `1. **Tendances principales**
- Les revenus progressent de 20 %
- Les dépenses se stabilisent
2. **Anomalies détectées**
- Paiement inhabituel de 2 000 € en mars
3. **Prévisions**
- Croissance attendue au prochain trimestre
4. **Actions recommandées**
- Constituer une réserve de trésorerie
- rien`

	in, err := NewKeywordInterpreter().Interpret(domain.KindTrends, raw)
	require.NoError(t, err)

	tr := in.Trends
	assert.Equal(t, []string{"Les revenus progressent de 20 %", "Les dépenses se stabilisent"}, tr.MainTrends)
	assert.Equal(t, []string{"Paiement inhabituel de 2 000 € en mars"}, tr.Anomalies)
	assert.Equal(t, []string{"Croissance attendue au prochain trimestre"}, tr.Forecasts)
	assert.Equal(t, []string{"Constituer une réserve de trésorerie"}, tr.RecommendedActions)
}

func TestKeywordInterpreter_Recommendations(t *testing.T) {
	raw := `**Actions prioritaires**
- Relancer les factures impayées (Impact : élevé ; Effort : faible ; Échéance : 2 semaines)
- Revoir les abonnements logiciels
**Impact** : ceci n'est pas un titre de section
**Optimisations**
- Regrouper les achats de fournitures, Impact : moyen, Effort : moyen
**Gestion des risques**
- Souscrire une assurance perte d'exploitation
**Opportunités de croissance**
- Proposer une offre d'abonnement aux clients réguliers`

	in, err := NewKeywordInterpreter().Interpret(domain.KindRecommendations, raw)
	require.NoError(t, err)

	r := in.Recommendations
	require.Len(t, r.PriorityActions, 2)
	assert.Equal(t, domain.Recommendation{
		Text:     "Relancer les factures impayées",
		Impact:   "élevé",
		Effort:   "faible",
		Deadline: "2 semaines",
	}, r.PriorityActions[0])
	// a bold field label is not a section header, it continues the open bullet
	assert.Equal(t, "Revoir les abonnements logiciels", r.PriorityActions[1].Text)
	assert.Equal(t, "ceci n'est pas un titre de section", r.PriorityActions[1].Impact)

	require.Len(t, r.Optimizations, 1)
	assert.Equal(t, "Regrouper les achats de fournitures", r.Optimizations[0].Text)
	assert.Equal(t, "moyen", r.Optimizations[0].Impact)
	assert.Equal(t, "moyen", r.Optimizations[0].Effort)

	require.Len(t, r.RiskManagement, 1)
	assert.Equal(t, "Souscrire une assurance perte d'exploitation", r.RiskManagement[0].Text)

	require.Len(t, r.GrowthOpportunities, 1)
	assert.Equal(t, "Proposer une offre d'abonnement aux clients réguliers", r.GrowthOpportunities[0].Text)
}

func TestKeywordInterpreter_StreamingUnsupported(t *testing.T) {
	_, err := NewKeywordInterpreter().Interpret(domain.KindStreaming, "texte")
	var unsupported *ErrUnsupportedKind
	assert.ErrorAs(t, err, &unsupported)
}

func TestJSONInterpreter(t *testing.T) {
	j := NewJSONInterpreter(NewKeywordInterpreter())

	t.Run("fenced object", func(t *testing.T) {
		raw := "```json\n{\"overview\": \"Activité rentable\", \"key_points\": [\"Loyer élevé sur la période\", \"ok\"], \"risks\": null}\n```"
		in, err := j.Interpret(domain.KindPatterns, raw)
		require.NoError(t, err)
		assert.Equal(t, "Activité rentable", in.Patterns.Overview)
		assert.Equal(t, []string{"Loyer élevé sur la période"}, in.Patterns.KeyPoints)
		assert.NotNil(t, in.Patterns.Risks)
		assert.Empty(t, in.Patterns.Risks)
		assert.NotNil(t, in.Patterns.Opportunities)
	})

	t.Run("recommendation objects", func(t *testing.T) {
		raw := `{"priority_actions": [{"text": "Relancer les impayés", "impact": "élevé", "effort": "faible", "deadline": "1 mois"}]}`
		in, err := j.Interpret(domain.KindRecommendations, raw)
		require.NoError(t, err)
		require.Len(t, in.Recommendations.PriorityActions, 1)
		assert.Equal(t, "1 mois", in.Recommendations.PriorityActions[0].Deadline)
		assert.NotNil(t, in.Recommendations.GrowthOpportunities)
	})

	t.Run("falls back to keywords", func(t *testing.T) {
		in, err := j.Interpret(domain.KindPatterns, "**Risques**\n- Trésorerie tendue en fin de mois")
		require.NoError(t, err)
		assert.Equal(t, []string{"Trésorerie tendue en fin de mois"}, in.Patterns.Risks)
	})

	t.Run("no fallback", func(t *testing.T) {
		in, err := NewJSONInterpreter(nil).Interpret(domain.KindTrends, "pas du json")
		require.NoError(t, err)
		assert.Equal(t, domain.NewTrendInsights(), in.Trends)
	})
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain object", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", "Voici le résultat : {\"a\":1} merci", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanModelJSON(tt.input))
		})
	}
}

func TestKeywordInterpreter_NumberedBoldItems(t *testing.T) {
	t.Run("recommendations", func(t *testing.T) {
		raw := "**Actions prioritaires**\n" +
			"1. **Renégocier le loyer** : Impact : élevé ; Effort : moyen ; Échéance : 3 mois\n" +
			"2. **Relancer les impayés** : Impact : moyen\n" +
			"**Optimisations**\n" +
			"- Regrouper les achats de fournitures"

		in, err := NewKeywordInterpreter().Interpret(domain.KindRecommendations, raw)
		require.NoError(t, err)

		r := in.Recommendations
		require.Len(t, r.PriorityActions, 2)
		assert.Equal(t, domain.Recommendation{
			Text:     "Renégocier le loyer",
			Impact:   "élevé",
			Effort:   "moyen",
			Deadline: "3 mois",
		}, r.PriorityActions[0])
		assert.Equal(t, "Relancer les impayés", r.PriorityActions[1].Text)
		assert.Equal(t, "moyen", r.PriorityActions[1].Impact)

		require.Len(t, r.Optimizations, 1)
		assert.Equal(t, "Regrouper les achats de fournitures", r.Optimizations[0].Text)
	})

	t.Run("keyword in item title stays in the open section", func(t *testing.T) {
		raw := "**Points clés**\n" +
			"1. **Risque de trésorerie** : la marge baisse fortement sur le trimestre\n" +
			"2. **Dépenses fixes** : le loyer pèse 40 % des charges"

		in, err := NewKeywordInterpreter().Interpret(domain.KindPatterns, raw)
		require.NoError(t, err)

		assert.Equal(t, []string{
			"Risque de trésorerie : la marge baisse fortement sur le trimestre",
			"Dépenses fixes : le loyer pèse 40 % des charges",
		}, in.Patterns.KeyPoints)
		assert.Empty(t, in.Patterns.Risks)
	})
}
