package prompts

import "github.com/dvloznov/finance-insights/internal/domain"

// Section headers requested here must stay in sync with the keyword
// vocabularies in internal/interpreter.

const patternsTemplate = `Tu es un analyste financier expert qui accompagne une petite entreprise française.
Analyse les données financières ci-dessous et identifie les comportements récurrents.

Données de la période :
- Nombre de transactions : {{.Summary.Count}}
- Revenus totaux : {{money .Summary.Revenue}}
- Dépenses totales : {{money .Summary.Expenses}}
- Résultat net : {{money .Summary.NetIncome}}
- Montant moyen par transaction : {{money .Summary.AverageTransaction}}

Répartition par catégorie :
{{range .Summary.ByCategory}}- {{clean .Key}} : {{money .Amount}}
{{end}}
Répartition par mois :
{{range .Summary.ByMonth}}- {{.Key}} : {{money .Amount}}
{{end}}
Axes d'analyse demandés : {{if .FocusAreas}}{{join .FocusAreas}}{{else}}analyse globale{{end}}

{{if jsonOutput}}Réponds en français.
{{else}}Réponds en français, avec exactement les quatre sections suivantes et leurs titres en gras :
**Aperçu général**
Un paragraphe de synthèse.

**Points clés**
- une observation par ligne

**Risques**
- un risque par ligne

**Opportunités**
- une opportunité par ligne
{{end}}`

const trendsTemplate = `Tu es un analyste financier expert qui accompagne une petite entreprise française.
Identifie les tendances de la période courante{{if .Comparison.Previous}} en la comparant à la période précédente{{end}}.

Période courante :
- Nombre de transactions : {{.Comparison.Current.Count}}
- Revenus : {{money .Comparison.Current.Revenue}}
- Dépenses : {{money .Comparison.Current.Expenses}}
- Résultat net : {{money .Comparison.Current.NetIncome}}
{{with .Comparison.Previous}}
Période précédente :
- Nombre de transactions : {{.Count}}
- Revenus : {{money .Revenue}}
- Dépenses : {{money .Expenses}}
- Résultat net : {{money .NetIncome}}

Évolutions :
- Revenus : {{pct $.Comparison.RevenueChangePct}}
- Dépenses : {{pct $.Comparison.ExpensesChangePct}}
- Résultat net : {{pct $.Comparison.NetIncomeChangePct}}
{{end}}
{{if jsonOutput}}Réponds en français.
{{else}}Réponds en français, avec exactement les quatre sections suivantes et leurs titres en gras :
**Tendances principales**
- une tendance par ligne

**Anomalies détectées**
- une anomalie par ligne

**Prévisions**
- une prévision par ligne

**Actions recommandées**
- une action par ligne
{{end}}`

const recommendationsTemplate = `Tu es un conseiller financier expert qui accompagne une petite entreprise française.
Propose des recommandations concrètes à partir de la situation suivante.

Situation actuelle :
- Revenus : {{money .Summary.Revenue}}
- Dépenses : {{money .Summary.Expenses}}
- Résultat net : {{money .Summary.NetIncome}}
- Nombre de transactions : {{.Summary.Count}}

Budgets actifs :
{{range .Budgets}}- {{clean .Name}} ({{clean .Category}}) : {{money .PlannedAmount}} par {{clean .Period}}
{{else}}- aucun budget actif
{{end}}
Tendances récentes :
{{range .Trends}}- {{clean .Label}} ({{clean .Category}}) : {{.Direction}}{{with .ChangePct}} {{pct .}}{{end}}{{if .Period}}, {{clean .Period}}{{end}}
{{else}}- aucune tendance enregistrée
{{end}}
Objectifs : {{if .Goals}}{{join .Goals}}{{else}}optimisation générale de la rentabilité{{end}}

{{if jsonOutput}}Réponds en français. Pour chaque recommandation, précise l'impact et l'effort (élevé, moyen ou faible) ainsi que l'échéance conseillée.
{{else}}Réponds en français, avec exactement les quatre sections suivantes et leurs titres en gras.
Pour chaque recommandation, ajoute sur la même ligne : Impact : élevé, moyen ou faible ; Effort : élevé, moyen ou faible ; Échéance : délai conseillé.
**Actions prioritaires**
- une action par ligne

**Optimisations**
- une optimisation par ligne

**Gestion des risques**
- une mesure par ligne

**Opportunités de croissance**
- une opportunité par ligne
{{end}}`

const streamingTemplate = `Tu es un conseiller financier qui accompagne une petite entreprise française.
Rédige une analyse {{clean .Label}} claire et concise de la période.

- Revenus : {{money .Summary.Revenue}}
- Dépenses : {{money .Summary.Expenses}}
- Résultat net : {{money .Summary.NetIncome}}
- Nombre de transactions : {{.Summary.Count}}

Réponds en français, en quelques paragraphes.
`

const jsonInstruction = `
Format de réponse : renvoie uniquement un objet JSON valide, sans bloc de code ni texte autour, avec les clés %s.
`

var jsonKeys = map[domain.AnalysisKind]string{
	domain.KindPatterns:        `"overview" (texte), "key_points", "risks", "opportunities" (listes de textes)`,
	domain.KindTrends:          `"main_trends", "anomalies", "forecasts", "recommended_actions" (listes de textes)`,
	domain.KindRecommendations: `"priority_actions", "optimizations", "risk_management", "growth_opportunities" (listes d'objets {"text", "impact", "effort", "deadline"})`,
}
