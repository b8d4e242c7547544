package workflow

import (
	"fmt"
	"strings"
)

const plannerSystemPrompt = `You plan web searches for a due diligence investigation of one subject.
Work outward in waves: confirm identity and current role, then career history and board seats,
then money (investments, funds, partners), then legal and regulatory exposure, then the people
and companies uncovered along the way.

Propose 3 to 5 queries, each aimed at one specific angle. Do not repeat queries that were
already run. Fold newly discovered people and organisations into follow-up queries.

Answer with a JSON array of query strings and nothing else:
["<query>", "<query>"]`

func initialPlannerPrompt(target, context string) string {
	return fmt.Sprintf(`Subject: %s
Context: %s

This is the first round. Propose 3 to 5 queries that pin down who the subject is, what they do now,
their professional background and their public footprint.

Answer as a JSON array of strings.`, target, context)
}

func plannerPrompt(target, context string, iteration int, history, facts, entities string) string {
	return fmt.Sprintf(`Subject: %s
Context: %s

Round: %d
Queries already run: %s

Facts found so far:
%s

Entities found so far:
%s

Propose the next 3 to 5 queries. Go after areas not covered yet and chase new leads.

Answer as a JSON array of strings.`, target, context, iteration, history, facts, entities)
}

const extractionSystemPrompt = `You turn raw web search results into structured facts about a subject.

Only extract checkable factual statements; skip opinion and speculation. Keep each claim short
and specific. When several sources state the same thing, keep one claim.

Answer with a JSON array of objects:
[
  {
    "category": "biographical | professional | financial | legal | association | behavioral",
    "claim": "<short factual statement>",
    "source_url": "<where it was found>",
    "source_title": "<title of that page>",
    "date_mentioned": "<date or null>",
    "entities": ["<people, organisations or places named with the fact>"]
  }
]`

func extractionPrompt(target, results, existing string) string {
	return fmt.Sprintf(`Subject: %s

Search results by query:
%s

Facts already extracted (do not repeat them):
%s

Extract every new factual claim about the subject from all results above, as a JSON array.`, target, results, existing)
}

const analysisSystemPrompt = `You are a risk analyst reviewing facts gathered about a subject.

Assess financial, reputational, legal, operational and network risk. Identify relationships
between the entities that appear in the facts.

Answer with one JSON object:
{
  "risk_flags": [
    {
      "risk_category": "financial | reputational | legal | operational | network",
      "severity": "low | medium | high | critical",
      "description": "<what the risk is and why>",
      "supporting_facts": [0, 1],
      "recommendations": "<follow-up to take>"
    }
  ],
  "connections": [
    {
      "source_entity": "<entity>",
      "target_entity": "<entity>",
      "relationship": "<relationship type>",
      "description": "<explanation>",
      "confidence": 0.8
    }
  ],
  "inconsistencies": ["<contradiction between facts>"],
  "information_gaps": ["<area with little or no information>"]
}`

func analysisPrompt(target, context string, factCount int, facts, existingRisks string) string {
	return fmt.Sprintf(`Subject: %s
Context: %s

Facts (%d):
%s

Risks already flagged:
%s

Report only NEW risks and connections, plus inconsistencies and gaps, as the JSON object described.`,
		target, context, factCount, facts, existingRisks)
}

const scoringSystemPrompt = `You grade how well supported each extracted fact is.

Scale:
- 0.9 to 1.0: several authoritative sources such as regulatory filings or court records
- 0.7 to 0.89: established news outlets or verified professional profiles
- 0.5 to 0.69: one reputable source, or several weak ones
- 0.3 to 0.49: blogs, forums or social media with some corroboration
- 0.0 to 0.29: a single unverified source or rumour

Answer with a JSON array:
[{"fact_index": 0, "confidence": 0.75, "reasoning": "<short>", "corroboration_count": 2, "source_tier": 3}]`

func scoringPrompt(target, facts, history string) string {
	return fmt.Sprintf(`Subject: %s

Facts to grade:
%s

Recent searches:
%s

Grade every fact and answer with the JSON array described.`, target, facts, history)
}

func sufficiencyPrompt(target string, iteration, maxIterations, factCount, riskCount int, avgConfidence float64, coverage string, threshold float64) string {
	return fmt.Sprintf(`Decide whether an investigation has enough material or needs another search round.

Subject: %s
Round: %d of %d

Facts collected: %d
Risk flags: %d
Average confidence: %.2f

Coverage by category:
%s

Information gaps:
See analysis output

Consider whether the main categories are covered, whether important gaps remain, whether the
average confidence reaches %v, and whether another round would likely turn up anything new.

Answer with one JSON object:
{"continue": true, "reasoning": "<why>"}`,
		target, iteration, maxIterations, factCount, riskCount, avgConfidence, coverage, threshold)
}

const reporterSystemPrompt = `You write due diligence reports in clear, neutral, professional prose.

Sections:
1. Executive Summary
2. Subject Profile
3. Key Findings by category
4. Risk Assessment with severities
5. Connections and why they matter
6. Source Assessment
7. Recommended next steps
8. Sources consulted

Separate verified facts from judgement, give confidence for key claims, put the most serious
findings first and call out gaps.`

type reportInputs struct {
	Target, Context     string
	Iterations          int
	FactCount           int
	Facts               string
	RiskCount           int
	Risks               string
	ConnectionCount     int
	Connections         string
	AvgConfidence       float64
	HighCount, LowCount int
	QueryCount          int
	Queries             string
}

func reporterPrompt(in reportInputs) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s\nContext: %s\n\n", in.Target, in.Context)
	fmt.Fprintf(&b, "Research rounds completed: %d\n\n", in.Iterations)
	fmt.Fprintf(&b, "Facts (%d):\n%s\n\n", in.FactCount, in.Facts)
	fmt.Fprintf(&b, "Risk flags (%d):\n%s\n\n", in.RiskCount, in.Risks)
	fmt.Fprintf(&b, "Connections (%d):\n%s\n\n", in.ConnectionCount, in.Connections)
	fmt.Fprintf(&b, "Confidence:\n- average %.2f\n- facts at or above 0.7: %d\n- facts below 0.5: %d\n\n",
		in.AvgConfidence, in.HighCount, in.LowCount)
	fmt.Fprintf(&b, "Queries run (%d):\n%s\n\n", in.QueryCount, in.Queries)
	b.WriteString("Write the full risk assessment report for this subject.")
	return b.String()
}
