// Package i18n holds the bilingual status strings the orchestrators emit.
// Only the user-facing progress messages are localized; content semantics,
// prompts, and event type names are language-independent.
package i18n

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
)

// Lang selects the status-message variant. It never affects pipeline
// behavior, only the strings placed in event envelopes.
type Lang string

const (
	German  Lang = "de"
	English Lang = "en"
)

var matcher = language.NewMatcher([]language.Tag{
	language.German, // first entry is the fallback
	language.English,
})

// Normalize maps an arbitrary client-supplied language string onto a
// supported Lang. Regional variants collapse to their base ("en-US" → en,
// "de-AT" → de); unknown or empty input falls back to German, the engine's
// historical default.
func Normalize(s string) Lang {
	s = strings.TrimSpace(s)
	if s == "" {
		return German
	}
	tag, err := language.Parse(s)
	if err != nil {
		return German
	}
	_, idx, _ := matcher.Match(tag)
	if idx == 1 {
		return English
	}
	return German
}

// Args carries named values for {placeholder} substitution.
type Args map[string]any

var placeholderRe = regexp.MustCompile(`\{(\w+)\}`)

// Status renders a research status message in the requested language.
// Unknown keys return the key itself; unresolved placeholders stay in place.
// Both cases are logged so a missing table entry shows up in the log export
// instead of silently producing an empty status line.
func Status(lang Lang, key string, args Args) string {
	return render(statusMessages, "status", lang, key, args)
}

// Ask renders an Ask-mode status message.
func Ask(lang Lang, key string, args Args) string {
	return render(askMessages, "ask", lang, key, args)
}

func render(table map[string]map[Lang]string, kind string, lang Lang, key string, args Args) string {
	variants, ok := table[key]
	if !ok {
		log.Warn().Str("table", kind).Str("key", key).Msg("unknown message key")
		return key
	}
	tmpl, ok := variants[lang]
	if !ok {
		tmpl = variants[German]
	}
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := args[name]
		if !ok {
			log.Warn().Str("key", key).Str("arg", name).Msg("missing message argument")
			return m
		}
		return fmt.Sprint(v)
	})
}

var statusMessages = map[string]map[Lang]string{
	"connected": {
		German:  "Verbunden - warte auf Events...",
		English: "Connected - waiting for events...",
	},
	"getting_overview": {
		German:  "Erstelle Themenübersicht...",
		English: "Creating topic overview...",
	},
	"overview_done": {
		German:  "Übersicht erstellt: {count} Suchanfragen",
		English: "Overview created: {count} search queries",
	},
	"searching_web": {
		German:  "Suche im Internet...",
		English: "Searching the web...",
	},
	"sources_found": {
		German:  "{count} Quellen gefunden",
		English: "{count} sources found",
	},
	"reading_sources": {
		German:  "Lese Quellen...",
		English: "Reading sources...",
	},
	"sources_analyzed": {
		German:  "{count} Quellen analysiert",
		English: "{count} sources analyzed",
	},
	"creating_plan": {
		German:  "Erstelle Rechercheplan...",
		English: "Creating research plan...",
	},
	"plan_created": {
		German:  "Plan erstellt: {count} Punkte",
		English: "Plan created: {count} points",
	},
	"deep_research_start": {
		German:  "Starte Deep Research mit {points} Punkten...",
		English: "Starting deep research with {points} points...",
	},
	"session_resumed": {
		German:  "Session fortgesetzt: {remaining} verbleibende Punkte",
		English: "Session resumed: {remaining} remaining points",
	},
	"pick_point": {
		German:  "[{current}/{total}] Bearbeite: {point}",
		English: "[{current}/{total}] Working on: {point}",
	},
	"think_start": {
		German:  "Entwickle Suchstrategie...",
		English: "Developing search strategy...",
	},
	"searching": {
		German:  "Suche mit {count} Anfragen...",
		English: "Searching with {count} queries...",
	},
	"few_results_retry": {
		German:  "Wenige Treffer - formuliere Suchanfragen um...",
		English: "Few results - reformulating search queries...",
	},
	"retry_search": {
		German:  "Wiederhole Suche mit {count} neuen Anfragen...",
		English: "Retrying search with {count} new queries...",
	},
	"selecting_sources": {
		German:  "Wähle Quellen aus...",
		English: "Selecting sources...",
	},
	"scraping": {
		German:  "Lese {count} Quellen...",
		English: "Reading {count} sources...",
	},
	"creating_dossier": {
		German:  "Erstelle Dossier...",
		English: "Creating dossier...",
	},
	"point_done": {
		German:  "[{current}/{total}] Punkt abgeschlossen",
		English: "[{current}/{total}] Point complete",
	},
	"point_skipped": {
		German:  "Punkt übersprungen: {reason}",
		English: "Point skipped: {reason}",
	},
	"synthesis_start": {
		German:  "Erstelle finale Synthese - das kann mehrere Minuten dauern...",
		English: "Creating final synthesis - this can take several minutes...",
	},
	"research_complete": {
		German:  "Recherche abgeschlossen in {duration}s",
		English: "Research complete in {duration}s",
	},
	"research_failed": {
		German:  "Deep Research fehlgeschlagen. Bitte erneut versuchen.",
		English: "Deep research failed. Please try again.",
	},
	"pipeline_failed": {
		German:  "Recherche-Pipeline fehlgeschlagen. Bitte erneut versuchen.",
		English: "Research pipeline failed. Please try again.",
	},
	"academic_start": {
		German:  "Starte akademische Recherche: {bereiche} Bereiche, {points} Punkte...",
		English: "Starting academic research: {bereiche} areas, {points} points...",
	},
	"bereich_start": {
		German:  "Bereich {current}/{total}: {title}",
		English: "Area {current}/{total}: {title}",
	},
	"bereich_synthesis": {
		German:  "Synthese für Bereich: {title}...",
		English: "Synthesizing area: {title}...",
	},
	"bereich_complete": {
		German:  "Bereich abgeschlossen: {title}",
		English: "Area complete: {title}",
	},
	"meta_synthesis_start": {
		German:  "Erstelle bereichsübergreifende Conclusio...",
		English: "Creating cross-area conclusion...",
	},
	"academic_complete": {
		German:  "Akademische Recherche abgeschlossen in {duration}s",
		English: "Academic research complete in {duration}s",
	},
	"academic_failed": {
		German:  "Akademische Recherche fehlgeschlagen. Bitte erneut versuchen.",
		English: "Academic research failed. Please try again.",
	},
}

var askMessages = map[string]map[Lang]string{
	"connected": {
		German:  "Verbunden - warte auf Events...",
		English: "Connected - waiting for events...",
	},
	"starting": {
		German:  "Deep Question gestartet...",
		English: "Deep question started...",
	},
	"c1_start": {
		German:  "C1: Analysiere Fragestellung...",
		English: "C1: Analyzing the question...",
	},
	"c1_done": {
		German:  "C1: Intention erfasst",
		English: "C1: Intent captured",
	},
	"c2_start": {
		German:  "C2: Ermittle Wissensbedarf...",
		English: "C2: Determining knowledge needs...",
	},
	"c2_done": {
		German:  "C2: Wissensbedarf ermittelt",
		English: "C2: Knowledge needs determined",
	},
	"c3_start": {
		German:  "C3: Erstelle Suchanfragen...",
		English: "C3: Creating search queries...",
	},
	"c3_done": {
		German:  "C3: {count} Suchanfragen erstellt",
		English: "C3: {count} search queries created",
	},
	"scrape1_start": {
		German:  "Recherche: Lese Quellen...",
		English: "Research: reading sources...",
	},
	"scrape1_done": {
		German:  "Recherche: {count} Quellen gelesen",
		English: "Research: {count} sources read",
	},
	"c4_start": {
		German:  "C4: Formuliere Antwort...",
		English: "C4: Composing the answer...",
	},
	"c4_done": {
		German:  "C4: Antwort erstellt",
		English: "C4: Answer composed",
	},
	"c5_start": {
		German:  "C5: Extrahiere prüfbare Behauptungen...",
		English: "C5: Extracting verifiable claims...",
	},
	"c5_done": {
		German:  "C5: {count} Behauptungen extrahiert",
		English: "C5: {count} claims extracted",
	},
	"scrape2_start": {
		German:  "Verifikation: Lese Quellen...",
		English: "Verification: reading sources...",
	},
	"scrape2_done": {
		German:  "Verifikation: {count} Quellen gelesen",
		English: "Verification: {count} sources read",
	},
	"c6_start": {
		German:  "C6: Prüfe Behauptungen gegen Quellen...",
		English: "C6: Checking claims against sources...",
	},
	"c6_done": {
		German:  "C6: Verifikationsbericht erstellt",
		English: "C6: Verification report created",
	},
	"complete": {
		German:  "Deep Question abgeschlossen in {duration}s",
		English: "Deep question complete in {duration}s",
	},
	"error": {
		German:  "Deep Question fehlgeschlagen: {error}",
		English: "Deep question failed: {error}",
	},
	"stage_failed": {
		German:  "Stufe {stage} fehlgeschlagen",
		English: "Stage {stage} failed",
	},
}
