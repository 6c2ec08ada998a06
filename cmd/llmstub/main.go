// llmstub is an offline OpenAI-compatible chat-completions server that
// answers each pipeline stage with a canned, well-formed reply. It exists so
// the backend can be demoed and integration-tested without a real provider:
// point lutumd at it with -llm base_url http://127.0.0.1:8081/v1.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"regexp"
	"strings"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

var sourceRe = regexp.MustCompile(`=== QUELLE: (\S+) ===`)

func main() {
	model := os.Getenv("MODEL_ID")
	if strings.TrimSpace(model) == "" {
		model = "stub-model"
	}
	addr := os.Getenv("ADDR")
	if strings.TrimSpace(addr) == "" {
		addr = ":8081"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"id": model, "object": "model"}},
		})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		system, user := "", ""
		if len(req.Messages) > 0 {
			system = req.Messages[0].Content
		}
		if len(req.Messages) > 1 {
			user = req.Messages[len(req.Messages)-1].Content
		}
		content, ok := reply(system, user)
		if !ok {
			http.Error(w, "unexpected system prompt", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{
					"message":       map[string]string{"role": "assistant", "content": content},
					"finish_reason": "stop",
				},
			},
		})
	})

	log.Printf("llmstub listening on %s (model=%s)", addr, model)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

// reply matches the stage by its system prompt and returns a reply in that
// stage's exact output format.
func reply(system, user string) (string, bool) {
	switch {
	case strings.Contains(system, "research librarian"):
		return "session: Stub Research Session\n" +
			"query 1 (Primary): stub topic overview\n" +
			"query 2 (Primary): stub topic documentation\n" +
			"query 3 (Critical): stub topic criticism\n" +
			"query 4 (Community): stub topic experiences", true
	case strings.Contains(system, "research consultant"):
		return "A solid starting point. To focus the research:\n" +
			"1. Which time frame matters most to you?\n" +
			"2. Is cost or capability the deciding factor?", true
	case strings.Contains(system, "academic investigation"):
		return "=== AREA 1: Foundations ===\n" +
			"1) Establish the core definitions and the current state of the field\n" +
			"2) Trace the historical development and key milestones\n\n" +
			"=== AREA 2: Critical Perspectives ===\n" +
			"1) Collect documented limitations and failure cases\n" +
			"2) Survey conflicting evidence and minority positions\n\n" +
			"=== END PLAN ===", true
	case strings.Contains(system, "research director"):
		return "(1) Establish the core definitions and background of the topic\n\n" +
			"(2) Survey the current state of the art and main actors\n\n" +
			"(3) Collect practical experience reports from real deployments\n\n" +
			"(4) Examine documented criticism, limitations and failure cases\n\n" +
			"(5) Compare the main alternatives on cost and capability", true
	case strings.Contains(system, "previous queries"):
		return "search 1: stub alternative wording\n" +
			"search 2: stub practitioner reports\n" +
			"search 3: stub benchmark comparison\n" +
			"search 4: stub known issues\n" +
			"search 5: stub field experiences", true
	case strings.Contains(system, "search strategist"):
		return "=== THINKING ===\n" +
			"The point needs authoritative documentation plus field reports.\n\n" +
			"=== SEARCHES ===\n" +
			"search 1 (Primary): stub topic specification\n" +
			"search 2 (Community): stub topic experiences forum", true
	case strings.Contains(system, "source curator"):
		return pickReply(user), true
	case strings.Contains(system, "writing a dossier"):
		return dossierReply(user), true
	case strings.Contains(system, "synthesizing ONE research area"):
		return "## Area Findings\n\nThe area's dossiers agree on the core result [1], with one dissent [2].", true
	case strings.Contains(system, "principal investigator"):
		return "## Conclusion\n\nAcross all areas the evidence converges [1]. Open questions remain on long-term effects [2].", true
	case strings.Contains(system, "senior research editor"):
		return "# Stub Research Report\n\n## Executive Summary\n\nThe research supports the main claim [1][2].\n\n## Detail\n\nEach point contributed evidence [3].\n\n=== END REPORT ===", true
	case strings.Contains(system, "Restate precisely"):
		return "The user wants a grounded factual answer with its key trade-offs.", true
	case strings.Contains(system, "enumerate the pieces"):
		return "1. The core definition\n2. Current figures\n3. Known limitations", true
	case strings.Contains(system, "EXACTLY 10 search queries"):
		return "1. stub fact one\n2. stub fact two\n3. stub fact three\n4. stub fact four\n5. stub fact five\n" +
			"6. stub fact six\n7. stub fact seven\n8. stub fact eight\n9. stub fact nine\n10. stub fact ten", true
	case strings.Contains(system, "from scraped sources only"):
		return "## Answer\n\nThe sources support the claim [1]. A caveat applies [2].", true
	case strings.Contains(system, "fact-check auditor"):
		var b strings.Builder
		for i := 1; i <= 10; i++ {
			fmt.Fprintf(&b, "%d. Stub claim number %d → stub verification query %d\n", i, i, i)
		}
		return b.String(), true
	case strings.Contains(system, "fact-check verifier"):
		return "1. CONFIRMED - supported by [V1]\n2. CONFIRMED - supported by [V2]\n\nValidated: Yes", true
	}
	return "", false
}

// pickReply selects the first URLs present in the result listing.
func pickReply(user string) string {
	var b strings.Builder
	b.WriteString("=== SELECTED ===\n")
	n := 0
	for _, line := range strings.Split(user, "\n") {
		line = strings.TrimSpace(line)
		u, found := strings.CutPrefix(line, "URL: ")
		if !found {
			continue
		}
		n++
		fmt.Fprintf(&b, "url %d: %s\n", n, u)
		if n >= 5 {
			break
		}
	}
	return b.String()
}

// dossierReply cites the scraped sources handed in as QUELLE blocks.
func dossierReply(user string) string {
	urls := sourceRe.FindAllStringSubmatch(user, -1)
	var b strings.Builder
	b.WriteString("## 📋 HEADER\nStub dossier over the scraped sources.\n\n## 🎯 KERNSUMMARY\n")
	for i := range urls {
		fmt.Fprintf(&b, "Finding %d from the sources [%d]. ", i+1, i+1)
	}
	b.WriteString("\n\n## 💡 KEY LEARNINGS\nThe main takeaway holds [1].\n\n=== SOURCES ===\n")
	for i, m := range urls {
		fmt.Fprintf(&b, "[%d] %s - stub source\n", i+1, m[1])
	}
	b.WriteString("\n=== END DOSSIER ===\n")
	return b.String()
}
