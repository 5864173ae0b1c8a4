package rubric

import (
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/seanblong/reporubric/pkg/models"
)

// SystemPrompt frames the assessment and carries the classification policy:
// documentation alone never justifies a classification above A, and
// ambiguity between adjacent tiers resolves to the lower one.
const SystemPrompt = `You are an expert at assessing source repositories for agentic AI workflow potential.

You analyze codebases to determine:
1. Which classification level of AI assistance is appropriate (A-D scale)
2. Specific tasks that could benefit from automation
3. Risk levels and guardrails needed
4. A concrete pilot plan

You ALWAYS cite your sources using the provided citation IDs.
You produce output in strict JSON matching the provided schema.

## Classification Scale
- A_NOT_AGENTIC: Low variability, rules-based, minimal LLM value. Standard CRUD apps, ETL pipelines, static configs.
- B_LLM_ASSIST: Human-led with LLM support for specific tasks. The LLM drafts or suggests, a human approves every action.
- C_TASK_AGENTS: Autonomous agents for well-defined tasks with guardrails. Bounded autonomy and a human escalation path.
- D_AGENT_ORCHESTRATION: Multi-agent systems with dynamic routing, tool selection and coordination.

## Code over docs

Documentation claims are NOT sufficient evidence for any classification above A.

Before classifying as B, C or D you MUST verify at least one of these in code:
1. AI library dependencies or imports: openai, anthropic, langchain, llama-index, transformers, cohere, replicate, genai
2. LLM API calls: chat completions, messages.create, generate, complete, embed
3. Prompt patterns: instruction templates, system prompts, few-shot examples
4. Agent patterns: tool or function definitions, action loops, state machines, dynamic routing

Dependency manifests (package.json, requirements.txt, pyproject.toml, go.mod, Cargo.toml) must be checked for AI libraries.
Without AI dependencies the classification is A unless code explicitly shows AI patterns.

If documentation describes AI capabilities that the code does not implement, classify as A_NOT_AGENTIC, record the
discrepancy in risks.assumptions and keep confidence below 0.6.

What raises the classification:
- B: at least one LLM call whose output assists a human decision
- C: LLM-driven actions executed autonomously within defined guardrails
- D: multiple agents or workers with dynamic task routing or tool selection

What keeps it at A: REST handlers, database CRUD, static configuration, rule-based validation, cron jobs, CI/CD and
webhooks without an LLM.

When evidence is ambiguous between two adjacent classifications, choose the LOWER one.`

var manifestFiles = []string{"package.json", "requirements.txt", "pyproject.toml", "go.mod", "Cargo.toml"}

const manifestExcerptChars = 2000

// manifest returns the first chunk of a root level dependency manifest.
func manifest(chunks []models.Chunk) (models.Chunk, bool) {
	for _, c := range chunks {
		if slices.Contains(manifestFiles, c.Path) {
			return c, true
		}
	}
	for _, c := range chunks {
		if slices.Contains(manifestFiles, path.Base(c.Path)) {
			return c, true
		}
	}
	return models.Chunk{}, false
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// BuildPrompt assembles the user prompt for an assessment.
func BuildPrompt(actx models.AnalysisContext, summaries []models.FileSummary, chunks []models.Chunk) string {
	var sb strings.Builder

	stack := strings.Join(actx.DetectedStack, ", ")
	if stack == "" {
		stack = "Unknown"
	}
	sb.WriteString("## Repository Information\n")
	fmt.Fprintf(&sb, "- URL: %s\n", actx.RepoURL)
	fmt.Fprintf(&sb, "- Owner: %s\n", actx.Owner)
	fmt.Fprintf(&sb, "- Repo: %s\n", actx.Repo)
	fmt.Fprintf(&sb, "- Commit: %s\n", actx.RevisionID)
	fmt.Fprintf(&sb, "- Default Branch: %s\n", actx.DefaultBranch)
	fmt.Fprintf(&sb, "- Detected Stack: %s\n\n", stack)

	sb.WriteString("## Analyzed Files\n")
	for _, p := range actx.AnalyzedPaths {
		fmt.Fprintf(&sb, "- %s\n", p)
	}

	sb.WriteString("\n## Dependencies Analysis\n")
	if dep, ok := manifest(chunks); ok {
		fmt.Fprintf(&sb, "File: %s\n```\n%s\n```\n\n", dep.Path, excerpt(dep.Content, manifestExcerptChars))
		sb.WriteString("**IMPORTANT**: Check whether ANY AI library is present: openai, anthropic, langchain, transformers, " +
			"@anthropic-ai/sdk, llama-index, cohere, genai. If NONE is present, that is strong evidence for A_NOT_AGENTIC.\n")
	} else {
		sb.WriteString("No dependency manifest was analyzed. Examine imports in source files for AI library usage.\n")
	}

	sb.WriteString("\n## File Summaries\n")
	for i, s := range summaries {
		if i > 0 {
			sb.WriteString("\n---\n\n")
		}
		fmt.Fprintf(&sb, "### %s [%s]\n%s\n\nKey findings:\n", s.Path, s.CitationID, s.Summary)
		for _, f := range s.KeyFindings {
			fmt.Fprintf(&sb, "- %s\n", f)
		}
	}

	sb.WriteString("\n## Available Citations\nUse these citation IDs to reference specific code locations:\n")
	for _, c := range chunks {
		fmt.Fprintf(&sb, "- %s: %s (L%d-L%d)\n", c.CitationID, c.Path, c.LineStart, c.LineEnd)
	}

	fmt.Fprintf(&sb, `
## Instructions
Produce a complete rubric assessment following the JSON schema exactly.

Key rules:
1. CODE OVER DOCS: documentation claims without matching code are evidence for A_NOT_AGENTIC
2. Every task and execution_mode must reference at least one citation ID from the list above
3. Every citation must use an ID from the list above with its path and line range
4. Be specific in KPIs and include measurable metrics where possible
5. The pilot should start with the task of lowest risk and highest potential impact
6. Confidence must reflect how much of the codebase was analyzed (%d files)
7. If documentation describes features not found in code, note it in risks.assumptions and reduce confidence

The output MUST be valid JSON matching the schema.`, len(actx.AnalyzedPaths))

	return sb.String()
}
