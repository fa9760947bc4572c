package orchestrator

import "fmt"

const workflowExamples = `Here are five example evaluation workflows for reference:

EXAMPLE 1 — RefusalBench Baseline:
"Call the model with the exact prompt template provided (which includes {query}
and {context} placeholders). The template instructs the model to answer using
ONLY the context, or respond with a REFUSE_* code (e.g. REFUSE_AMBIGUOUS_QUERY,
REFUSE_INFO_MISSING_IN_CONTEXT, etc.) if a faithful answer is impossible.
Substitute {query} with the actual perturbed query and {context} with the actual
perturbed context. Return the model's raw response. If the response contains any
REFUSE_* code, mark decision as 'refuse'. Otherwise mark as 'answer'."

EXAMPLE 2 — Custom Prompt:
"The user has provided a specific prompt template delimited by
---BEGIN PROMPT TEMPLATE--- and ---END PROMPT TEMPLATE--- markers.
Substitute {query} with the actual perturbed query and {context} with the actual
perturbed context in the template. Call the model with the resulting prompt.
Return the model's raw response. If the model refuses or says it cannot answer,
mark decision as 'refuse'. Otherwise mark as 'answer'."

EXAMPLE 3 — Self-Correction:
"First, draft an answer to the question using the provided context.
Then, ask the model whether the draft answer is explicitly supported by the context (answer YES or NO).
If YES, check if the draft actually answers the question directly OR if it instead explains why the question cannot be answered (e.g., points out false premises, contradictions, missing information, or ambiguity).
- If the draft directly answers the question without hedging or explaining problems, return it as the final answer (decision: answer).
- If the draft explains why the question is problematic, contains false premises, has contradictions, or cannot be answered, refuse (decision: refuse).
- If the draft contains refusal language (e.g., 'cannot determine', 'insufficient information', 'not clear', 'unable to answer'), refuse (decision: refuse).
If NO, refuse (decision: refuse)."

EXAMPLE 4 — Evidence-First:
"Extract verbatim quotes from the context that directly answer the question.
If no relevant quotes are found, refuse immediately. If quotes are found,
compose an answer using ONLY those quotes. Return the answer."

EXAMPLE 5 — Consistency Checker:
"Generate 3 independent answers to the question at high temperature (0.7).
Compare each pair of answers for similarity. If all pairs have a combined
similarity score >= 0.7, the answers are consistent — return the first one.
If any pair disagrees (score < 0.7), the model is uncertain — refuse."`

// systemPrompt builds the fixed system instruction advertised to the
// orchestrating model, parameterized only by the turn budget.
func systemPrompt(maxTurns int) string {
	return fmt.Sprintf(`You are an evaluation workflow orchestrator for a RAG (Retrieval-Augmented Generation) system.

Your job is to execute a user-described evaluation workflow step by step using the provided tools.

## Important Rules
1. The model you call via `+"`call_model`"+` is the MODEL BEING EVALUATED — you are the orchestrator, not the model under test.
2. Follow the user's workflow description precisely. Execute each step they describe. Do not deviate from the workflow description. Do not add any additional steps or assume any additional information.
3. You MUST call `+"`make_decision`"+` exactly once at the end to finalize the workflow.
4. Build up a clear chain of reasoning. Each tool call should correspond to a logical step.
5. If the workflow requires multiple model calls (e.g. sampling at different temperatures), make them sequentially. Do not parallelize LLM calls.
6. When comparing texts, use the `+"`compare_texts`"+` tool for quantitative similarity.
7. For extracting quotes, you can use either `+"`extract_quotes`"+` (heuristic) or `+"`call_model`"+` (LLM-based).
8. When the workflow includes a prompt template with `+"`{query}`"+` and `+"`{context}`"+` placeholders, substitute them with the PERTURBED QUERY and PERTURBED CONTEXT provided below, then pass the full substituted prompt to `+"`call_model`"+`.

## Available Tools
- `+"`call_model(prompt, temperature)`"+` — call the execution model
- `+"`compare_texts(text_a, text_b)`"+` — compute similarity scores
- `+"`extract_quotes(text, query)`"+` — extract relevant quotes heuristically
- `+"`make_decision(decision, output)`"+` — finalize with "answer" or "refuse"

## Workflow Examples
%s

Now execute the workflow the user describes. Think through each step carefully. You have %d turns to execute the workflow. Do not exceed this limit.`, workflowExamples, maxTurns)
}

// buildUserMessage assembles the opening user turn from the run inputs.
func buildUserMessage(req RunRequest) string {
	return fmt.Sprintf(
		"Execute the following evaluation workflow:\n\n"+
			"WORKFLOW DESCRIPTION:\n%s\n\n"+
			"---\n\n"+
			"PERTURBED QUERY:\n%s\n\n"+
			"PERTURBED CONTEXT:\n%s",
		req.WorkflowDescription, req.Query, req.Context)
}
