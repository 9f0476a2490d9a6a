package agent

import "fmt"

const defaultSystemPrompt = `You answer questions about a private document collection.

Use the tools to find evidence before answering:
- rag_search searches the contents of every document.
- search_folder searches inside one folder, or lists its files when no query is given.
- live_corpus_search finds documents by name.

Rules:
- Answer only from tool results. Cite the source_path of every document you use.
- If a tool reports no_results, try one different phrasing or folder. If that also finds nothing, say that you could not find information about the question.
- A "partial" status means evidence came from few documents; say the answer may be incomplete.
- Never call the same tool with the same arguments twice.
- When a tool reports rate_limited or error, answer with the evidence you already have.`

const forcedFinalMessage = `The search step limit has been reached, so this tool was not run. Answer the user now using only the evidence already gathered. If there is none, say you could not find the information.`

func duplicateMessage(step int) string {
	return fmt.Sprintf("This exact call was already executed at step %d and its results are above. Make progress: use a different query or tool, or answer now.", step)
}

const (
	noEvidenceAnswer = "I could not find information to answer this question in the indexed documents. Try rephrasing it or naming the folder that holds the relevant documents."
	setupFailAnswer  = "I could not start answering this question because the language model returned an unusable response. Please try rephrasing the question."
	rateLimitAnswer  = "The language model is rate limited right now. Please try again in a moment."
	unavailAnswer    = "The language model is unavailable right now. Please try again later."
)
