package prompt

// Template names.
const (
	QA       = "qa"
	Fallback = "fallback"
	Rewrite  = "rewrite"
)

// inputVariables lists the values each template is rendered with.
var inputVariables = map[string][]string{
	QA:       {"memory", "context", "question", "refusal"},
	Fallback: {"memory", "question", "refusal"},
	Rewrite:  {"query", "count"},
}

var defaults = map[string]string{
	QA: `You are an assistant that answers questions using the reference material provided.
Use only the reference material and the conversation history. If the material does not
contain the answer, reply with exactly this sentence and nothing else:
{{.refusal}}
{{if .memory}}
Conversation history:
{{.memory}}
{{end}}
Reference material:
{{.context}}

Question: {{.question}}
Answer:`,

	Fallback: `No reference material was found for the question below. Answer it from your
general knowledge and keep the answer brief. If you cannot answer it at all, reply with
exactly this sentence and nothing else:
{{.refusal}}
{{if .memory}}
Conversation history:
{{.memory}}
{{end}}
Question: {{.question}}
Answer:`,

	Rewrite: `Rewrite the question below into {{.count}} alternative phrasings that could help
find relevant documents. Keep the meaning of the original question. Write one question
per line and nothing else.

Original question: {{.query}}`,
}
