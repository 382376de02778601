package models

const (
	ThinkTag         = `(?s)<think>.*?</think>`
	ContextSeparator = "\n\n"

	// metadata keys stored alongside each chunk in the vector index
	MetaSource = "source"
	MetaPage   = "page"
	MetaIndex  = "chunk_index"
	MetaStart  = "start"
	MetaEnd    = "end"
)

var (
	DefaultFallback = "I do not have enough information to answer this question accurately."

	DefaultPromptTemplate = `You are a helpful AI assistant. Answer the question based on the context provided below.
If the context does not contain sufficient information to answer the question accurately, respond with:
"{fallback}"

Guidelines:
- Use only the information provided in the context
- Be specific and detailed in your response
- If the context contains relevant data, cite it appropriately
- If the question is not addressed in the context, say so clearly
- Provide a comprehensive answer based on the available context

Context: {context}

Question: {question}

Answer:`
)
