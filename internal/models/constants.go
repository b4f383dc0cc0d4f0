package models

const (
	// PromptVersion must be bumped whenever PromptTemplate changes; the
	// citation format is consumed downstream.
	PromptVersion = "v1"

	NoDocumentsAnswer = "I don't have any relevant documents to answer this question. Please upload documents first."

	SnippetEllipsis = "..."
)

var (
	// PromptTemplate takes the context block and the user question.
	PromptTemplate = `You are a helpful AI assistant. Answer the user's question based on the provided context.

Context from documents:
%s

User question: %s

Instructions:
1. Answer the question using ONLY the information from the provided context
2. Include citations using [Source X] format when referencing specific information
3. If the context doesn't contain enough information to answer the question, say so
4. Be concise and accurate

Answer:`
)
