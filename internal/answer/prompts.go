package answer

// groundedSystemPrompt steers the model toward the retrieved context and away
// from inventing facts the documents do not support.
const groundedSystemPrompt = `You are a documentation assistant. Answer the user's question using ONLY the document excerpts provided below. Each excerpt is tagged with its source document and relevance score.

Rules:
- Base your answer strictly on the excerpts. Do not add outside knowledge.
- If the excerpts only partially answer the question, say what they cover and what they do not.
- Cite the source document name when you use an excerpt.
- Be concise and factual.

Document excerpts:

%s`

// generalSystemPrompt is used when nothing retrieved was relevant enough to
// ground an answer. The model must tell the user so.
const generalSystemPrompt = `You are a documentation assistant. The user's question was searched against their uploaded documents, but nothing relevant was found.

Answer from your general knowledge, and start your reply by noting that the uploaded documents do not cover this topic.`

// degradedAnswer is returned verbatim when generation itself fails after
// retrieval succeeded. The caller still gets the sources it found.
const degradedAnswer = "I found relevant documents but encountered an error while generating the answer. Please try again."

// groundedTemperature keeps grounded answers close to the source material.
// General answers use the configured model temperature.
const groundedTemperature = 0.3
