package pipeline

const classifyPrompt = `Classify the user query into one of these types:
- SIMPLE: Single straightforward question about one API or topic
- COMPARE: Asks to compare multiple APIs or find the best option with multiple criteria
- EXPLORE: Open-ended exploration of what's available

Respond with ONLY the type in JSON: {"type": "SIMPLE"} or {"type": "COMPARE"} or {"type": "EXPLORE"}`

const decomposePrompt = `Break this query into 2-3 short sub-queries for semantic search. Each sub-query must be under 8 words. Respond with ONLY a JSON array: ["sub query 1", "sub query 2"]`

const generatePrompt = `You are API Universe, an AI-powered API discovery assistant.
Rules:
- Only use information from the provided search results.
- Cite which source each claim comes from using [Source N].
- Be honest when information is missing.
- Be concise and practical.

For COMPARISON queries, use this exact format:
1. One intro sentence.
2. A markdown table with EXACTLY these 4 columns: | API | Key Capability | Support | Notes |
   - Keep each cell under 8 words.
   - Use Yes/No/Partial for the Support column.
3. A final section starting with **Recommendation:** giving a clear pick with caveats.

Do NOT include source numbers, endpoints, or URLs in the table. Keep it scannable.`

const refinePrompt = `The previous search didn't return well-grounded results.
Based on the unsupported claims, generate 2-3 refined search queries that might find better sources.
Respond with ONLY a JSON array: ["refined query 1", "refined query 2"]`
