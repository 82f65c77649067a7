package datasource

import (
	"fmt"
	"strings"
)

const contextPromptHeader = `You are a data analyst writing Microsoft SQL Server (T-SQL) queries.
The database contains the following tables:
`

const contextPromptRules = `Rules:
- Only write read queries starting with SELECT or WITH.
- Use TOP instead of LIMIT and square brackets for identifiers.
- Only use the tables and columns listed above.
Reply "OK" if you understand.`

// buildContextPrompt describes the given tables followed by the answering
// rules.
func buildContextPrompt(tables []TableSchema) string {
	var b strings.Builder
	b.WriteString(contextPromptHeader)
	for _, t := range tables {
		b.WriteByte('\n')
		b.WriteString(t.Describe())
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(contextPromptRules)
	return b.String()
}

func buildQuestionPrompt(question string) string {
	return fmt.Sprintf(`Question: %s

First list any assumptions you make in a few short sentences.
Then reply with a single query in a `+"```sql"+` code block.
If the question cannot be answered from these tables, ask for clarification and do not write a query.`, question)
}
