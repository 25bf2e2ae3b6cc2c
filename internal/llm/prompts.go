package llm

import "fmt"

// DecidePrompt asks the model how new content relates to an existing
// memory of the same category.
func DecidePrompt(newContent, existingContent, category string) string {
	return fmt.Sprintf(`You are a memory integration system. A new piece of %s-category content
was submitted, and a similar memory already exists. Decide how they relate.

EXISTING MEMORY:
%s

NEW CONTENT:
%s

Pick exactly one decision:
- redundant: the new content adds nothing; the existing memory already covers it
- update: the new content restates the same subject with newer information
- correction: the new content contradicts the existing memory and fixes an error
- refinement: the new content adds detail that should be merged with the existing memory
- new: the two are actually about different things and should be stored independently

Return ONLY a JSON object, no other text:
{"decision": "redundant|update|correction|refinement|new", "rationale": "one sentence"}`,
		category, existingContent, newContent)
}

// MergePrompt asks the model to merge refined content with the memory it
// refines.
func MergePrompt(existingContent, newContent string) string {
	return fmt.Sprintf(`You are a memory merging system. Combine the two texts below into one
memory that keeps every distinct fact, prefers the newer text where they
conflict, and stays as short as possible.

OLDER:
%s

NEWER:
%s

Return ONLY the merged text, no preamble.`, existingContent, newContent)
}
