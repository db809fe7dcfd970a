// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package openai

import (
	"fmt"
	"strings"
)

const rerankResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "ranking": {
      "type": "array",
      "items": {
        "type": "integer",
        "minimum": 0
      }
    }
  },
  "required": ["ranking"],
  "additionalProperties": false
}`

const rerankPromptTemplate = `You rank passages by how useful they are for answering a question.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

%s

Rules:
- "ranking" lists passage numbers, most relevant first.
- Only include passages that contain information relevant to the question.
- If no passage is relevant, return "ranking": [].
- Never invent passage numbers that were not given.
- The JSON must parse without errors; no trailing commas, no extra keys, and no extraneous text outside the object.

Example:
Question: "Where is the Eiffel Tower?"
[0] The Louvre is the world's most visited museum.
[1] The Eiffel Tower stands on the Champ de Mars in Paris.
Output:
{"ranking":[1]}`

func buildRerankSystemPrompt() string {
	return fmt.Sprintf(rerankPromptTemplate, rerankResponseSchema)
}

func buildRerankUserPrompt(query string, passages []string, topN int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %q\n", strings.TrimSpace(query))
	fmt.Fprintf(&sb, "Return at most %d passage numbers.\n\n", topN)
	for i, p := range passages {
		fmt.Fprintf(&sb, "[%d] %s\n", i, collapseWhitespace(p))
	}
	return sb.String()
}
