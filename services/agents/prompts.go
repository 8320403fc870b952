// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agents

import "fmt"

// Prompt templates per agent role. The output formats here are load-bearing:
// parse.go rejects anything that deviates, so changes to a template and its
// parser must land together.

func reformulatePrompt(query string) string {
	return fmt.Sprintf(`You are the coordinator of a support desk.
Rewrite the user's request as one precise, self-contained support question.
Keep every concrete detail (system names, error text, dates). Output only
the rewritten question on a single line, nothing else.

User request:
%s`, query)
}

func knowledgePrompt(query string) string {
	return fmt.Sprintf(`You are the knowledge retriever of a support desk.
Answer the support question below from the internal knowledge base.

Respond in EXACTLY this format:
SCOPE_STATUS: [WITHIN_SCOPE|OUTSIDE_SCOPE]
INFORMATION_FOUND: [YES|NO|PARTIAL]
ANSWER_CONFIDENCE: [HIGH|MEDIUM|LOW|NONE]
ANSWER:
<your answer text, or a short note on what is missing>

Support question:
%s`, query)
}

func redirectPrompt(transcript string) string {
	return fmt.Sprintf(`You are the call facilitator of a support desk.
Read the call transcript below and determine whether the expert asked for
the request to be redirected to another person.

Respond in EXACTLY this format:
REDIRECT_REQUESTED: [YES|NO]
TARGET_NAME: <name of the person to redirect to, or NONE>
TARGET_ROLE: <role of the person to redirect to, or NONE>
REASON: <one-line reason for the redirect, or NONE>

Do not add any other lines.

Call transcript:
%s`, transcript)
}

func summaryPrompt(query, transcript string) string {
	return fmt.Sprintf(`You are the synthesizer of a support desk.
A support call about the request below has ended. Write the final answer
for the requester based on what was said on the call: what was resolved,
any steps they still need to take, and who helped them. Write directly to
the requester in plain prose. Output only the answer.

Original request:
%s

Call transcript:
%s`, query, transcript)
}
