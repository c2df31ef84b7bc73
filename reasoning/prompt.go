package reasoning

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hairizuanbinnoorazman/persona-navigator/browser"
)

const clarification = `

<correction>
Your previous answer could not be parsed. Return ONLY a single valid JSON object matching the
response format above. No markdown, no code fences, no text before or after the object.
</correction>`

// BuildPrompt renders req as the model prompt. User-controlled values are wrapped in XML-style
// tags so instructions and page data stay separate.
func BuildPrompt(req Request) string {
	var b strings.Builder

	b.WriteString("You are role-playing a real person using a website. Stay in character and decide the single next action.\n\n")

	b.WriteString("<persona>\n")
	fmt.Fprintf(&b, "<name>%s</name>\n", req.PersonaName)
	keys := make([]string, 0, len(req.PersonaAttributes))
	for k := range req.PersonaAttributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "<attribute name=%q>%s</attribute>\n", k, req.PersonaAttributes[k])
	}
	b.WriteString("</persona>\n\n")

	if req.BehavioralRules != "" {
		fmt.Fprintf(&b, "<behavioral_rules>\n%s\n</behavioral_rules>\n\n", req.BehavioralRules)
	}

	fmt.Fprintf(&b, "<task>\n%s\n</task>\n\n", req.Task)

	fmt.Fprintf(&b, "<page step=\"%d\">\n<url>%s</url>\n<title>%s</title>\n", req.StepNumber, req.URL, req.Title)
	if req.Elements != "" {
		fmt.Fprintf(&b, "<interactive_elements>\n%s\n</interactive_elements>\n", req.Elements)
	}
	b.WriteString("</page>\n\n")

	if len(req.History) > 0 {
		b.WriteString("<history>\n")
		for _, h := range req.History {
			status := "ok"
			if !h.Success {
				status = "failed"
			}
			fmt.Fprintf(&b, "%d. [%s] %s (%s, progress %d%%) %s\n", h.Step, status, h.Action, h.URL, h.Progress, h.Narration)
		}
		b.WriteString("</history>\n\n")
	}

	kinds := make([]string, 0, len(browser.Kinds))
	for _, k := range browser.Kinds {
		kinds = append(kinds, string(k))
	}

	fmt.Fprintf(&b, `<response_format>
Respond with ONLY a JSON object:
{
  "narration": "first-person thought of the persona, one or two sentences",
  "action": {"type": "one of: %s", ...parameters},
  "issues": [{"severity": "low|medium|high|critical", "description": "..."}],
  "confidence": 0.0-1.0,
  "task_progress": 0-100,
  "emotional_state": "one of: delighted, confident, curious, neutral, uncertain, confused, frustrated, angry",
  "reasoning": "why this action"
}

Action parameters:
- click: "selector" (CSS selector or "text=<visible text>")
- type: "selector", "text", optional "submit": true
- scroll: "direction" ("up" or "down"), optional "amount" in pixels
- navigate: "url"
- wait: "seconds"
- click_at, double_click_at: "x", "y" in viewport pixels
- drag: "x", "y", "to_x", "to_y"
- scroll_at: "x", "y", "delta_x", "delta_y"
- press_key: "key" (e.g. "Escape", "ArrowDown")
- type_raw: "text"
- done, give_up: "reason"
Use "done" only when the task is fully accomplished and "give_up" when this persona would abandon it.
</response_format>`, strings.Join(kinds, ", "))

	return b.String()
}
