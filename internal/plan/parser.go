package plan

import (
	"encoding/json"

	"github.com/taskforge/taskforge/pkg/models"
)

// streamLine is the subset of the agent's stream-json output the engine
// cares about: assistant tool_use blocks and the final result.
type streamLine struct {
	Type    string `json:"type"`
	Result  string `json:"result"`
	Message struct {
		Content []contentBlock `json:"content"`
	} `json:"message"`
}

type contentBlock struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// askUserInput is the input schema of the AskUserQuestion tool.
type askUserInput struct {
	Questions []struct {
		Question    string `json:"question"`
		Header      string `json:"header"`
		MultiSelect bool   `json:"multiSelect"`
		Options     []struct {
			Label       string `json:"label"`
			Description string `json:"description"`
		} `json:"options"`
	} `json:"questions"`
}

// ParseLine inspects one stream-json line. It returns any questions the
// agent asked (indexed starting at nextIndex), the final summary text if
// the line is a result, and whether the line parsed as JSON at all.
func ParseLine(line string, nextIndex int) (questions []models.PlanQuestion, summary string, ok bool) {
	var parsed streamLine
	if err := json.Unmarshal([]byte(line), &parsed); err != nil {
		return nil, "", false
	}

	switch parsed.Type {
	case "result":
		return nil, parsed.Result, true
	case "assistant":
		for _, block := range parsed.Message.Content {
			if block.Type != "tool_use" || block.Name != "AskUserQuestion" {
				continue
			}
			var input askUserInput
			if err := json.Unmarshal(block.Input, &input); err != nil {
				continue
			}
			for _, q := range input.Questions {
				pq := models.PlanQuestion{
					Index:       nextIndex + len(questions),
					Header:      q.Header,
					Question:    q.Question,
					MultiSelect: q.MultiSelect,
					ToolUseID:   block.ID,
				}
				for _, opt := range q.Options {
					pq.Options = append(pq.Options, models.QuestionOption{
						Label:       opt.Label,
						Description: opt.Description,
					})
				}
				questions = append(questions, pq)
			}
		}
	}

	return questions, "", true
}
