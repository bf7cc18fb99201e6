package types

// Question is one interactive clarification raised by a running agent.
// A question set pauses its session until every question is answered.
type Question struct {
	ID          string           `json:"id"`
	Header      string           `json:"header,omitempty"`
	Prompt      string           `json:"prompt"`
	Options     []QuestionOption `json:"options,omitempty"`
	MultiSelect bool             `json:"multiSelect,omitempty"`
}

// QuestionOption is one selectable choice for a question.
type QuestionOption struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// Answer maps question IDs to the selected option labels.
type Answer map[string][]string

// Selected returns the labels chosen for a question ID.
func (a Answer) Selected(questionID string) []string {
	return a[questionID]
}
