package dto

type Reflections struct {
	StyleGuidelines []string `json:"style_guidelines"`
	GeneralFacts    []string `json:"general_facts"`
}

type AssistantDTO struct {
	UserId           string      `json:"user_id"`
	AssistantId      string      `json:"assistant_id"`
	AssistantName    string      `json:"assistant_name"`
	LlmProvider      string      `json:"llm_provider"`
	Reflections      Reflections `json:"reflections"`
	UserDefinedRules []string    `json:"user_defined_rules"`
}

type CreateAssistantRequest struct {
	AssistantName string `validate:"required"`
	LlmProvider   string `validate:"required"`
}

type UpdateAssistantRequest struct {
	UserId           string      `json:"user_id"`
	AssistantId      string      `json:"assistant_id" validate:"required"`
	AssistantName    string      `json:"assistant_name" validate:"required"`
	LlmProvider      string      `json:"llm_provider"`
	Reflections      Reflections `json:"reflections"`
	UserDefinedRules []string    `json:"user_defined_rules"`
}
