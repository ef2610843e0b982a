package dto

// ChatMessageDTO is the role/content pair sent as conversation history.
type ChatMessageDTO struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content"`
}

type ArticleData struct {
	FileName     string `json:"file_name" validate:"required"`
	Content      string `json:"content"`
	FileCategory string `json:"file_category" validate:"omitempty,oneof=editable reference"`
}

type HighlightData struct {
	Text      string `json:"text"`
	StartLine int    `json:"start_line" validate:"gte=0"`
	EndLine   int    `json:"end_line" validate:"gtefield=StartLine"`
}

// ChatRequest is shared by POST /chat/completion and the "stream" frame.
type ChatRequest struct {
	AssistantId       string                 `json:"assistant_id" validate:"required"`
	Messages          []ChatMessageDTO       `json:"messages" validate:"required,min=1,dive"`
	Article           ArticleData            `json:"article"`
	HighlightData     HighlightData          `json:"highlight_data"`
	OtherArticles     []ArticleData          `json:"other_articles" validate:"dive"`
	ReferenceArticles []ArticleData          `json:"reference_articles" validate:"dive"`
	Config            map[string]interface{} `json:"config"`
}

type ChatResponse struct {
	AssistantId            string                 `json:"assistant_id,omitempty"`
	Role                   string                 `json:"role,omitempty"`
	Content                string                 `json:"content"`
	EditedArticle          string                 `json:"edited_article,omitempty"`
	EditedArticleRelatedTo string                 `json:"edited_article_related_to,omitempty"`
	OtherData              map[string]interface{} `json:"other_data,omitempty"`
}

// ErrorResponse is the body the backend sends with non-2xx statuses.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
