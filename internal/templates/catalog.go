package templates

import "github.com/BTreeMap/PromptForge/internal/models"

// DefaultTemplates returns the built-in catalog in registration order.
// A fresh slice is returned on every call so callers may modify it.
func DefaultTemplates() []models.Template {
	return []models.Template{
		codeGenerationTemplate(),
		contentCreationTemplate(),
		generalTemplate(),
	}
}

func codeGenerationTemplate() models.Template {
	return models.Template{
		ID:          "code-generation",
		Name:        "Code Generation",
		Description: "Generate prompts for code generation, debugging, or refactoring tasks",
		Icon:        "code",
		Questions: []models.Question{
			{ID: "programming-language", Type: models.QuestionTypeText, Label: "Programming Language", Placeholder: "e.g., Python, JavaScript, Java", Required: true},
			{ID: "framework", Type: models.QuestionTypeText, Label: "Framework/Library", Placeholder: "e.g., React, Django, Spring"},
			{ID: "task-description", Type: models.QuestionTypeTextarea, Label: "Task Description", Placeholder: "Describe what you want the code to do", Required: true},
			{ID: "requirements", Type: models.QuestionTypeTextarea, Label: "Requirements", Placeholder: "List any specific requirements or constraints"},
			{ID: "input-output", Type: models.QuestionTypeTextarea, Label: "Expected Input/Output", Placeholder: "Describe the expected inputs and outputs"},
			{ID: "code-style", Type: models.QuestionTypeTextarea, Label: "Code Style Preferences", Placeholder: "Any specific coding style or patterns you prefer"},
			{ID: "include-tests", Type: models.QuestionTypeCheckbox, Label: "Include unit tests", DefaultValue: true},
			{ID: "include-examples", Type: models.QuestionTypeCheckbox, Label: "Include usage examples", DefaultValue: true},
			{ID: "additional-context", Type: models.QuestionTypeTextarea, Label: "Additional Context", Placeholder: "Any other information that might be helpful"},
		},
		PromptTemplate: "I need help with {programming-language} code{framework}.\n\n" +
			"Task: {task-description}\n\n" +
			"{requirements}\n\n" +
			"{input-output}\n\n" +
			"{code-style}\n\n" +
			"{include-tests}\n{include-examples}\n\n" +
			"{additional-context}",
		Keywords: []string{
			"code", "program", "function", "bug", "error", "debug", "algorithm",
			"python", "javascript", "java", "c++", "programming", "script", "api", "database",
		},
	}
}

func contentCreationTemplate() models.Template {
	return models.Template{
		ID:          "content-creation",
		Name:        "Content Creation",
		Description: "Generate prompts for blog posts, articles, social media content, etc.",
		Icon:        "file-text",
		Questions: []models.Question{
			{ID: "content-type", Type: models.QuestionTypeSelect, Label: "Content Type", Required: true, Options: []models.Option{
				{Value: "blog-post", Label: "Blog Post"},
				{Value: "article", Label: "Article"},
				{Value: "social-media", Label: "Social Media Post"},
				{Value: "email", Label: "Email"},
				{Value: "product-description", Label: "Product Description"},
				{Value: "other", Label: "Other"},
			}},
			{ID: "target-audience", Type: models.QuestionTypeText, Label: "Target Audience", Placeholder: "Who is this content for?", Required: true},
			{ID: "tone", Type: models.QuestionTypeSelect, Label: "Tone", Required: true, Options: []models.Option{
				{Value: "formal", Label: "Formal"},
				{Value: "conversational", Label: "Conversational"},
				{Value: "humorous", Label: "Humorous"},
				{Value: "technical", Label: "Technical"},
				{Value: "persuasive", Label: "Persuasive"},
				{Value: "inspirational", Label: "Inspirational"},
			}},
			{ID: "main-topic", Type: models.QuestionTypeTextarea, Label: "Main Topic", Placeholder: "What is the main topic or subject?", Required: true},
			{ID: "key-points", Type: models.QuestionTypeTextarea, Label: "Key Points", Placeholder: "List the key points you want to include"},
			{ID: "content-length", Type: models.QuestionTypeSelect, Label: "Content Length", Required: true, Options: []models.Option{
				{Value: "short", Label: "Short (< 300 words)"},
				{Value: "medium", Label: "Medium (300-800 words)"},
				{Value: "long", Label: "Long (800-1500 words)"},
				{Value: "very-long", Label: "Very Long (1500+ words)"},
			}},
			{ID: "seo-keywords", Type: models.QuestionTypeTextarea, Label: "SEO Keywords", Placeholder: "List any SEO keywords to include"},
			{ID: "additional-instructions", Type: models.QuestionTypeTextarea, Label: "Additional Instructions", Placeholder: "Any other specific instructions"},
		},
		PromptTemplate: "Please write a {content-type} for {target-audience} with a {tone} tone.\n\n" +
			"Topic: {main-topic}\n\n" +
			"{key-points}\n\n" +
			"Length: {content-length}\n\n" +
			"{seo-keywords}\n\n" +
			"{additional-instructions}",
		Keywords: []string{
			"write", "article", "blog", "post", "content", "essay", "email",
			"social media", "marketing", "copywriting", "story", "newsletter",
		},
	}
}

func generalTemplate() models.Template {
	return models.Template{
		ID:          DefaultTemplateID,
		Name:        "General Purpose",
		Description: "A general-purpose questionnaire for any type of request",
		Icon:        "help-circle",
		Questions: []models.Question{
			{ID: "main-goal", Type: models.QuestionTypeTextarea, Label: "Main Goal", Placeholder: "What are you trying to accomplish?", Required: true},
			{ID: "context", Type: models.QuestionTypeTextarea, Label: "Context", Placeholder: "Provide any relevant background information"},
			{ID: "specific-requirements", Type: models.QuestionTypeTextarea, Label: "Specific Requirements", Placeholder: "List any specific requirements or constraints"},
			{ID: "preferred-format", Type: models.QuestionTypeText, Label: "Preferred Format", Placeholder: "How would you like the response formatted?"},
			{ID: "level-of-detail", Type: models.QuestionTypeSelect, Label: "Level of Detail", Required: true, Options: []models.Option{
				{Value: "brief", Label: "Brief"},
				{Value: "moderate", Label: "Moderate"},
				{Value: "detailed", Label: "Detailed"},
				{Value: "comprehensive", Label: "Comprehensive"},
			}},
			{ID: "additional-notes", Type: models.QuestionTypeTextarea, Label: "Additional Notes", Placeholder: "Any other information that might be helpful"},
		},
		PromptTemplate: "I need help with the following:\n\n" +
			"Main Goal: {main-goal}\n\n" +
			"{context}\n\n" +
			"{specific-requirements}\n\n" +
			"{preferred-format}\n\n" +
			"Level of Detail: {level-of-detail}\n\n" +
			"{additional-notes}",
	}
}
