package ai

// CategoryInput is a category offered to the classifier
type CategoryInput struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ClassifyRequest asks the classifier to pick one of Categories for a
// complaint description and to write a subject line
type ClassifyRequest struct {
	Description string          `json:"description"`
	Categories  []CategoryInput `json:"categories"`
}

// ClassifyResponse is the classifier reply. Output holds the raw model text
// when the service passes it through unparsed.
type ClassifyResponse struct {
	Category string `json:"category"`
	Subject  string `json:"subject"`
	Output   string `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
}

// HealthResponse is the classifier health reply
type HealthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model,omitempty"`
}
