package dto

// AnalyzeDiagnostic asks for an image to be diagnosed.
type AnalyzeDiagnostic struct {
	ImageURL string            `json:"image_url" validate:"required,max=500"`
	Metadata map[string]string `json:"metadata"`
}
