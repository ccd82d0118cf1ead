package openaicompat

// Known OpenAI-compatible embedding endpoints.
const (
	OpenAIBaseURL     = "https://api.openai.com/v1"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	DashScopeBaseURL  = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	OllamaBaseURL     = "http://localhost:11434/v1"
)

// DefaultBaseURL returns the API base for a known provider name, or "".
func DefaultBaseURL(provider string) string {
	switch provider {
	case "openai":
		return OpenAIBaseURL
	case "openrouter":
		return OpenRouterBaseURL
	case "dashscope":
		return DashScopeBaseURL
	case "ollama":
		return OllamaBaseURL
	default:
		return ""
	}
}
