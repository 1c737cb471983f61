package services

// LLMParameters are optional sampling parameters. A nil field leaves the provider default in place.
type LLMParameters struct {
	Temperature      *float32       `yaml:"temperature"`
	TopP             *float32       `yaml:"topP"`
	Stop             []string       `yaml:"stop"`
	PresencePenalty  *float32       `yaml:"presencePenalty"`
	Seed             *int           `yaml:"seed"`
	FrequencyPenalty *float32       `yaml:"frequencyPenalty"`
	LogitBias        map[string]int `yaml:"logitBias"`
	Logprobs         *bool          `yaml:"logprobs"`
	TopLogprobs      *int           `yaml:"topLogprobs"`
}
