package llm

// GenerateOption is a functional option applied to GenerateOptions before a
// Generate or Stream call.
type GenerateOption func(*GenerateOptions)

// GenerateOptions collects the parameters providers read when building their
// API requests.
type GenerateOptions struct {
	// Temperature controls randomness. A nil pointer means unset.
	Temperature *float64
	// MaxTokens is the maximum number of tokens to generate. 0 means unset.
	MaxTokens int
	// JSONMode instructs the provider to request a JSON-object response.
	JSONMode bool
}

// ApplyOptions creates a GenerateOptions from a list of functional options.
func ApplyOptions(opts ...GenerateOption) GenerateOptions {
	var o GenerateOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = &t
	}
}

// WithMaxTokens sets the maximum number of tokens to generate.
func WithMaxTokens(n int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxTokens = n
	}
}

// WithJSONMode requests a JSON-object response from the provider.
func WithJSONMode() GenerateOption {
	return func(o *GenerateOptions) {
		o.JSONMode = true
	}
}
