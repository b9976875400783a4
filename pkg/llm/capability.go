package llm

// Capabilities declares what a provider adapter variant can do. A request
// asking for a capability the variant lacks fails fast with a Configuration
// error instead of silently degrading.
type Capabilities struct {
	Streaming bool `json:"streaming"`
	Tools     bool `json:"tools"`
	Reasoning bool `json:"reasoning"`
}

// Check verifies opts against c and returns a Configuration error naming the
// first missing capability.
func (c Capabilities) Check(opts Options) error {
	if opts.Stream && !c.Streaming {
		return Errorf(KindConfiguration, false, "provider does not support streaming")
	}
	if opts.EnableTools && !c.Tools {
		return Errorf(KindConfiguration, false, "provider does not support tool calls")
	}
	if opts.EnableReasoning && !c.Reasoning {
		return Errorf(KindConfiguration, false, "provider does not support reasoning output")
	}
	return nil
}
