package types

// ModelDescriptor describes one model offered by a provider.
type ModelDescriptor struct {
	ID            string `json:"id"`
	DisplayName   string `json:"displayName"`
	SupportsTools bool   `json:"supportsTools"`
}

// ModelCatalog maps a provider name to its ordered model list.
type ModelCatalog map[string][]ModelDescriptor

// Find returns the descriptor for model under provider.
func (c ModelCatalog) Find(provider, model string) (ModelDescriptor, bool) {
	for _, m := range c[provider] {
		if m.ID == model {
			return m, true
		}
	}
	return ModelDescriptor{}, false
}
