package schema

// Translator resolves a label reference to a human-readable label in the
// active locale. Plain labels pass through unchanged.
type Translator interface {
	Translate(label string) string
}

// passthroughTranslator returns every label unchanged
type passthroughTranslator struct{}

// NewPassthroughTranslator returns a Translator that is a no-op for plain
// labels, the default when no locale catalog is wired in.
func NewPassthroughTranslator() Translator {
	return passthroughTranslator{}
}

// Translate implements the Translator interface
func (passthroughTranslator) Translate(label string) string { return label }
