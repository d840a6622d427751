package plan

// PageBinding ties an HTML template to the chunks of exactly one bundle.
type PageBinding struct {
	BundleName string   `json:"bundleName" yaml:"bundleName"`
	Template   string   `json:"template" yaml:"template"`
	Filename   string   `json:"filename" yaml:"filename"`
	Inject     bool     `json:"inject" yaml:"inject"`
	Chunks     []string `json:"chunks" yaml:"chunks"`
}

func (b PageBinding) clone() PageBinding {
	b.Chunks = append([]string(nil), b.Chunks...)
	return b
}

// synthesizePageBindings emits one binding per bundle with a template. The
// chunk filter is always the bundle's own name so that extension pages never
// embed another bundle's output.
func synthesizePageBindings(bundles []Bundle) []PageBinding {
	bindings := make([]PageBinding, 0, len(bundles))
	for _, b := range bundles {
		if b.IndexHTML == "" {
			continue
		}
		bindings = append(bindings, PageBinding{
			BundleName: b.Name,
			Template:   b.IndexHTML,
			Filename:   b.Name + ".html",
			Inject:     true,
			Chunks:     []string{b.Name},
		})
	}
	return bindings
}
