// Package pages renders the HTML page of each bundle from its template and
// page binding.
package pages

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	planerrors "github.com/conneroisu/extplan/internal/errors"
	"github.com/conneroisu/extplan/internal/plan"
)

// Assets lists the emitted files a page links to, as paths relative to the
// public path.
type Assets struct {
	Scripts     []string
	Stylesheets []string
}

// ChunkAssets returns the assets for a binding's chunks following the plan's
// output naming. Chunks that hasChunk rejects are left out, since nothing is
// emitted for them. Stylesheets are only listed when hasStylesheet reports
// that the engine emitted one. A nil hasChunk accepts every chunk.
func ChunkAssets(binding plan.PageBinding, hasChunk, hasStylesheet func(chunk string) bool) Assets {
	var assets Assets
	for _, chunk := range binding.Chunks {
		if hasChunk != nil && !hasChunk(chunk) {
			continue
		}
		assets.Scripts = append(assets.Scripts, "js/"+chunk+".js")
		if hasStylesheet != nil && hasStylesheet(chunk) {
			assets.Stylesheets = append(assets.Stylesheets, "js/"+chunk+".css")
		}
	}
	return assets
}

// Interpolate replaces %KEY% placeholders with values from raw. Unknown
// placeholders are left alone.
func Interpolate(template string, raw map[string]string) string {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, "%"+k+"%", raw[k])
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// Render interpolates the template and, when the binding asks for
// injection, links the assets: stylesheets at the end of head and scripts at
// the end of body.
func Render(template []byte, binding plan.PageBinding, raw map[string]string, publicPath string, assets Assets) ([]byte, error) {
	doc, err := html.Parse(strings.NewReader(Interpolate(string(template), raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	if binding.Inject {
		if !strings.HasSuffix(publicPath, "/") {
			publicPath += "/"
		}
		if head := findElement(doc, atom.Head); head != nil {
			for _, href := range assets.Stylesheets {
				head.AppendChild(element(atom.Link, html.Attribute{Key: "href", Val: publicPath + href}, html.Attribute{Key: "rel", Val: "stylesheet"}))
			}
		}
		body := findElement(doc, atom.Body)
		if body == nil {
			return nil, fmt.Errorf("template for bundle %q has no body", binding.BundleName)
		}
		for _, src := range assets.Scripts {
			body.AppendChild(element(atom.Script, html.Attribute{Key: "src", Val: publicPath + src}))
		}
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, fmt.Errorf("failed to render HTML: %w", err)
	}
	return buf.Bytes(), nil
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: a,
		Data:     a.String(),
		Attr:     attrs,
	}
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

// Page is one emitted page.
type Page struct {
	Bundle string
	Path   string
}

// Emit renders every page binding of bp into the plan's output directory.
// Environment values come from the plan's interpolate-html directive.
func Emit(bp *plan.BuildPlan) ([]Page, error) {
	var raw map[string]string
	if p, ok := bp.Plugin(plan.PluginInterpolateHTML); ok {
		raw = p.Options
	}
	out := bp.Output()
	entries := bp.Entry()

	hasChunk := func(chunk string) bool {
		_, ok := entries.Get(chunk)
		return ok
	}
	hasStylesheet := func(chunk string) bool {
		_, err := os.Stat(filepath.Join(out.Path, "js", chunk+".css"))
		return err == nil
	}

	var pages []Page
	for _, binding := range bp.PageBindings() {
		template, err := os.ReadFile(binding.Template)
		if err != nil {
			return nil, planerrors.NewIOError(planerrors.ErrCodeFileNotFound, "cannot read page template", err).
				WithBundle(binding.BundleName).
				WithContext("file", binding.Template)
		}

		rendered, err := Render(template, binding, raw, out.PublicPath, ChunkAssets(binding, hasChunk, hasStylesheet))
		if err != nil {
			return nil, planerrors.NewBuildError(planerrors.ErrCodeBuildFailed, err.Error(), err).WithBundle(binding.BundleName)
		}

		target := filepath.Join(out.Path, binding.Filename)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, planerrors.WrapIO(err, planerrors.ErrCodeBuildFailed, "cannot create output directory")
		}
		if err := os.WriteFile(target, rendered, 0o644); err != nil {
			return nil, planerrors.WrapIO(err, planerrors.ErrCodeBuildFailed, "cannot write page").WithBundle(binding.BundleName)
		}
		pages = append(pages, Page{Bundle: binding.BundleName, Path: target})
	}
	return pages, nil
}
