// Package assets embeds the Frame flows' images and copy, and serves the
// images over HTTP.
package assets

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed frames.yaml
var framesYAML []byte

//go:embed all:images
var imagesFS embed.FS

// FlowAssets is one flow's entry in frames.yaml.
type FlowAssets struct {
	Title        string            `yaml:"title"`
	AspectRatio  string            `yaml:"aspect_ratio"`
	Images       map[string]string `yaml:"images"`
	Placeholders map[string]string `yaml:"placeholders"`
	FAQ          []string          `yaml:"faq"`
}

type document struct {
	Flows map[string]FlowAssets `yaml:"flows"`
}

// Set resolves asset references to absolute URLs.
type Set struct {
	baseURL      string
	imageService string
	flows        map[string]FlowAssets
}

// Load parses the embedded frames.yaml. baseURL prefixes every image path;
// imageService, when set, renders product captions.
func Load(baseURL, imageService string) (*Set, error) {
	return Parse(framesYAML, baseURL, imageService)
}

// Parse builds a Set from a frames.yaml document.
func Parse(data []byte, baseURL, imageService string) (*Set, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse frames.yaml: %w", err)
	}
	if len(doc.Flows) == 0 {
		return nil, fmt.Errorf("frames.yaml defines no flows")
	}
	return &Set{
		baseURL:      strings.TrimRight(baseURL, "/"),
		imageService: strings.TrimRight(imageService, "/"),
		flows:        doc.Flows,
	}, nil
}

// Flow returns the assets of the named flow. Unknown flows have no assets.
func (s *Set) Flow(name string) Flow {
	return Flow{set: s, FlowAssets: s.flows[name]}
}

// Flow is a flow's assets bound to a Set.
type Flow struct {
	set *Set
	FlowAssets
}

// Image returns the URL of the image stored under key. A variant key such as
// "3.error" falls back to its base key "3".
func (f Flow) Image(key string) string {
	if p, ok := f.Images[key]; ok {
		return f.set.resolve(p)
	}
	if base, _, found := strings.Cut(key, "."); found {
		if p, ok := f.Images[base]; ok {
			return f.set.resolve(p)
		}
	}
	return ""
}

// StepImage returns the image of step, or its error variant.
func (f Flow) StepImage(step int, inputError bool) string {
	key := strconv.Itoa(step)
	if inputError {
		key += ".error"
	}
	return f.Image(key)
}

// Placeholder returns the input placeholder of step, empty when the step has no input.
func (f Flow) Placeholder(step int) string {
	return f.Placeholders[strconv.Itoa(step)]
}

// Slides is the number of FAQ slides.
func (f Flow) Slides() int { return len(f.FAQ) }

// Slide returns the image URL of FAQ slide i, wrapping out-of-range indexes.
func (f Flow) Slide(i int) string {
	n := len(f.FAQ)
	if n == 0 {
		return ""
	}
	return f.set.resolve(f.FAQ[((i%n)+n)%n])
}

// Product returns the image to show for a catalog product. With an image
// service configured, the title and caption are overlaid on the product
// image; otherwise the product image is used as-is, falling back to key.
func (f Flow) Product(imageURL, title, caption, key string) string {
	if f.set.imageService != "" && imageURL != "" {
		q := url.Values{}
		q.Set("image", imageURL)
		q.Set("title", title)
		if caption != "" {
			q.Set("caption", caption)
		}
		return f.set.imageService + "/render?" + q.Encode()
	}
	if imageURL != "" {
		return imageURL
	}
	return f.Image(key)
}

func (s *Set) resolve(p string) string {
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p
	}
	return s.baseURL + "/" + strings.TrimLeft(p, "/")
}

// Handler serves the embedded images. Mount it with http.StripPrefix.
func Handler() http.Handler {
	sub, err := fs.Sub(imagesFS, "images")
	if err != nil {
		panic("assets: failed to create sub filesystem: " + err.Error())
	}
	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		f, err := sub.Open(path)
		if err != nil || path == "" {
			http.NotFound(w, r)
			return
		}
		if closeErr := f.Close(); closeErr != nil {
			slog.Debug("assets: failed to close embedded file", "path", path, "error", closeErr)
		}
		w.Header().Set("Cache-Control", "public, max-age=3600")
		fileServer.ServeHTTP(w, r)
	})
}
