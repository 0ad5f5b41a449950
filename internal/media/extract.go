package media

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
)

// Kind tells how an asset is delivered.
type Kind int

const (
	KindPhoto Kind = iota
	KindAnimation
)

func (k Kind) String() string {
	if k == KindAnimation {
		return "animation"
	}
	return "photo"
}

// Asset is an image embedded in a post that exists on the local filesystem.
type Asset struct {
	Path string
	Kind Kind
	// Converted is set for temporary files produced by the Converter.
	Converted bool
}

// Extract scans cooked post HTML for <img> elements and returns the local
// images they reference, in document order. Emoji images and images hosted
// elsewhere are skipped. A .gif with the "animated" class is an animation,
// everything else is a photo.
func Extract(cooked, publicRoot string) ([]Asset, error) {
	root, err := html.Parse(strings.NewReader(cooked))
	if err != nil {
		return nil, fmt.Errorf("failed to parse post html: %w", err)
	}
	publicRoot = filepath.Clean(publicRoot)

	var out []Asset
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n == nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "img" {
			if asset, ok := assetFor(n, publicRoot); ok {
				out = append(out, asset)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out, nil
}

func assetFor(n *html.Node, publicRoot string) (Asset, bool) {
	if strings.Contains(attr(n, "class"), "emoji") {
		return Asset{}, false
	}
	src := strings.TrimSpace(attr(n, "src"))
	if src == "" {
		return Asset{}, false
	}
	u, err := url.Parse(src)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path == "" {
		return Asset{}, false
	}

	local := filepath.Join(publicRoot, filepath.Clean("/"+u.Path))
	if rel, err := filepath.Rel(publicRoot, local); err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return Asset{}, false
	}

	kind := KindPhoto
	if strings.ToLower(filepath.Ext(local)) == ".gif" && hasClass(n, "animated") {
		kind = KindAnimation
	}
	return Asset{Path: local, Kind: kind}, true
}

func hasClass(n *html.Node, want string) bool {
	for _, part := range strings.Fields(attr(n, "class")) {
		if part == want {
			return true
		}
	}
	return false
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// Split separates photos from animations, keeping order.
func Split(assets []Asset) (photos, animations []Asset) {
	for _, a := range assets {
		if a.Kind == KindAnimation {
			animations = append(animations, a)
		} else {
			photos = append(photos, a)
		}
	}
	return photos, animations
}
