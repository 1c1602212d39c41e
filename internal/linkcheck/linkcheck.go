// Package linkcheck verifies internal links and anchors in the generated
// site. External links are out of scope; a static blog build should not
// depend on the network.
package linkcheck

import (
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
)

// Issue describes one broken internal reference.
type Issue struct {
	// Page is the site-relative path of the HTML file containing the link.
	Page string
	// Href is the raw link destination.
	Href string
	// Reason explains why the link is considered broken.
	Reason string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %q %s", i.Page, i.Href, i.Reason)
}

type page struct {
	links   []string
	anchors map[string]struct{}
}

// CheckDir parses every .html file under root and reports internal links that
// resolve to no file and anchor references that resolve to no element id.
func CheckDir(root string) ([]Issue, error) {
	pages := map[string]*page{}
	files := map[string]struct{}{}

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		files[rel] = struct{}{}

		if strings.EqualFold(filepath.Ext(p), ".html") {
			pg, err := parsePage(p)
			if err != nil {
				return fmt.Errorf("parsing %s: %w", rel, err)
			}
			pages[rel] = pg
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var issues []Issue
	for rel, pg := range pages {
		for _, href := range pg.links {
			if issue := checkLink(rel, href, files, pages); issue != nil {
				issues = append(issues, *issue)
			}
		}
	}
	return issues, nil
}

func parsePage(path string) (*page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return nil, err
	}

	pg := &page{anchors: map[string]struct{}{}}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, attr := range n.Attr {
				switch {
				case attr.Key == "id":
					pg.anchors[attr.Val] = struct{}{}
				case attr.Key == "href" && n.Data == "a":
					pg.links = append(pg.links, attr.Val)
				case attr.Key == "src" && (n.Data == "img" || n.Data == "script"):
					pg.links = append(pg.links, attr.Val)
				case attr.Key == "href" && n.Data == "link":
					pg.links = append(pg.links, attr.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return pg, nil
}

// checkLink resolves one href from a page; nil means the link is fine.
func checkLink(fromPage, href string, files map[string]struct{}, pages map[string]*page) *Issue {
	u, err := url.Parse(href)
	if err != nil {
		return &Issue{Page: fromPage, Href: href, Reason: "is not a valid URL"}
	}
	if u.Scheme != "" || u.Host != "" {
		return nil // external
	}

	target := u.Path
	if target == "" {
		// same-page anchor
		if u.Fragment == "" {
			return nil
		}
		if _, ok := pages[fromPage].anchors[u.Fragment]; !ok {
			return &Issue{Page: fromPage, Href: href, Reason: "references a missing anchor"}
		}
		return nil
	}

	resolved := resolvePath(fromPage, target)
	var candidates []string
	switch {
	case strings.HasSuffix(target, "/") || resolved == "." || resolved == "":
		candidates = []string{path.Join(resolved, "index.html")}
	case path.Ext(resolved) == "":
		candidates = []string{resolved, resolved + "/index.html", resolved + ".html"}
	default:
		candidates = []string{resolved}
	}

	var found string
	for _, c := range candidates {
		if _, ok := files[c]; ok {
			found = c
			break
		}
	}
	if found == "" {
		return &Issue{Page: fromPage, Href: href, Reason: "resolves to no file"}
	}

	if u.Fragment != "" {
		if pg, ok := pages[found]; ok {
			if _, ok := pg.anchors[u.Fragment]; !ok {
				return &Issue{Page: fromPage, Href: href, Reason: "references a missing anchor"}
			}
		}
	}
	return nil
}

// resolvePath turns an href into a root-relative file path.
func resolvePath(fromPage, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(path.Clean(target), "/")
	}
	base := path.Dir(fromPage)
	return strings.TrimPrefix(path.Clean(path.Join(base, target)), "/")
}
