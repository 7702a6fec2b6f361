// Package discover locates the most recent reporting periods on the regulator's
// public file listing and downloads one archive per period.
package discover

import (
	"context"
	"io"
	"net/url"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"

	"github.com/sells-group/ans-cli/internal/fetcher"
)

// ParseLinks returns the href of every anchor in the document, in document order.
func ParseLinks(r io.Reader) ([]string, error) {
	z := html.NewTokenizer(r)
	var links []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return links, eris.Wrap(err, "discover: tokenize listing")
			}
			return links, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "href" && len(val) > 0 {
					links = append(links, string(val))
				}
				if !more {
					break
				}
			}
		}
	}
}

// fetchLinks downloads a listing page and returns its hrefs.
func fetchLinks(ctx context.Context, f fetcher.Fetcher, pageURL string) ([]string, error) {
	body, err := f.Download(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck
	return ParseLinks(body)
}

// resolve joins href onto base the way a browser would.
func resolve(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", eris.Wrapf(err, "discover: parse base url %q", base)
	}
	h, err := url.Parse(href)
	if err != nil {
		return "", eris.Wrapf(err, "discover: parse href %q", href)
	}
	return b.ResolveReference(h).String(), nil
}

// dirURL ensures the URL ends with a slash so relative links resolve beneath it.
func dirURL(u string) string {
	if u == "" || u[len(u)-1] == '/' {
		return u
	}
	return u + "/"
}
