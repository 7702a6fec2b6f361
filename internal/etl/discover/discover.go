package discover

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/ans-cli/internal/fetcher"
	"github.com/sells-group/ans-cli/internal/model"
)

var (
	yearPattern       = regexp.MustCompile(`^\d{4}/?$`)
	quarterDirPattern = regexp.MustCompile(`(?i)^([1-4])T/?$`)
	quarterZipPattern = regexp.MustCompile(`(?i)^([1-4])T\d*\.zip$`)
)

// Discoverer walks the year/quarter listing tree.
type Discoverer struct {
	fetcher fetcher.Fetcher
}

// NewDiscoverer creates a Discoverer that reads listings through f.
func NewDiscoverer(f fetcher.Fetcher) *Discoverer {
	return &Discoverer{fetcher: f}
}

// ClassifyLink reports whether href names a quarter folder ("1T/") or a
// quarter archive ("1T2024.zip"). The folder pattern is checked first.
func ClassifyLink(href string) (quarter string, kind model.SourceKind, ok bool) {
	if m := quarterDirPattern.FindStringSubmatch(href); m != nil {
		return m[1] + "T", model.SourceFolder, true
	}
	if m := quarterZipPattern.FindStringSubmatch(href); m != nil {
		return m[1] + "T", model.SourceFile, true
	}
	return "", "", false
}

// Discover returns at most limit reporting periods, most recent first.
//
// Years are visited newest first and older years are only listed while the
// limit is unfilled. Within a year, when both a folder and an archive exist for
// the same quarter, the link appearing later in the listing wins.
// Unreachable pages are logged and contribute nothing.
func (d *Discoverer) Discover(ctx context.Context, baseURL string, limit int) []model.DiscoveredQuarter {
	log := zap.L().With(zap.String("component", "discover.listing"))
	if limit <= 0 {
		return nil
	}

	baseURL = dirURL(baseURL)
	links, err := fetchLinks(ctx, d.fetcher, baseURL)
	if err != nil {
		log.Warn("listing unreachable", zap.String("url", baseURL), zap.Error(err))
		return nil
	}

	years := parseYears(links)
	log.Info("years found", zap.Strings("years", years))

	var found []model.DiscoveredQuarter
	for _, year := range years {
		if len(found) >= limit || ctx.Err() != nil {
			break
		}

		yearURL, err := resolve(baseURL, year+"/")
		if err != nil {
			log.Warn("skipping year", zap.String("year", year), zap.Error(err))
			continue
		}

		yearLinks, err := fetchLinks(ctx, d.fetcher, yearURL)
		if err != nil {
			log.Warn("year listing unreachable", zap.String("url", yearURL), zap.Error(err))
			continue
		}

		byQuarter := make(map[string]model.DiscoveredQuarter)
		for _, href := range yearLinks {
			quarter, kind, ok := ClassifyLink(href)
			if !ok {
				continue
			}
			u, err := resolve(yearURL, href)
			if err != nil {
				log.Debug("unresolvable link", zap.String("href", href), zap.Error(err))
				continue
			}
			q := model.DiscoveredQuarter{Year: year, Quarter: quarter, Kind: kind, URL: u}
			if kind == model.SourceFile {
				q.FileName = href
			}
			byQuarter[quarter] = q
		}

		for _, label := range model.QuarterLabels {
			if len(found) >= limit {
				break
			}
			if q, ok := byQuarter[label]; ok {
				found = append(found, q)
			}
		}
	}

	return found
}

// parseYears extracts distinct year links and orders them newest first.
func parseYears(links []string) []string {
	seen := make(map[string]bool)
	var years []string
	for _, href := range links {
		if !yearPattern.MatchString(href) {
			continue
		}
		y := strings.TrimSuffix(href, "/")
		if seen[y] {
			continue
		}
		seen[y] = true
		years = append(years, y)
	}
	sort.SliceStable(years, func(i, j int) bool {
		a, _ := strconv.Atoi(years[i])
		b, _ := strconv.Atoi(years[j])
		return a > b
	})
	return years
}
