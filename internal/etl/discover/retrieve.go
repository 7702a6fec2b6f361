package discover

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ans-cli/internal/fetcher"
	"github.com/sells-group/ans-cli/internal/model"
)

// Outcome classifies what Fetch did for one period.
type Outcome string

const (
	OutcomeDownloaded Outcome = "downloaded"
	OutcomeSkipped    Outcome = "skipped"    // archive already on disk
	OutcomeNoArchive  Outcome = "no_archive" // folder listing had no .zip
)

// RetrieveSummary counts retrieval outcomes across a run.
type RetrieveSummary struct {
	Downloaded int      `yaml:"downloaded"`
	Skipped    int      `yaml:"skipped"`
	Missing    int      `yaml:"missing"`
	Failed     int      `yaml:"failed"`
	Paths      []string `yaml:"paths,omitempty"`
}

// Retriever downloads one archive per discovered period into rawDir.
type Retriever struct {
	fetcher fetcher.Fetcher
	rawDir  string
}

// NewRetriever creates a Retriever writing into rawDir.
func NewRetriever(f fetcher.Fetcher, rawDir string) *Retriever {
	return &Retriever{fetcher: f, rawDir: rawDir}
}

// TargetPath returns where the archive for q is stored.
func (r *Retriever) TargetPath(q model.DiscoveredQuarter) string {
	return filepath.Join(r.rawDir, q.ArchiveName())
}

// Fetch downloads the archive for q unless it is already present.
// Folder periods download the first .zip found in the folder listing.
func (r *Retriever) Fetch(ctx context.Context, q model.DiscoveredQuarter) (Outcome, error) {
	log := zap.L().With(zap.String("component", "discover.retrieve"), zap.String("period", q.String()))
	target := r.TargetPath(q)

	if _, err := os.Stat(target); err == nil {
		log.Info("archive already present, skipping", zap.String("path", target))
		return OutcomeSkipped, nil
	}

	archiveURL := q.URL
	if q.Kind == model.SourceFolder {
		folderURL := dirURL(q.URL)
		links, err := fetchLinks(ctx, r.fetcher, folderURL)
		if err != nil {
			return "", eris.Wrapf(err, "discover: list folder %s", folderURL)
		}
		archiveURL = ""
		for _, href := range links {
			if strings.HasSuffix(strings.ToLower(href), ".zip") {
				archiveURL, err = resolve(folderURL, href)
				if err != nil {
					return "", err
				}
				break
			}
		}
		if archiveURL == "" {
			log.Warn("folder has no archive", zap.String("url", folderURL))
			return OutcomeNoArchive, nil
		}
	}

	log.Info("downloading archive", zap.String("url", archiveURL), zap.String("path", target))
	n, err := r.fetcher.DownloadToFile(ctx, archiveURL, target)
	if err != nil {
		return "", eris.Wrapf(err, "discover: download %s", archiveURL)
	}
	log.Info("download complete", zap.Int64("bytes", n))
	return OutcomeDownloaded, nil
}

// FetchAll retrieves every period sequentially. A failure on one period is
// logged and counted; the remaining periods are still attempted.
func (r *Retriever) FetchAll(ctx context.Context, quarters []model.DiscoveredQuarter) (RetrieveSummary, error) {
	var sum RetrieveSummary
	if err := os.MkdirAll(r.rawDir, 0o755); err != nil {
		return sum, eris.Wrapf(err, "discover: create raw dir %s", r.rawDir)
	}

	for _, q := range quarters {
		if ctx.Err() != nil {
			return sum, eris.Wrap(ctx.Err(), "discover: retrieval cancelled")
		}
		outcome, err := r.Fetch(ctx, q)
		if err != nil {
			zap.L().Warn("retrieval failed", zap.String("period", q.String()), zap.Error(err))
			sum.Failed++
			continue
		}
		switch outcome {
		case OutcomeDownloaded:
			sum.Downloaded++
			sum.Paths = append(sum.Paths, r.TargetPath(q))
		case OutcomeSkipped:
			sum.Skipped++
			sum.Paths = append(sum.Paths, r.TargetPath(q))
		case OutcomeNoArchive:
			sum.Missing++
		}
	}
	return sum, nil
}
