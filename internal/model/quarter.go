package model

import "fmt"

// SourceKind describes how a reporting period is published on the listing.
type SourceKind string

const (
	SourceFolder SourceKind = "folder" // Older layout: one folder per quarter (e.g. "1T/")
	SourceFile   SourceKind = "file"   // Newer layout: one archive per quarter (e.g. "1T2024.zip")
)

// QuarterLabels lists the reporting-period labels, most recent first.
var QuarterLabels = []string{"4T", "3T", "2T", "1T"}

// DiscoveredQuarter is one reporting period located on the regulator listing.
type DiscoveredQuarter struct {
	Year     string     `json:"year"`
	Quarter  string     `json:"quarter"`
	Kind     SourceKind `json:"kind"`
	URL      string     `json:"url"`
	FileName string     `json:"file_name,omitempty"`
}

// ArchiveName returns the period-addressed archive file name, e.g. "2024_1T.zip".
func (q DiscoveredQuarter) ArchiveName() string {
	return fmt.Sprintf("%s_%s.zip", q.Year, q.Quarter)
}

// String returns "2024/1T (file)".
func (q DiscoveredQuarter) String() string {
	return fmt.Sprintf("%s/%s (%s)", q.Year, q.Quarter, q.Kind)
}
