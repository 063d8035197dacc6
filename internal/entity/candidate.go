package entity

import "fmt"

const (
	CategoryH1B Category = iota
	CategoryH2A
	CategoryH2B
	CategoryI140
	CategoryI129
	CategoryI765
	CategoryI907
	CategoryI485
	CategoryEB
)

// Category is the dataset family a candidate belongs to. It decides the
// subdirectory a downloaded file lands in.
type Category int

var (
	categoryNames = [...]string{"H1B", "H2A", "H2B", "I-140", "I-129", "I-765", "I-907", "I-485", "EB"}
	categoryDirs  = [...]string{"h1b", "h2a", "h2b", "i140", "i129", "i765", "i907", "i485", "eb"}
)

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "unknown"
	}

	return categoryNames[c]
}

// Subdir returns the destination subdirectory for the category.
func (c Category) Subdir() string {
	if c < 0 || int(c) >= len(categoryDirs) {
		return "other"
	}

	return categoryDirs[c]
}

func ParseCategory(s string) (Category, error) {
	for i, name := range categoryNames {
		if name == s {
			return Category(i), nil
		}
	}

	return 0, fmt.Errorf("unknown category: %q", s)
}

func (c Category) MarshalYAML() (interface{}, error) {
	return c.String(), nil
}

func (c *Category) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	cat, err := ParseCategory(s)
	if err != nil {
		return err
	}

	*c = cat

	return nil
}

// CandidateFile describes one remote file proposed for download in a run.
// Candidates are produced by the discovery collaborator and are immutable
// within a run.
type CandidateFile struct {
	LogicalID       string   // Stable hash of source URL and category, survives remote renames
	SourceURL       string
	DestinationPath string   // Final path under the data dir, already category-partitioned
	Category        Category
	ExpectedHash    string   // Pre-fetch content hash when the remote exposes one, usually empty
}
