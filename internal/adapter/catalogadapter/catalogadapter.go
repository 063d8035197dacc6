package catalogadapter

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"path/filepath"

	"github.com/jgivc/harvester/internal/common"
	"github.com/jgivc/harvester/internal/entity"
	"github.com/jgivc/harvester/internal/util"
	"github.com/spf13/afero"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
	"go.abhg.dev/goldmark/frontmatter"
)

// Frontmatter is the YAML header of the source catalog. The markdown body
// below it is free-form operator notes and is ignored.
type Frontmatter struct {
	Title   string   `yaml:"title"`
	Sources []Source `yaml:"sources"`
}

type Source struct {
	Category string `yaml:"category"`
	URL      string `yaml:"url"`
	Filename string `yaml:"filename"` // optional, derived from the URL when empty
	Hash     string `yaml:"hash"`     // optional pre-known content hash
}

// catalogAdapter turns the source catalog file into the candidate list for
// one run. It stands in for the page-crawling discovery side of the system:
// the orchestrator only ever sees the flattened candidates.
type catalogAdapter struct {
	fs      afero.Fs
	md      goldmark.Markdown
	dataDir string
	log     *slog.Logger
}

func NewAdapter(dataDir string, log *slog.Logger) *catalogAdapter {
	return NewAdapterWithFS(afero.NewOsFs(), dataDir, log)
}

func NewAdapterWithFS(fs afero.Fs, dataDir string, log *slog.Logger) *catalogAdapter {
	md := goldmark.New(
		goldmark.WithExtensions(
			&frontmatter.Extender{},
		),
	)

	return &catalogAdapter{
		fs:      fs,
		md:      md,
		dataDir: dataDir,
		log:     log.With(slog.String("item", "CatalogAdapter")),
	}
}

// Candidates parses the catalog at catalogPath and returns one candidate per
// source entry. Logical IDs are stable across runs: a hash of URL+category.
func (a *catalogAdapter) Candidates(catalogPath string) ([]entity.CandidateFile, error) {
	data, err := afero.ReadFile(a.fs, catalogPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read catalog: %w", err)
	}

	pctx := parser.NewContext()
	var buf bytes.Buffer
	if err := a.md.Convert(data, &buf, parser.WithContext(pctx)); err != nil {
		return nil, fmt.Errorf("cannot parse catalog: %w", err)
	}

	fmData := frontmatter.Get(pctx)
	if fmData == nil {
		return nil, fmt.Errorf("catalog has no frontmatter")
	}

	var fm Frontmatter
	if err := fmData.Decode(&fm); err != nil {
		return nil, fmt.Errorf("cannot decode catalog frontmatter: %w", err)
	}

	if len(fm.Sources) < 1 {
		return nil, common.ErrNoCandidatesFound
	}

	candidates := make([]entity.CandidateFile, 0, len(fm.Sources))
	for i, src := range fm.Sources {
		candidate, err := a.toCandidate(src)
		if err != nil {
			return nil, fmt.Errorf("catalog source %d: %w", i, err)
		}

		candidates = append(candidates, candidate)
	}

	a.log.Info("Catalog loaded", slog.String("title", fm.Title), slog.Int("candidates", len(candidates)))

	return candidates, nil
}

func (a *catalogAdapter) toCandidate(src Source) (entity.CandidateFile, error) {
	cat, err := entity.ParseCategory(src.Category)
	if err != nil {
		return entity.CandidateFile{}, err
	}

	if src.URL == "" {
		return entity.CandidateFile{}, fmt.Errorf("source has no url")
	}

	filename := src.Filename
	if filename == "" {
		u, err := url.Parse(src.URL)
		if err != nil {
			return entity.CandidateFile{}, fmt.Errorf("cannot parse url %q: %w", src.URL, err)
		}

		filename = path.Base(u.Path)
		if filename == "." || filename == "/" {
			return entity.CandidateFile{}, fmt.Errorf("cannot derive filename from %q", src.URL)
		}
	}

	key := src.URL + ":" + cat.String()

	return entity.CandidateFile{
		LogicalID:       util.GetIDFromString(&key),
		SourceURL:       src.URL,
		DestinationPath: filepath.Join(a.dataDir, cat.Subdir(), filename),
		Category:        cat,
		ExpectedHash:    src.Hash,
	}, nil
}
