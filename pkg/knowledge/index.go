package knowledge

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Document is one markdown file inside a space.
type Document struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Space is one knowledge space: a subdirectory of the root holding
// markdown documents.
type Space struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Documents []Document `json:"documents"`
}

// Index scans a root directory into knowledge spaces. Each immediate
// subdirectory is a space; its .md files are the space's documents.
type Index struct {
	root   string
	spaces map[string]*Space
	mu     sync.RWMutex
}

// NewIndex builds and scans an index rooted at dir.
func NewIndex(root string) (*Index, error) {
	idx := &Index{
		root:   root,
		spaces: make(map[string]*Space),
	}
	if err := idx.Reindex(); err != nil {
		return nil, err
	}
	return idx, nil
}

// Root returns the indexed directory.
func (idx *Index) Root() string {
	return idx.root
}

// Reindex rescans the root directory from scratch.
func (idx *Index) Reindex() error {
	entries, err := os.ReadDir(idx.root)
	if err != nil {
		return fmt.Errorf("failed to read knowledge root %s: %w", idx.root, err)
	}

	spaces := make(map[string]*Space)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		space, err := scanSpace(idx.root, entry.Name())
		if err != nil {
			return err
		}
		spaces[space.ID] = space
	}

	idx.mu.Lock()
	idx.spaces = spaces
	idx.mu.Unlock()

	log.Debug().Str("root", idx.root).Int("spaces", len(spaces)).Msg("Knowledge index rebuilt")

	return nil
}

// Space returns one space by id, or nil when unknown.
func (idx *Index) Space(id string) *Space {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	space, ok := idx.spaces[id]
	if !ok {
		return nil
	}
	return cloneSpace(space)
}

// Spaces returns all spaces sorted by id.
func (idx *Index) Spaces() []Space {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]Space, 0, len(idx.spaces))
	for _, space := range idx.spaces {
		out = append(out, *cloneSpace(space))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Render formats the named spaces as a markdown index suitable for a
// system prompt. Unknown ids are skipped; an empty selection renders an
// empty string.
func (idx *Index) Render(spaceIDs []string) string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var b strings.Builder
	for _, id := range spaceIDs {
		space, ok := idx.spaces[id]
		if !ok {
			continue
		}

		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("## " + space.Title + "\n")
		for _, doc := range space.Documents {
			b.WriteString("- " + doc.Name + "\n")
		}
	}
	return b.String()
}

func scanSpace(root, id string) (*Space, error) {
	dir := filepath.Join(root, id)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge space %s: %w", id, err)
	}

	space := &Space{ID: id, Title: titleFor(id)}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".md") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}

		space.Documents = append(space.Documents, Document{
			Name: entry.Name(),
			Path: filepath.Join(dir, entry.Name()),
			Size: info.Size(),
		})
	}

	sort.Slice(space.Documents, func(i, j int) bool {
		return space.Documents[i].Name < space.Documents[j].Name
	})

	return space, nil
}

// titleFor turns a directory name like "release-notes" into "Release Notes".
func titleFor(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool {
		return r == '-' || r == '_'
	})
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	if len(words) == 0 {
		return id
	}
	return strings.Join(words, " ")
}

func cloneSpace(space *Space) *Space {
	out := &Space{
		ID:        space.ID,
		Title:     space.Title,
		Documents: make([]Document, len(space.Documents)),
	}
	copy(out.Documents, space.Documents)
	return out
}
