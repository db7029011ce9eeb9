package markdown

import (
	"bytes"
	"fmt"

	"github.com/adrg/frontmatter"
)

// meta holds the frontmatter keys the compiler understands. Unknown keys are
// ignored.
type meta struct {
	Title string `yaml:"title" toml:"title" json:"title"`
	Deck  string `yaml:"deck" toml:"deck" json:"deck"`
}

// splitFrontmatter separates an optional frontmatter block from the Markdown
// body. Documents without one are returned unchanged.
func splitFrontmatter(source []byte) (meta, []byte, error) {
	var m meta
	body, err := frontmatter.Parse(bytes.NewReader(source), &m)
	if err != nil {
		return meta{}, nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	return m, body, nil
}
