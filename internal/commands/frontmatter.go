package commands

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type frontmatter struct {
	Description string `yaml:"description"`
}

// parseFrontmatterDescription reads a leading `---`-delimited YAML block
// from a markdown file and extracts its `description:` field, if any. Any
// failure (missing file, no frontmatter, parse error) yields an empty
// string rather than propagating an error — description is cosmetic.
func parseFrontmatterDescription(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return extractFrontmatterDescription(string(data))
}

func extractFrontmatterDescription(content string) string {
	if !strings.HasPrefix(content, "---") {
		return ""
	}
	rest := content[3:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return ""
	}
	block := rest[:end]

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return ""
	}
	return fm.Description
}
