package medium

import (
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"

	"github.com/voice2blog/courier/internal/models"
	"github.com/voice2blog/courier/pkg/util"
)

var htmlTagPattern = regexp.MustCompile(`<\s*[a-zA-Z][a-zA-Z0-9]*(\s[^>]*)?>`)

// MediumTransformer renders content as Medium flavoured markdown.
type MediumTransformer struct {
	converter *md.Converter
}

func NewMediumTransformer() *MediumTransformer {
	return &MediumTransformer{converter: md.NewConverter("", true, nil)}
}

// Transform returns the post body: a title heading, the optional cover image and the body.
// HTML bodies are converted to markdown, markdown bodies pass through.
func (t *MediumTransformer) Transform(content *models.Content, imageURL string) (string, error) {
	body := strings.TrimSpace(content.Body)
	if htmlTagPattern.MatchString(body) {
		converted, err := t.converter.ConvertString(body)
		if err != nil {
			return "", fmt.Errorf("failed to convert html: %w", err)
		}
		body = strings.TrimSpace(converted)
	}

	var b strings.Builder
	if content.Title != "" {
		b.WriteString("# ")
		b.WriteString(content.Title)
		b.WriteString("\n\n")
	}
	if imageURL != "" {
		fmt.Fprintf(&b, "![%s](%s)\n\n", content.Title, imageURL)
	}
	b.WriteString(body)

	return b.String(), nil
}

// Tags keeps the first max distinct tags.
func (t *MediumTransformer) Tags(tags []string, max int) []string {
	return util.NormalizeTags(tags, max)
}
