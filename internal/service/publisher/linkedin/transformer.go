package linkedin

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/voice2blog/courier/internal/models"
	"github.com/voice2blog/courier/pkg/util"
)

const blockSelector = "h1, h2, h3, h4, h5, h6, p, li, blockquote, pre"

// LinkedInTransformer renders content as plain share text.
type LinkedInTransformer struct {
	limit int
}

func NewLinkedInTransformer(limit int) *LinkedInTransformer {
	return &LinkedInTransformer{limit: limit}
}

// Transform returns title, body text and hashtags, truncated to the share limit. Hashtags are
// kept whole by shortening the body first.
func (t *LinkedInTransformer) Transform(content *models.Content) (string, error) {
	body, err := t.plainText(content.Body)
	if err != nil {
		return "", err
	}

	var hashtags []string
	for _, tag := range util.NormalizeTags(content.Tags, 0) {
		if h := util.Hashtag(tag); h != "" {
			hashtags = append(hashtags, h)
		}
	}

	var head strings.Builder
	if content.Title != "" {
		head.WriteString(content.Title)
		head.WriteString("\n\n")
	}
	head.WriteString(body)

	tail := ""
	if len(hashtags) > 0 {
		tail = "\n\n" + strings.Join(hashtags, " ")
	}

	budget := t.limit - len([]rune(tail))
	if budget < t.limit/2 {
		// Too many hashtags; drop them rather than the post.
		return util.TruncateRunes(head.String(), t.limit), nil
	}
	return util.TruncateRunes(head.String(), budget) + tail, nil
}

func (t *LinkedInTransformer) plainText(body string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse body: %w", err)
	}

	var blocks []string
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		// Nested blocks are visited on their own.
		if s.Find(blockSelector).Length() > 0 {
			return
		}
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text == "" {
			return
		}
		if goquery.NodeName(s) == "li" {
			text = "• " + text
		}
		blocks = append(blocks, text)
	})

	if len(blocks) == 0 {
		return strings.TrimSpace(doc.Text()), nil
	}
	return strings.Join(blocks, "\n\n"), nil
}
