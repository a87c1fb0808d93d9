package models

// Content is a blog post produced by the voice pipeline. This service reads it and only ever
// writes PublishingResults and UpdatedAt.
type Content struct {
	ID                string             `gorm:"primaryKey;size:255" json:"id" dynamodbav:"id"`
	UserID            string             `gorm:"size:255;index" json:"userId" dynamodbav:"userId"`
	Title             string             `gorm:"size:500" json:"title" dynamodbav:"title"`
	Body              string             `gorm:"type:text" json:"body" dynamodbav:"body"`
	Tags              []string           `gorm:"serializer:json" json:"tags,omitempty" dynamodbav:"tags,omitempty"`
	Status            string             `gorm:"size:50" json:"status" dynamodbav:"status"`
	PublishingResults []PublishingRecord `gorm:"serializer:json" json:"publishingResults,omitempty" dynamodbav:"publishingResults,omitempty"`
	CreatedAt         string             `gorm:"size:40" json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt         string             `gorm:"size:40" json:"updatedAt" dynamodbav:"updatedAt"`
}

func (Content) TableName() string { return "contents" }

// PublishingRecord is one entry of a content's publishing history, one per platform.
type PublishingRecord struct {
	Platform    string `json:"platform" dynamodbav:"platform"`
	Success     bool   `json:"success" dynamodbav:"success"`
	PlatformURL string `json:"platformUrl,omitempty" dynamodbav:"platformUrl,omitempty"`
	PlatformID  string `json:"platformId,omitempty" dynamodbav:"platformId,omitempty"`
	Error       string `json:"error,omitempty" dynamodbav:"error,omitempty"`
	PublishedAt string `json:"publishedAt" dynamodbav:"publishedAt"`
}

// LastResult returns the recorded result for platform, if any.
func (c *Content) LastResult(platform string) (PublishingRecord, bool) {
	for i := len(c.PublishingResults) - 1; i >= 0; i-- {
		if c.PublishingResults[i].Platform == platform {
			return c.PublishingResults[i], true
		}
	}
	return PublishingRecord{}, false
}

// MergePublishingResults folds results into existing history. An existing entry for a platform
// is replaced at its index, new platforms are appended in the order given, and every merged
// entry is stamped with publishedAt.
func MergePublishingResults(existing []PublishingRecord, order []string, results map[string]PublishResult, publishedAt string) []PublishingRecord {
	merged := make([]PublishingRecord, len(existing))
	copy(merged, existing)

	for _, platform := range order {
		result, ok := results[platform]
		if !ok {
			continue
		}
		record := PublishingRecord{
			Platform:    platform,
			Success:     result.Success,
			PlatformURL: result.PlatformURL,
			PlatformID:  result.PlatformID,
			Error:       result.Error,
			PublishedAt: publishedAt,
		}

		replaced := false
		for i := range merged {
			if merged[i].Platform == platform {
				merged[i] = record
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, record)
		}
	}

	return merged
}
