package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// BufferStatus represents the processing status of a buffered news item.
// Values include BufferStatusPending and BufferStatusDead.
type BufferStatus string

const (
	// BufferStatusPending marks an item waiting for enrichment.
	BufferStatusPending BufferStatus = "pending"
	// BufferStatusDead marks an item that exhausted its enrichment retries.
	// Dead items stay in the buffer for operator inspection but are no
	// longer picked up by the enrichment cycle.
	BufferStatusDead BufferStatus = "dead"
)

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the slice.
//   - error: non-nil if marshaling fails.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// NewsItem is a freshly ingested article awaiting enrichment.
// It lives in the buffer table only; once enriched it is migrated to the
// permanent index and the buffer row is removed.
type NewsItem struct {
	ExternalID  string       `gorm:"type:text;primaryKey" json:"external_id"`
	URL         string       `gorm:"type:text;not null;index:idx_buffer_url" json:"url"`
	Title       string       `gorm:"type:text;not null" json:"title"`
	Content     string       `gorm:"type:text" json:"content"`
	Source      string       `gorm:"type:text;index:idx_buffer_source" json:"source"`
	Symbols     StringArray  `gorm:"type:text" json:"symbols"`
	PublishedAt time.Time    `gorm:"index:idx_buffer_published" json:"published_at"`
	Status      BufferStatus `gorm:"type:text;index:idx_buffer_status;default:pending" json:"status"`
	RetryCount  int          `gorm:"default:0" json:"retry_count"`
	LastError   string       `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// TableName returns the database table name for NewsItem.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (NewsItem) TableName() string {
	return "news_buffer"
}

// EnrichedArticle is a fully processed article in the permanent search index.
// The unique constraint on ExternalID is the durable source of truth for
// "has this ever been fully processed".
type EnrichedArticle struct {
	ExternalID  string      `gorm:"type:text;primaryKey" json:"external_id"`
	URL         string      `gorm:"type:text;not null;index:idx_index_url" json:"url"`
	Title       string      `gorm:"type:text;not null" json:"title"`
	Content     string      `gorm:"type:text" json:"content"`
	Source      string      `gorm:"type:text;index:idx_index_source" json:"source"`
	Symbols     StringArray `gorm:"type:text;index:idx_index_symbols" json:"symbols"`
	PublishedAt time.Time   `gorm:"index:idx_index_published" json:"published_at"`
	AISummary   string      `gorm:"type:text" json:"ai_summary"`
	AIInsights  string      `gorm:"type:text" json:"ai_insights"`
	AISentiment int         `json:"ai_sentiment"`
	Keywords    StringArray `gorm:"type:text" json:"keywords"`
	EnrichedAt  time.Time   `json:"enriched_at"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// TableName returns the database table name for EnrichedArticle.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (EnrichedArticle) TableName() string {
	return "news_index"
}

// Enrichment holds the AI-generated fields attached to an item during
// enrichment. Sentiment is clamped to [-100, 100] by the enrichment client;
// Keywords are deduplicated and lower-cased.
type Enrichment struct {
	Summary   string      `json:"summary"`
	Insights  string      `json:"insights"`
	Sentiment int         `json:"sentiment"`
	Keywords  StringArray `json:"keywords"`
}

// Enrich combines a buffered item with its AI-generated fields into the
// record stored in the permanent index.
// Parameters:
//   - enr: AI-generated fields for the item.
//   - at: enrichment timestamp.
// Returns:
//   - *EnrichedArticle: index record ready for migration.
func (n *NewsItem) Enrich(enr *Enrichment, at time.Time) *EnrichedArticle {
	return &EnrichedArticle{
		ExternalID:  n.ExternalID,
		URL:         n.URL,
		Title:       n.Title,
		Content:     n.Content,
		Source:      n.Source,
		Symbols:     n.Symbols,
		PublishedAt: n.PublishedAt,
		AISummary:   enr.Summary,
		AIInsights:  enr.Insights,
		AISentiment: enr.Sentiment,
		Keywords:    enr.Keywords,
		EnrichedAt:  at,
	}
}
