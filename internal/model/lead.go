package model

// BusinessModel is the closed set of business model classifications.
type BusinessModel string

const (
	BusinessModelB2B     BusinessModel = "B2B"
	BusinessModelB2C     BusinessModel = "B2C"
	BusinessModelDTC     BusinessModel = "DTC"
	BusinessModelUnknown BusinessModel = "Unknown"
)

// Urgency expresses how soon the prospect needs help.
type Urgency string

const (
	UrgencyUrgent Urgency = "Urgent"
	UrgencyHigh   Urgency = "High"
	UrgencyMedium Urgency = "Medium"
	UrgencyLow    Urgency = "Low"
)

// Sentiment expresses the prospect's interest level.
type Sentiment string

const (
	SentimentHot     Sentiment = "Hot"
	SentimentNeutral Sentiment = "Neutral"
	SentimentCold    Sentiment = "Cold"
)

// ValidBusinessModel reports whether m is a member of the closed enum.
func ValidBusinessModel(m BusinessModel) bool {
	switch m {
	case BusinessModelB2B, BusinessModelB2C, BusinessModelDTC, BusinessModelUnknown:
		return true
	}
	return false
}

// ValidUrgency reports whether u is a member of the closed enum.
func ValidUrgency(u Urgency) bool {
	switch u {
	case UrgencyUrgent, UrgencyHigh, UrgencyMedium, UrgencyLow:
		return true
	}
	return false
}

// ValidSentiment reports whether s is a member of the closed enum.
func ValidSentiment(s Sentiment) bool {
	switch s {
	case SentimentHot, SentimentNeutral, SentimentCold:
		return true
	}
	return false
}

// Lead is the structured classification of one success-flagged Entry.
// The nine extracted fields are individually nullable; Priority is set by
// the primary classifier and the Audit* fields by the independent auditor.
type Lead struct {
	ID      string `json:"id"`
	FileID  string `json:"file_id"`
	EntryID string `json:"entry_id"`

	CompanyName   *string        `json:"company_name"`
	Industry      *string        `json:"industry"`
	BusinessModel *BusinessModel `json:"business_model"`
	Budget        *string        `json:"budget"`
	Revenue       *string        `json:"revenue"`
	GrowthGoal    *string        `json:"growth_goal"`
	Urgency       *Urgency       `json:"urgency"`
	Sentiment     *Sentiment     `json:"sentiment"`
	Notes         *string        `json:"notes"`

	Priority      *Priority `json:"priority"`
	AuditPriority *Priority `json:"audit_priority"`
	AuditNotes    *string   `json:"audit_notes"`
	AuditScore    *float64  `json:"audit_score"`
}

// LeadWithEntry pairs a Lead with the raw text of its originating Entry,
// as submitted to the auditor.
type LeadWithEntry struct {
	Lead
	RawInput string `json:"raw_input"`
}
