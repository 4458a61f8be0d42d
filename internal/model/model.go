package model

import "time"

type Format string

const (
	FormatPDF      Format = "pdf"
	FormatImage    Format = "image"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatDOCX     Format = "docx"
	FormatICS      Format = "ics"
	FormatEML      Format = "eml"
	FormatXLSX     Format = "xlsx"
)

type Technique string

type PayloadStyle string

const (
	StyleObvious    PayloadStyle = "obvious"
	StyleCitation   PayloadStyle = "citation"
	StyleReviewer   PayloadStyle = "reviewer"
	StyleHelpful    PayloadStyle = "helpful"
	StyleAcademic   PayloadStyle = "academic"
	StyleCompliance PayloadStyle = "compliance"
	StyleDatasource PayloadStyle = "datasource"
)

var PayloadStyles = []PayloadStyle{
	StyleObvious, StyleCitation, StyleReviewer, StyleHelpful,
	StyleAcademic, StyleCompliance, StyleDatasource,
}

// PayloadType is the severity class of the embedded instruction.
type PayloadType string

const (
	TypeCallback            PayloadType = "callback"
	TypeExfilSummary        PayloadType = "exfil_summary"
	TypeExfilContext        PayloadType = "exfil_context"
	TypeInternalProbe       PayloadType = "internal_probe"
	TypeInstructionOverride PayloadType = "instruction_override"
	TypeToolAbuse           PayloadType = "tool_abuse"
	TypePersistence         PayloadType = "persistence"
)

var PayloadTypes = []PayloadType{
	TypeCallback, TypeExfilSummary, TypeExfilContext, TypeInternalProbe,
	TypeInstructionOverride, TypeToolAbuse, TypePersistence,
}

// Dangerous reports whether generating this payload type needs the
// elevated-authorization flag.
func (t PayloadType) Dangerous() bool {
	return t != TypeCallback
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// AtLeast orders HIGH > MEDIUM > LOW. Unknown labels rank below LOW.
func (c Confidence) AtLeast(min Confidence) bool {
	return c.rank() >= min.rank()
}

func (c Confidence) rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	}
	return 0
}

const (
	TokenPending = "PENDING"
	TokenReady   = "READY"
	TokenFailed  = "FAILED"
)

type CampaignConfig struct {
	Formats       []Format       `json:"formats"`
	Techniques    []Technique    `json:"techniques"`
	PayloadStyles []PayloadStyle `json:"payload_styles"`
	PayloadTypes  []PayloadType  `json:"payload_types"`
	CallbackURL   string         `json:"callback_url"`
	Dangerous     bool           `json:"dangerous"`
	Seed          int64          `json:"seed"`
}

type Campaign struct {
	ID        string
	Name      string
	Config    CampaignConfig
	CreatedAt time.Time
}

type Token struct {
	Value        string
	CampaignID   string
	Format       Format
	Technique    Technique
	PayloadStyle PayloadStyle
	PayloadType  PayloadType
	CallbackURL  string
	State        string
	ArtifactPath string
	SHA256       string
	SizeBytes    int64
	Error        string
	CreatedAt    time.Time
}

// TokenContext is what the scorer knows about a resolved token.
type TokenContext struct {
	Token             string
	CampaignID        string
	CampaignCreatedAt time.Time
	Format            Format
	Technique         Technique
	PayloadType       PayloadType
}

type Hit struct {
	ID          string
	Token       string
	CampaignID  string
	ReceivedAt  time.Time
	Method      string
	SourceIP    string
	UserAgent   string
	Confidence  Confidence
	Signals     []string
	Rationale   string
	RawMetadata HitMetadata
}

// HitMetadata is the allow-listed slice of the inbound request kept with a Hit.
type HitMetadata struct {
	Path        string            `json:"path"`
	Query       string            `json:"query,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	BodyPreview string            `json:"body_preview,omitempty"`
	BodyBytes   int64             `json:"body_bytes"`
}

type RejectedLookup struct {
	ID         int64
	Token      string
	SourceIP   string
	UserAgent  string
	Method     string
	ReceivedAt time.Time
}

type CampaignSummary struct {
	Campaign
	TokenCount  int
	ReadyCount  int
	FailedCount int
	HitCount    int
	LastHitAt   *time.Time
}
