package ai

import (
	"encoding/json"
	"strings"

	"github.com/amebo/notes-backend/services/providers"
)

// JSON shapes requested from every backend. Instruction text around them varies per vendor.
const (
	SummarySchema = `{
  "summary": "2-3 sentence summary",
  "keyPoints": ["key point 1", "key point 2"],
  "actionItems": ["action 1", "action 2"]
}`

	OrganizationSchema = `{
  "suggestedFolder": "folder name or null",
  "suggestedTags": ["tag1", "tag2"],
  "topics": ["topic1", "topic2"],
  "urgency": "low|medium|high"
}`

	TranscriptionSchema = `{
  "text": "The transcribed text...",
  "language": "en",
  "duration": 120
}`
)

// DefaultLanguage is reported when a transcription does not name one
const DefaultLanguage = "en"

// ChatSystemPrompt builds the assistant persona, grounded on notesContext when present
func ChatSystemPrompt(notesContext string) string {
	if strings.TrimSpace(notesContext) == "" {
		return "You are Amebo AI, a helpful assistant for note-taking and productivity."
	}
	return "You are Amebo AI, a helpful assistant for note-taking. Here is the relevant context from the user's notes:\n\n" + notesContext
}

// ParseSummary extracts a SummaryResult from raw model output.
// Fields with the wrong JSON type fall back to their zero value.
func ParseSummary(provider ProviderName, text string) (*SummaryResult, error) {
	fields, err := decodeObject(provider, text)
	if err != nil {
		return nil, err
	}

	return &SummaryResult{
		Summary:     stringField(fields, "summary"),
		KeyPoints:   stringsField(fields, "keyPoints"),
		ActionItems: stringsField(fields, "actionItems"),
	}, nil
}

// ParseOrganization extracts an OrganizationResult from raw model output
func ParseOrganization(provider ProviderName, text string) (*OrganizationResult, error) {
	fields, err := decodeObject(provider, text)
	if err != nil {
		return nil, err
	}

	result := &OrganizationResult{
		SuggestedTags: stringsField(fields, "suggestedTags"),
		Topics:        stringsField(fields, "topics"),
		Urgency:       NormalizeUrgency(stringField(fields, "urgency")),
	}
	folder := strings.TrimSpace(stringField(fields, "suggestedFolder"))
	if folder != "" && !strings.EqualFold(folder, "null") {
		result.SuggestedFolder = &folder
	}
	return result, nil
}

// ParseTranscription extracts a TranscriptionResult from raw model output.
// Output without a JSON object is taken as the transcript itself.
func ParseTranscription(provider ProviderName, text string) (*TranscriptionResult, error) {
	if _, ok := providers.ExtractJSONObject(text); !ok {
		return &TranscriptionResult{Text: text, Language: DefaultLanguage}, nil
	}

	fields, err := decodeObject(provider, text)
	if err != nil {
		return nil, err
	}

	result := &TranscriptionResult{
		Text:     stringField(fields, "text"),
		Duration: numberField(fields, "duration"),
		Language: stringField(fields, "language"),
	}
	if result.Language == "" {
		result.Language = DefaultLanguage
	}
	return result, nil
}

// NormalizeUrgency maps anything other than medium or high to low
func NormalizeUrgency(value string) Urgency {
	switch Urgency(strings.ToLower(strings.TrimSpace(value))) {
	case UrgencyMedium:
		return UrgencyMedium
	case UrgencyHigh:
		return UrgencyHigh
	default:
		return UrgencyLow
	}
}

func decodeObject(provider ProviderName, text string) (map[string]json.RawMessage, error) {
	object, ok := providers.ExtractJSONObject(text)
	if !ok {
		return nil, providers.NewProviderError(string(provider), providers.CodeParseError,
			"invalid JSON response from "+string(provider), 0, nil)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(object), &fields); err != nil {
		return nil, providers.NewProviderError(string(provider), providers.CodeParseError,
			"failed to parse model response", 0, err)
	}
	return fields, nil
}

func stringField(fields map[string]json.RawMessage, key string) string {
	var value string
	if raw, ok := fields[key]; ok {
		if err := json.Unmarshal(raw, &value); err != nil {
			return ""
		}
	}
	return value
}

// stringsField keeps the string entries of a list and drops the rest
func stringsField(fields map[string]json.RawMessage, key string) []string {
	values := []string{}
	var items []json.RawMessage
	if raw, ok := fields[key]; !ok || json.Unmarshal(raw, &items) != nil {
		return values
	}
	for _, item := range items {
		var value *string
		if json.Unmarshal(item, &value) == nil && value != nil {
			values = append(values, *value)
		}
	}
	return values
}

func numberField(fields map[string]json.RawMessage, key string) float64 {
	var value float64
	if raw, ok := fields[key]; ok {
		if err := json.Unmarshal(raw, &value); err != nil {
			return 0
		}
	}
	return value
}
