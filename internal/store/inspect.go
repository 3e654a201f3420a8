package store

import (
	"encoding/base64"
	"encoding/json"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/noah-isme/judging-portal/internal/models"
)

// InlineImage is an entry field carrying an embedded data URI.
type InlineImage struct {
	EntryID string `json:"entryId"`
	Field   string `json:"field"`
	MIME    string `json:"mime"`
	Bytes   int    `json:"bytes"`
}

// PayloadSize returns the encoded size of the document in bytes.
func PayloadSize(doc models.Document) int {
	payload, err := json.Marshal(doc)
	if err != nil {
		return 0
	}
	return len(payload)
}

// InspectPayload lists inline data URIs in entries, largest first. It is
// used to explain a payload-too-large rejection.
func InspectPayload(doc models.Document) []InlineImage {
	var out []InlineImage
	for _, entry := range doc.Teams {
		fields := map[string]string{
			"thumbnail":   entry.Thumbnail,
			"description": entry.Description,
		}
		for field, value := range fields {
			data, ok := DecodeDataURI(value)
			if !ok {
				continue
			}
			out = append(out, InlineImage{
				EntryID: entry.ID,
				Field:   field,
				MIME:    mimetype.Detect(data).String(),
				Bytes:   len(data),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bytes != out[j].Bytes {
			return out[i].Bytes > out[j].Bytes
		}
		return out[i].EntryID < out[j].EntryID
	})
	return out
}

// DecodeDataURI extracts the payload of the first data URI in value.
func DecodeDataURI(value string) ([]byte, bool) {
	start := strings.Index(value, "data:")
	if start < 0 {
		return nil, false
	}
	rest := value[start+len("data:"):]
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return nil, false
	}
	header, payload := rest[:comma], rest[comma+1:]
	if end := strings.IndexAny(payload, "\"') \n"); end >= 0 {
		payload = payload[:end]
	}
	if !strings.HasSuffix(header, ";base64") {
		return []byte(payload), true
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			return nil, false
		}
	}
	return data, true
}
