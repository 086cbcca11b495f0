package protocol

import (
	"encoding/json"
	"strings"
)

// ImagePlaceholder replaces image segments when a message is flattened.
const ImagePlaceholder = "[图片]"

type segment struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// flattenMessage extracts the plain text of a message payload. Array-format
// payloads are flattened segment by segment; anything else falls back to the
// raw string form.
func flattenMessage(evt *messageEvent) string {
	if evt.MessageFormat == "array" {
		var segs []segment
		if err := json.Unmarshal(evt.Message, &segs); err == nil {
			return flattenSegments(segs)
		}
	}

	var plain string
	if err := json.Unmarshal(evt.Message, &plain); err == nil && plain != "" {
		return plain
	}

	// some implementations send arrays without announcing the format
	var segs []segment
	if err := json.Unmarshal(evt.Message, &segs); err == nil {
		return flattenSegments(segs)
	}

	return evt.RawMessage
}

func flattenSegments(segs []segment) string {
	var builder strings.Builder
	for _, seg := range segs {
		switch seg.Type {
		case "text":
			if text, ok := seg.Data["text"].(string); ok {
				builder.WriteString(text)
			}
		case "at":
			if name, ok := seg.Data["name"].(string); ok && name != "" {
				builder.WriteString("@" + name + " ")
			} else if qq, ok := seg.Data["qq"].(string); ok {
				builder.WriteString("@" + qq + " ")
			}
		case "image":
			builder.WriteString(ImagePlaceholder + " ")
		default:
			// unrecognized segment types are ignored
		}
	}
	return strings.TrimSpace(builder.String())
}
