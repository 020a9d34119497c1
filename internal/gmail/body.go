package gmail

import (
	"encoding/base64"
)

// partKind tags the MIME tree shapes the extraction algorithm
// distinguishes. Dispatching on a tag keeps the traversal flat instead
// of a deep conditional chain.
type partKind int

const (
	partLeaf partKind = iota
	partAlternative
	partRelated
	partMixed
	partOtherMultipart
)

func classify(p *MessagePart) partKind {
	switch p.MimeType {
	case "multipart/alternative":
		return partAlternative
	case "multipart/related":
		return partRelated
	case "multipart/mixed":
		return partMixed
	}
	if len(p.Parts) > 0 {
		return partOtherMultipart
	}
	return partLeaf
}

// ExtractBody walks a message's MIME tree and returns the best
// renderable body: HTML preferred, plain text otherwise. It is pure and
// total; a tree with no usable leaf yields the empty string and the
// caller falls back to the snippet.
func ExtractBody(payload *MessagePart) string {
	if payload == nil {
		return ""
	}

	// Inline data on the node itself wins over any children.
	if data := inlineData(payload); data != "" {
		return data
	}
	if len(payload.Parts) == 0 {
		return ""
	}

	switch classify(payload) {
	case partAlternative:
		return bestAlternative(payload.Parts)

	case partRelated:
		// The first child holds the actual body; siblings are inline
		// images and similar resources.
		return relatedBody(payload.Parts[0])

	case partMixed:
		// The first child is the body; siblings are attachments.
		first := payload.Parts[0]
		switch classify(first) {
		case partRelated:
			if len(first.Parts) > 0 {
				return relatedBody(first.Parts[0])
			}
		case partAlternative:
			return bestAlternative(first.Parts)
		}
		if len(first.Parts) > 0 {
			return bestAlternative(first.Parts)
		}
		if data := inlineData(first); data != "" {
			return data
		}
	}

	// Generic fallback: depth-first over children that have sub-parts.
	for _, part := range payload.Parts {
		if len(part.Parts) == 0 {
			continue
		}
		if nested := ExtractBody(part); nested != "" {
			return nested
		}
	}
	return ""
}

// bestAlternative picks among sibling alternatives: the text/html part
// if present, else text/plain, else nothing.
func bestAlternative(parts []*MessagePart) string {
	for _, mimeType := range []string{"text/html", "text/plain"} {
		for _, part := range parts {
			if part.MimeType == mimeType {
				if data := inlineData(part); data != "" {
					return data
				}
			}
		}
	}
	return ""
}

// relatedBody resolves the body-bearing child of a multipart/related
// node: its own alternatives if it nests further, its inline data if it
// is a leaf.
func relatedBody(first *MessagePart) string {
	if first == nil {
		return ""
	}
	if len(first.Parts) > 0 {
		return bestAlternative(first.Parts)
	}
	return inlineData(first)
}

// inlineData transfer-decodes a part's inline payload, or returns ""
// when the part carries none.
func inlineData(p *MessagePart) string {
	if p.Body == nil || p.Body.Data == "" {
		return ""
	}
	return decodeBase64URL(p.Body.Data)
}

// decodeBase64URL decodes Gmail's base64url payload encoding, which
// arrives both with and without padding.
func decodeBase64URL(data string) string {
	if decoded, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}
	if decoded, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}
	return ""
}
