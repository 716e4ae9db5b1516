// Package palette maps node labels and relationship types to stable display
// colors. The mapping is a pure function of the type name, so colors survive
// reloads without any persisted state.
package palette

import "strings"

// Kind selects the hash namespace. A node label and a relationship type with
// the same text must never collide by accident, so relationship keys carry a
// prefix before hashing.
type Kind string

const (
	KindNode         Kind = "node"
	KindRelationship Kind = "relationship"
)

const relationshipPrefix = "rel:"

// colors is a fixed palette of high-contrast colors suited to a dark canvas.
// Two distinct type names may share a color; hash spread is the only
// collision avoidance.
var colors = []string{
	"#4C8EDA", "#FFC454", "#D9C8AE", "#8DCC93", "#ECB5C9",
	"#57C7E3", "#F16667", "#F79767", "#C990C0", "#FFDE63",
	"#A5ABB6", "#569480", "#DA7194", "#848484", "#D9D9D9",
	"#55B9D9", "#FB95AF", "#6DCE9E", "#68BDF6", "#FF756E",
	"#DE9BF9", "#FFD86E", "#9AA1AC", "#E8725C", "#7CDBD5",
	"#B07AA1", "#59A14F", "#EDC948",
}

// ColorFor returns the display color for a node label or relationship type.
// Deterministic: the same (kind, typeName) always yields the same color.
func ColorFor(kind Kind, typeName string) string {
	key := strings.TrimSpace(typeName)
	if key == "" {
		if kind == KindRelationship {
			key = "REL"
		} else {
			key = "Unknown"
		}
	}
	if kind == KindRelationship {
		key = relationshipPrefix + key
	}

	idx := hashString(key) % int32(len(colors))
	if idx < 0 {
		idx = -idx
	}
	return colors[idx]
}

// hashString is the standard polynomial rolling hash over UTF-16 code units,
// with signed 32-bit wraparound.
func hashString(s string) int32 {
	var h int32
	for _, r := range s {
		if r > 0xFFFF {
			// Surrogate pair, hash both halves like a JS string would.
			r -= 0x10000
			h = h*31 + int32(0xD800+(r>>10))
			h = h*31 + int32(0xDC00+(r&0x3FF))
			continue
		}
		h = h*31 + int32(r)
	}
	return h
}
