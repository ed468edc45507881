package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatDescriptions renders the attribute schema as the human-readable
// listing embedded in extraction and assessment prompts. Top-level
// attributes appear as "{name}\t[ {description} ]"; group members and
// list-item attributes are indented two spaces with a "- " prefix; a list
// attribute additionally emits its item description line. Order follows the
// schema, not any sort.
func FormatDescriptions(attrs []Attribute) string {
	var sb strings.Builder
	for _, attr := range attrs {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s\t[ %s ]", attr.Name, attr.Description)

		switch attr.Type() {
		case TypeGroup:
			for _, nested := range attr.GroupAttributes {
				fmt.Fprintf(&sb, "\n  - %s\t[ %s ]", nested.Name, nested.Description)
			}
		case TypeList:
			if attr.ListItemTemplate != nil {
				fmt.Fprintf(&sb, "\nEach item: %s", attr.ListItemTemplate.ItemDescription)
				for _, nested := range attr.ListItemTemplate.ItemAttributes {
					fmt.Fprintf(&sb, "\n  - %s\t[ %s ]", nested.Name, nested.Description)
				}
			}
		}
	}
	return sb.String()
}

// Threshold resolves the confidence threshold for the named attribute,
// searching top-level attributes first, then every group's members, then
// every list's item attributes. Names match exactly (case-sensitive). An
// attribute that is absent everywhere, or whose configured threshold is not
// numeric, resolves to def.
func Threshold(name string, attrs []Attribute, def float64) float64 {
	if attr, ok := FindAttribute(name, attrs); ok {
		return SafeFloat(attr.ConfidenceThreshold, def)
	}
	return def
}

// FindAttribute locates the full configuration record for the named
// attribute using the same search order as Threshold.
func FindAttribute(name string, attrs []Attribute) (Attribute, bool) {
	for _, attr := range attrs {
		if attr.Name == name {
			return attr, true
		}
	}
	for _, attr := range attrs {
		for _, nested := range attr.GroupAttributes {
			if nested.Name == name {
				return nested, true
			}
		}
	}
	for _, attr := range attrs {
		for _, nested := range attr.ItemAttributes() {
			if nested.Name == name {
				return nested, true
			}
		}
	}
	return Attribute{}, false
}

func parseFloatOr(s string, def float64) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}
