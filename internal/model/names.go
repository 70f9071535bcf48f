package model

import "strings"

var unsafeName = strings.NewReplacer(
	"/", "_", `\`, "_", ":", "_", "*", "_", "?", "_",
	`"`, "_", "<", "_", ">", "_", "|", "_", "\x00", "",
)

// SafeName turns a formatted number or file name into a single path element.
func SafeName(s string) string {
	s = strings.TrimSpace(unsafeName.Replace(s))
	s = strings.Trim(s, ".")
	if s == "" {
		return "_"
	}
	return s
}
