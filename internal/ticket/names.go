package ticket

import (
	"strings"
	"unicode"
)

const ChannelPrefix = "ticket-"

// ChannelName is the name given to a newly created ticket channel. Discord
// lowercases text channel names and turns spaces into dashes.
func ChannelName(username string) string {
	return ChannelPrefix + strings.ToLower(strings.Join(strings.Fields(username), "-"))
}

// ChannelNameCandidates lists the channel names a user's ticket channel may
// have been created under, lowercased and without duplicates.
func ChannelNameCandidates(username string) []string {
	variants := []string{
		username,
		strings.ReplaceAll(username, " ", ""),
		strings.ReplaceAll(username, " ", "_"),
		alphanumeric(username),
	}

	seen := make(map[string]bool, len(variants)+1)
	out := make([]string, 0, len(variants)+1)
	add := func(name string) {
		name = strings.ToLower(name)
		if name == ChannelPrefix || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}
	for _, v := range variants {
		add(ChannelPrefix + v)
	}
	add(ChannelName(username))
	return out
}

func alphanumeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
