package host

import (
	"regexp"
	"strings"
)

var numberedLine = regexp.MustCompile(`^(\d+\.|【\d+】)`)

// IsWeChatChannel reports whether channel belongs to the WeChat family
func IsWeChatChannel(channel string) bool {
	c := strings.ToLower(channel)
	return strings.Contains(c, "wechat") || strings.Contains(c, "wecom") || strings.Contains(c, "wework")
}

// FormatForWeChat reflows text for WeChat Work apps, which collapse
// indentation and render dense blocks poorly: lines are trimmed, runs of
// blank lines collapse to one, and headings, list entries and hints get a
// blank line before them.
func FormatForWeChat(text string) string {
	var out []string
	lastBlank := func() bool { return len(out) == 0 || out[len(out)-1] == "" }
	gap := func() {
		if !lastBlank() {
			out = append(out, "")
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			gap()
		case isHeading(line):
			gap()
			out = append(out, line, "")
		case numberedLine.MatchString(line):
			gap()
			out = append(out, line)
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "💡"), strings.HasPrefix(line, "📋"):
			gap()
			out = append(out, line)
		default:
			out = append(out, line)
		}
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

func isHeading(line string) bool {
	if !strings.Contains(line, "：") {
		return false
	}
	for _, mark := range []string{"🎬", "🎯", "✅", "❌"} {
		if strings.Contains(line, mark) {
			return true
		}
	}
	return false
}
