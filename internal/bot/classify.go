package bot

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"nullbr-search-service/internal/model"
)

// Intent is what an inbound message asks for
type Intent int

const (
	IntentIgnored Intent = iota
	IntentSearch
	// IntentNumber is a bare number; the dispatcher turns it into a
	// transfer or a title selection depending on the user's session
	IntentNumber
	IntentSelectTitle
	IntentResourceType
	IntentTransfer
)

var intentNames = map[Intent]string{
	IntentIgnored:      "ignored",
	IntentSearch:       "search",
	IntentNumber:       "number",
	IntentSelectTitle:  "select_title",
	IntentResourceType: "resource_type",
	IntentTransfer:     "transfer",
}

func (i Intent) String() string {
	if s, ok := intentNames[i]; ok {
		return s
	}
	return "unknown"
}

// MarshalText renders the intent by name in JSON
func (i Intent) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// Command is a classified message
type Command struct {
	Intent  Intent
	Keyword string
	Index   int
	Type    model.ResourceType
}

var (
	resourceRequest = regexp.MustCompile(`(?i)^(\d+)\.(115|magnet|video|ed2k)$`)
	allDigits       = regexp.MustCompile(`^\d+$`)
)

// CleanText trims the message and strips trailing question marks
func CleanText(text string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(text), "?？"))
}

// Classify maps a message to a command. First match wins:
// "<n>.<type>", then a bare number, then a question ending in ? or ？.
func Classify(text string) Command {
	clean := CleanText(text)

	if m := resourceRequest.FindStringSubmatch(clean); m != nil {
		rt, _ := model.ParseResourceType(m[2])
		return Command{Intent: IntentResourceType, Index: parseIndex(m[1]), Type: rt}
	}

	if allDigits.MatchString(clean) {
		return Command{Intent: IntentNumber, Index: parseIndex(clean)}
	}

	trimmed := strings.TrimSpace(text)
	if clean != "" && (strings.HasSuffix(trimmed, "?") || strings.HasSuffix(trimmed, "？")) {
		return Command{Intent: IntentSearch, Keyword: clean}
	}

	return Command{Intent: IntentIgnored}
}

// parseIndex saturates on overflow so an absurd number is just out of range
func parseIndex(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return math.MaxInt
	}
	return n
}
