package agent

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

var (
	objectRe = regexp.MustCompile(`(?s)\{.*\}`)
	shortRe  = regexp.MustCompile(`(?s)\{.*?\}`)
	digitsRe = regexp.MustCompile(`\d+`)
)

// reply is the wire shape of a model decision. Seat and boolean fields accept
// loosely typed values since models often quote numbers or write "4号".
type reply struct {
	Thought      string   `json:"thought"`
	Speak        string   `json:"speak"`
	Target       flexSeat `json:"target"`
	UseCure      flexBool `json:"useCure"`
	PoisonTarget flexSeat `json:"poisonTarget"`
}

// ParseDecision parses a raw model reply. It never fails: a reply that is not
// JSON is searched for its first {...} block, and if that fails too the whole
// text becomes the speech.
func ParseDecision(raw string) Decision {
	if raw == GenerationFailed {
		return Decision{Failed: true, Raw: raw}
	}
	text := strings.TrimSpace(raw)

	if d, ok := decode(text); ok {
		d.Raw = raw
		return d
	}
	for _, re := range []*regexp.Regexp{objectRe, shortRe} {
		if block := re.FindString(text); block != "" {
			if d, ok := decode(block); ok {
				d.Raw = raw
				return d
			}
		}
	}
	return Decision{Speak: text, Raw: raw}
}

func decode(text string) (Decision, bool) {
	var r reply
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		return Decision{}, false
	}
	return Decision{
		Thought:      strings.TrimSpace(r.Thought),
		Speak:        strings.TrimSpace(r.Speak),
		Target:       int(r.Target),
		UseCure:      bool(r.UseCure),
		PoisonTarget: int(r.PoisonTarget),
	}, true
}

// ParseSeat extracts a seat number from free text such as "4", "4号" or the
// full-width "４号". It returns zero when no number is present.
func ParseSeat(s string) int {
	m := digitsRe.FindString(width.Narrow.String(s))
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// flexSeat decodes a seat from a JSON number, a numeric string or null.
type flexSeat int

func (s *flexSeat) UnmarshalJSON(b []byte) error {
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		if n > 0 {
			*s = flexSeat(n)
		}
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = flexSeat(ParseSeat(str))
	}
	return nil
}

// flexBool decodes booleans, "true"/"是"/"yes" strings and 0/1 numbers.
type flexBool bool

func (v *flexBool) UnmarshalJSON(b []byte) error {
	var bv bool
	if err := json.Unmarshal(b, &bv); err == nil {
		*v = flexBool(bv)
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*v = n != 0
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		switch strings.ToLower(strings.TrimSpace(str)) {
		case "true", "yes", "y", "1", "是", "使用", "用":
			*v = true
		}
	}
	return nil
}
