package render

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/osteele/liquid"
)

// registerFilters adds the filters notification copy uses.
func registerFilters(engine *liquid.Engine) {
	// {{ user.firstName | default: "there" }}
	engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	engine.RegisterFilter("capitalize", func(s string) string {
		r, size := utf8.DecodeRuneInString(s)
		if size == 0 || r == utf8.RuneError {
			return s
		}
		return string(unicode.ToUpper(r)) + s[size:]
	})

	// {{ insight | truncate: 40 }}
	engine.RegisterFilter("truncate", func(s string, length int) string {
		r := []rune(s)
		if length < 0 {
			length = 0
		}
		if len(r) <= length {
			return s
		}
		if length <= 3 {
			return string(r[:length])
		}
		return string(r[:length-3]) + "..."
	})

	// {{ streak.count | pluralize: "day", "days" }}
	engine.RegisterFilter("pluralize", func(value interface{}, singular, plural string) string {
		n, ok := toInt(value)
		if ok && (n == 1 || n == -1) {
			return fmt.Sprintf("%d %s", n, singular)
		}
		return fmt.Sprintf("%v %s", value, plural)
	})

	// {{ minutes | number_with_delimiter }}
	engine.RegisterFilter("number_with_delimiter", func(value interface{}) string {
		n, ok := toInt(value)
		if !ok {
			return fmt.Sprintf("%v", value)
		}
		neg := n < 0
		if neg {
			n = -n
		}
		str := strconv.FormatInt(n, 10)
		var b strings.Builder
		for i, c := range str {
			if i > 0 && (len(str)-i)%3 == 0 {
				b.WriteByte(',')
			}
			b.WriteRune(c)
		}
		if neg {
			return "-" + b.String()
		}
		return b.String()
	})
}

func toInt(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	case fmt.Stringer:
		n, err := strconv.ParseInt(v.String(), 10, 64)
		return n, err == nil
	}
	return 0, false
}
