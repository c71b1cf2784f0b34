package core

import (
	"strings"
	"unicode"
)

// StatementMulti is the statement type of a batch with more than one statement.
const StatementMulti = "MULTI_STATEMENT"

// Classification is what the leading verb of a statement says about it.
type Classification struct {
	Risk RiskClass
	// StatementType is the upper case leading verb, e.g. SELECT or COPY INTO.
	StatementType string
	// ReturnsRows is false for statements that are run with Exec and
	// report rows affected instead of a result set.
	ReturnsRows bool
	// ChangesSession is set for statements that may leave session state
	// behind, such as USE, ALTER SESSION or a batch. The session that ran
	// one is not reused.
	ChangesSession bool
}

type verbInfo struct {
	risk        RiskClass
	returnsRows bool
}

// sessionVerbs may change the session's context, parameters, variables or
// transaction, directly or from inside a procedure or script.
var sessionVerbs = map[string]bool{
	"USE":     true,
	"SET":     true,
	"UNSET":   true,
	"BEGIN":   true,
	"START":   true,
	"CALL":    true,
	"EXECUTE": true,
	"DECLARE": true,
}

var verbs = map[string]verbInfo{
	"SELECT":   {RiskReadOnly, true},
	"SHOW":     {RiskReadOnly, true},
	"DESCRIBE": {RiskReadOnly, true},
	"EXPLAIN":  {RiskReadOnly, true},

	"INSERT":    {RiskDataModifying, false},
	"UPDATE":    {RiskDataModifying, false},
	"MERGE":     {RiskDataModifying, false},
	"COPY INTO": {RiskDataModifying, true},

	"CREATE": {RiskSchemaModifying, false},
	"ALTER":  {RiskSchemaModifying, false},

	"GRANT":  {RiskAdministrative, false},
	"REVOKE": {RiskAdministrative, false},

	"DROP":     {RiskDestructive, false},
	"TRUNCATE": {RiskDestructive, false},
	"DELETE":   {RiskDestructive, false},
}

// Classify returns the risk class of a statement.
func Classify(statement string) RiskClass {
	return ClassifyStatement(statement).Risk
}

// ClassifyStatement looks at the leading verb of a statement after skipping
// whitespace and comments. Batches and unrecognized verbs are Administrative.
func ClassifyStatement(statement string) Classification {
	body := stripLeading(statement)
	if body == "" {
		return Classification{Risk: RiskAdministrative, ReturnsRows: true}
	}

	if hasTrailingStatement(body) {
		return Classification{Risk: RiskAdministrative, StatementType: StatementMulti, ReturnsRows: true, ChangesSession: true}
	}

	words := leadingWords(body, 5)
	verb := words[0]
	switch verb {
	case "DESC":
		verb = "DESCRIBE"
	case "COPY":
		if len(words) > 1 && words[1] == "INTO" {
			verb = "COPY INTO"
		}
	case "CREATE", "ALTER":
		if targetsPrincipal(words[1:]) {
			return Classification{Risk: RiskAdministrative, StatementType: verb, ReturnsRows: false}
		}
	}

	changes := sessionVerbs[verb] || changesSession(verb, words[1:])
	info, ok := verbs[verb]
	if !ok {
		return Classification{Risk: RiskAdministrative, StatementType: verb, ReturnsRows: true, ChangesSession: changes}
	}
	return Classification{Risk: info.risk, StatementType: verb, ReturnsRows: info.returnsRows, ChangesSession: changes}
}

// changesSession reports whether CREATE/ALTER words target the session
// itself or a session scoped object.
func changesSession(verb string, rest []string) bool {
	switch verb {
	case "ALTER":
		return len(rest) > 0 && rest[0] == "SESSION"
	case "CREATE":
		if len(rest) >= 2 && rest[0] == "OR" && rest[1] == "REPLACE" {
			rest = rest[2:]
		}
		if len(rest) > 0 && (rest[0] == "LOCAL" || rest[0] == "GLOBAL") {
			rest = rest[1:]
		}
		return len(rest) > 0 && (rest[0] == "TEMP" || rest[0] == "TEMPORARY" || rest[0] == "VOLATILE")
	}
	return false
}

// targetsPrincipal reports whether CREATE/ALTER words name a user or role.
func targetsPrincipal(rest []string) bool {
	if len(rest) >= 2 && rest[0] == "OR" && (rest[1] == "REPLACE" || rest[1] == "ALTER") {
		rest = rest[2:]
	}
	if len(rest) == 0 {
		return false
	}
	switch rest[0] {
	case "USER", "ROLE":
		return true
	case "DATABASE", "APPLICATION":
		return len(rest) > 1 && rest[1] == "ROLE"
	}
	return false
}

func leadingWords(s string, n int) []string {
	words := make([]string, 0, n)
	i := 0
	for len(words) < n && i < len(s) {
		for i < len(s) && !isWordByte(s[i]) {
			if !unicode.IsSpace(rune(s[i])) && len(words) > 0 {
				return words
			}
			i++
		}
		start := i
		for i < len(s) && isWordByte(s[i]) {
			i++
		}
		if start == i {
			break
		}
		words = append(words, strings.ToUpper(s[start:i]))
	}
	if len(words) == 0 {
		words = append(words, "")
	}
	return words
}

func isWordByte(b byte) bool {
	return b == '_' || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9')
}

// stripLeading removes leading whitespace and comments.
func stripLeading(s string) string {
	for {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		switch {
		case strings.HasPrefix(s, "--"), strings.HasPrefix(s, "//"):
			nl := strings.IndexByte(s, '\n')
			if nl < 0 {
				return ""
			}
			s = s[nl+1:]
		case strings.HasPrefix(s, "/*"):
			end := strings.Index(s[2:], "*/")
			if end < 0 {
				return ""
			}
			s = s[end+4:]
		default:
			return s
		}
	}
}

// hasTrailingStatement reports whether a statement terminator outside of
// literals and comments is followed by anything other than whitespace and comments.
func hasTrailingStatement(s string) bool {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\'' || c == '"':
			i = skipQuoted(s, i, c)
		case c == '$' && strings.HasPrefix(s[i:], "$$"):
			end := strings.Index(s[i+2:], "$$")
			if end < 0 {
				return false
			}
			i += end + 3
		case strings.HasPrefix(s[i:], "--"), strings.HasPrefix(s[i:], "//"):
			nl := strings.IndexByte(s[i:], '\n')
			if nl < 0 {
				return false
			}
			i += nl
		case strings.HasPrefix(s[i:], "/*"):
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				return false
			}
			i += end + 3
		case c == ';':
			rest := stripLeading(s[i+1:])
			for strings.HasPrefix(rest, ";") {
				rest = stripLeading(rest[1:])
			}
			return rest != ""
		}
	}
	return false
}

// skipQuoted returns the index of the closing quote of the literal opened at
// s[start]. Doubled quotes and backslash escapes stay inside the literal.
func skipQuoted(s string, start int, quote byte) int {
	for i := start + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if quote == '\'' {
				i++
			}
		case quote:
			if i+1 < len(s) && s[i+1] == quote {
				i++
				continue
			}
			return i
		}
	}
	return len(s)
}
