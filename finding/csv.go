package finding

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// CSV column defaults. They differ from the database defaults because an
// uploaded export is assumed to contain active, medium severity findings.
const (
	csvDefaultSeverity    = "MEDIUM"
	csvDefaultState       = "ACTIVE"
	csvDefaultDescription = "No description provided"
)

// Parser turns a delimited text export into database shaped records.
type Parser struct {
	now   func() time.Time
	newID func() string
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithClock sets the clock used for rows without a create_time.
func WithClock(now func() time.Time) ParserOption {
	return func(p *Parser) { p.now = now }
}

// WithIDGenerator sets the generator used for rows without an id.
func WithIDGenerator(newID func() string) ParserOption {
	return func(p *Parser) { p.newID = newID }
}

func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{
		now:   time.Now,
		newID: mockID,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func mockID() string {
	return "mock-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:13]
}

// ParseCSV parses text with the default parser.
func ParseCSV(text string) []Record {
	return NewParser().Parse(text)
}

// ParseCSVFindings parses and normalizes text with the default parser.
func ParseCSVFindings(text string) []Finding {
	return NormalizeAll(ParseCSV(text))
}

// Parse splits text into lines, uses the first line as the header and maps
// every following line into a Record. Cells are split naively on the
// delimiter; quotes are stripped, not interpreted.
func (p *Parser) Parse(text string) []Record {
	lines := splitLines(text)
	if len(lines) <= 1 {
		return []Record{}
	}

	delim := detectDelimiter(lines[0])
	headers := strings.Split(lines[0], delim)
	for i, h := range headers {
		headers[i] = normalizeHeader(h)
	}

	records := make([]Record, 0, len(lines)-1)
	for _, line := range lines[1:] {
		values := strings.Split(line, delim)
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(values) {
				row[h] = cleanCell(values[i])
			}
		}
		records = append(records, p.toRecord(row))
	}
	return records
}

func (p *Parser) toRecord(row map[string]string) Record {
	get := func(key, fallback string) string {
		if v := row[key]; v != "" {
			return v
		}
		return fallback
	}

	id := row["id"]
	if id == "" {
		id = p.newID()
	}
	createTime := row["create_time"]
	if createTime == "" {
		createTime = p.now().UTC().Format("2006-01-02T15:04:05.000Z")
	}

	rec := Record{
		KeyFindingID:    id,
		KeyCategory:     get("category", defaultCategory),
		KeyResourceName: get("resource", defaultResource),
		KeySeverity:     get("severity", csvDefaultSeverity),
		KeyState:        get("state", csvDefaultState),
		KeyCreateTime:   createTime,
		KeySourceProperties: map[string]any{
			"description": get("description", csvDefaultDescription),
		},
	}
	if v := row[KeyDomain]; v != "" {
		rec[KeyDomain] = v
	}
	if v := row[KeyPractice]; v != "" {
		rec[KeyPractice] = v
	}
	return rec
}

func splitLines(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// detectDelimiter falls back to semicolons for exports that use them.
func detectDelimiter(header string) string {
	if !strings.Contains(header, ",") && strings.Contains(header, ";") {
		return ";"
	}
	return ","
}

func normalizeHeader(h string) string {
	h = strings.ToLower(cleanCell(h))
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, h)
}

func cleanCell(v string) string {
	return strings.TrimSpace(strings.ReplaceAll(v, `"`, ""))
}
