package formats

import (
	"regexp"

	"github.com/ccollicutt/logsniff/pkg/parser"
	"github.com/ccollicutt/logsniff/pkg/registry"
)

// cluster is a semantic keyword format: a keyword pattern over sampled lines
// and the whitespace-separated columns of its entries.
type cluster struct {
	id          string
	description string
	match       func(line string) bool
	columns     []string
}

var (
	browsingURL    = regexp.MustCompile(`(?i)https?://|www\.|\.(com|org|net|edu|gov)\b`)
	browsingStatus = regexp.MustCompile(`\b[1-5][0-9]{2}\b`)
)

func keywords(pattern string) func(string) bool {
	re := regexp.MustCompile(`(?i)` + pattern)
	return re.MatchString
}

// clusters are listed in tie-break priority order.
var clusters = []cluster{
	{
		id:          "browsing",
		description: "Web proxy and browsing activity",
		match: func(line string) bool {
			return browsingURL.MatchString(line) && browsingStatus.MatchString(line)
		},
		columns: []string{"timestamp", "ip_address", "username", "url", "bandwidth", "status_code", "content_type", "category", "device_info"},
	},
	{
		id:          "virus",
		description: "Antivirus scan events",
		match:       keywords(`virus|malware|trojan|infected|quarantine`),
		columns:     []string{"timestamp", "ip_address", "username", "virus_name", "file_path", "action_taken", "scan_engine", "severity"},
	},
	{
		id:          "mail",
		description: "Mail gateway events",
		match:       keywords(`@|sender|recipient|subject|spam|mail`),
		columns:     []string{"timestamp", "sender", "recipient", "subject", "size", "status", "attachment_count", "spam_score"},
	},
	{
		id:          "firewall",
		description: "Firewall decisions",
		match:       keywords(`firewall|allow|deny|block|accept|drop|src|dst|port`),
		columns:     []string{"timestamp", "action", "protocol", "src_ip", "src_port", "dst_ip", "dst_port", "interface", "rule_id", "description"},
	},
	{
		id:          "auth",
		description: "Authentication events",
		match:       keywords(`login|logout|auth|failed|success|user|password|session`),
		columns:     []string{"timestamp", "username", "source_ip", "service", "status", "auth_method", "details"},
	},
	{
		id:          "system",
		description: "System and service events",
		match:       keywords(`system|kernel|daemon|cron|service|start|stop|restart`),
		columns:     []string{"timestamp", "hostname", "service", "pid", "level", "message"},
	},
	{
		id:          "application",
		description: "Application events",
		match:       keywords(`error|warning|info|debug|trace|exception|stack`),
		columns:     []string{"timestamp", "app_name", "level", "component", "thread_id", "request_id", "message"},
	},
	{
		id:          "ids",
		description: "Intrusion detection alerts",
		match:       keywords(`intrusion|detection|prevention|alert|signature|attack`),
		columns:     []string{"timestamp", "alert_id", "severity", "category", "src_ip", "dst_ip", "protocol", "signature", "description"},
	},
	{
		id:          "vpn",
		description: "VPN sessions",
		match:       keywords(`vpn|tunnel|connect|disconnect|remote|client`),
		columns:     []string{"timestamp", "username", "client_ip", "session_id", "event_type", "duration", "bytes_in", "bytes_out"},
	},
}

// KeywordPriority returns the built-in keyword identifiers in tie-break order.
func KeywordPriority() []string {
	out := make([]string, len(clusters))
	for i, c := range clusters {
		out[i] = c.id
	}
	return out
}

// Keywords returns the keyword-stage descriptors of the domain column formats.
func Keywords() []registry.Descriptor {
	out := make([]registry.Descriptor, 0, len(clusters))
	for i, c := range clusters {
		columns := c.columns
		out = append(out, registry.Descriptor{
			ID:          c.id,
			Description: c.description,
			Family:      parser.Line,
			Rule: registry.Rule{
				Stage: registry.StageKeyword,
				Line:  c.match,
			},
			Priority:        (i + 1) * 10,
			TimestampFields: []string{"timestamp"},
			TimestampHint:   "Compact datetime",
			New:             func() parser.Parser { return parser.NewColumns(columns) },
		})
	}
	return out
}
