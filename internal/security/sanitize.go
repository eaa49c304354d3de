package security

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

var (
	// serverNameRegex validates server configuration names
	// Allows: letters, numbers, underscores, hyphens
	// Length: 1-64 characters
	serverNameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_-]{0,62}[a-zA-Z0-9])?$`)

	// loginNameRegex validates remote login names.
	// Looser than POSIX: remote endpoints (switches, appliances) accept
	// mixed case, dots and @.
	loginNameRegex = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.@-]{0,63}$`)

	// hostRegex validates DNS host names
	hostRegex = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?(\.[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?)*$`)

	// sensitiveLogPatterns used by SanitizeCommandForLog to mask secrets
	sensitiveLogPatterns = []string{
		"PASSWORD=",
		"PASSWD=",
		"TOKEN=",
		"SECRET=",
		"DATABASE_URL=",
		"--password=",
	}
)

// ValidateServerName validates a server configuration name
func ValidateServerName(name string) error {
	if name == "" {
		return fmt.Errorf("server name cannot be empty")
	}
	if len(name) > 64 {
		return fmt.Errorf("server name too long (max 64 characters)")
	}
	if !serverNameRegex.MatchString(name) {
		return fmt.Errorf("server name must contain only letters, numbers, underscores, and hyphens")
	}
	return nil
}

// ValidateLoginName validates the user name sent to the remote endpoint
func ValidateLoginName(user string) error {
	if user == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if len(user) > 64 {
		return fmt.Errorf("username too long (max 64 characters)")
	}
	if !loginNameRegex.MatchString(user) {
		return fmt.Errorf("username contains invalid characters")
	}
	return nil
}

// ValidateAddress validates a host, host:port or [ipv6]:port address.
func ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	host := address
	if h, p, err := net.SplitHostPort(address); err == nil {
		host = h
		port, err := strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("invalid port %q", p)
		}
	}

	if net.ParseIP(host) != nil {
		return nil
	}
	if len(host) > 253 || !hostRegex.MatchString(host) {
		return fmt.Errorf("invalid host %q", host)
	}
	return nil
}

// ShellEscape escapes a string for safe use in shell commands by wrapping it
// in single quotes and escaping any internal single quotes using the POSIX
// pattern: ' → '\''
func ShellEscape(s string) string {
	escaped := strings.ReplaceAll(s, "'", "'\\''")
	return "'" + escaped + "'"
}

// JoinCommand builds a single remote command line from argv.
// A single argument is passed through untouched so callers can hand over a
// complete shell snippet; multiple arguments are escaped one by one.
func JoinCommand(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	quoted := make([]string, len(args))
	for i, a := range args {
		if a != "" && !strings.ContainsAny(a, " \t\n'\"\\$`;&|<>*?()[]{}!#~") {
			quoted[i] = a
			continue
		}
		quoted[i] = ShellEscape(a)
	}
	return strings.Join(quoted, " ")
}

// MaskSecret returns a fixed mask for non-empty secrets.
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	return "****"
}

// SanitizeCommandForLog masks sensitive values in commands before logging.
// This prevents secrets from leaking into verbose output or log files.
func SanitizeCommandForLog(cmd string) string {
	result := cmd

	for _, pattern := range sensitiveLogPatterns {
		searchFrom := 0
		for {
			idx := strings.Index(result[searchFrom:], pattern)
			if idx == -1 {
				break
			}
			absIdx := searchFrom + idx
			valueStart := absIdx + len(pattern)
			valueEnd := findValueEnd(result, valueStart)
			masked := "****"
			result = result[:valueStart] + masked + result[valueEnd:]
			// Advance past the replacement to avoid infinite loop
			searchFrom = valueStart + len(masked)
		}
	}

	return maskSSHPass(result)
}

// findValueEnd finds where a shell value ends (handles quoted and unquoted values)
func findValueEnd(s string, start int) int {
	if start >= len(s) {
		return start
	}

	if s[start] == '\'' || s[start] == '"' {
		end := strings.IndexByte(s[start+1:], s[start])
		if end == -1 {
			return len(s)
		}
		return start + end + 2
	}

	// Unquoted: find next whitespace
	for i := start; i < len(s); i++ {
		if s[i] == ' ' || s[i] == '\t' || s[i] == '\n' {
			return i
		}
	}
	return len(s)
}

// maskSSHPass masks the argument of "sshpass -p <password>"
func maskSSHPass(cmd string) string {
	const flag = "sshpass -p "
	idx := strings.Index(cmd, flag)
	if idx == -1 {
		return cmd
	}
	valueStart := idx + len(flag)
	valueEnd := findValueEnd(cmd, valueStart)
	return cmd[:valueStart] + "****" + cmd[valueEnd:]
}
