package netprobe

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

const servicesPath = "/etc/services"

// UnknownService is reported for ports with no registered name.
const UnknownService = "unknown"

// builtinServices carries the IANA names for common TCP ports so lookups
// work on systems without a services database.
var builtinServices = map[int]string{
	20:    "ftp-data",
	21:    "ftp",
	22:    "ssh",
	23:    "telnet",
	25:    "smtp",
	53:    "domain",
	67:    "bootps",
	69:    "tftp",
	80:    "http",
	88:    "kerberos",
	110:   "pop3",
	111:   "sunrpc",
	119:   "nntp",
	123:   "ntp",
	135:   "epmap",
	137:   "netbios-ns",
	139:   "netbios-ssn",
	143:   "imap",
	161:   "snmp",
	389:   "ldap",
	443:   "https",
	445:   "microsoft-ds",
	465:   "submissions",
	514:   "shell",
	587:   "submission",
	631:   "ipp",
	636:   "ldaps",
	873:   "rsync",
	993:   "imaps",
	995:   "pop3s",
	1433:  "ms-sql-s",
	1521:  "ncube-lm",
	1883:  "mqtt",
	2049:  "nfs",
	3306:  "mysql",
	3389:  "ms-wbt-server",
	5060:  "sip",
	5432:  "postgresql",
	5672:  "amqp",
	5900:  "rfb",
	6379:  "redis",
	8080:  "http-alt",
	8443:  "pcsync-https",
	9200:  "wap-wsp",
	27017: "mongodb",
}

var serviceTable = sync.OnceValue(func() map[int]string {
	table := make(map[int]string, len(builtinServices))
	for port, name := range builtinServices {
		table[port] = name
	}

	f, err := os.Open(servicesPath)
	if err != nil {
		return table
	}
	defer f.Close()

	for port, name := range ParseServices(f) {
		table[port] = name
	}
	return table
})

// ServiceName returns the registered TCP service name for port, or
// UnknownService.
func ServiceName(port int) string {
	if name, ok := serviceTable()[port]; ok {
		return name
	}
	return UnknownService
}

// ParseServices reads a services(5) database and returns the first TCP
// name listed for each port.
func ParseServices(r io.Reader) map[int]string {
	out := make(map[int]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		portProto := strings.SplitN(fields[1], "/", 2)
		if len(portProto) != 2 || portProto[1] != "tcp" {
			continue
		}
		port, err := strconv.Atoi(portProto[0])
		if err != nil || port < 1 || port > 65535 {
			continue
		}
		if _, seen := out[port]; !seen {
			out[port] = fields[0]
		}
	}
	return out
}
